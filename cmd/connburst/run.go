package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	burstcontext "github.com/grafana/connburst/pkg/burst/context"
	"github.com/grafana/connburst/pkg/harness"
	"github.com/grafana/connburst/pkg/report"
	"github.com/grafana/connburst/pkg/selfprofile"
)

var errConnectionsFailed = errors.New("some connections failed")

func run(ctx context.Context, fs afero.Fs, params *runParams) error {
	if err := params.resolve(); err != nil {
		return err
	}
	payload, err := params.payload(fs)
	if err != nil {
		return err
	}
	cfg := params.cfg
	logger := burstcontext.Logger(ctx)

	reg := prometheus.NewRegistry()
	ctx = burstcontext.WithRegistry(ctx, reg)

	if cfg.Metrics.ListenAddress != "" {
		srv, err := startMetricsServer(cfg.Metrics.ListenAddress, prometheus.Gatherers{reg, prometheus.DefaultGatherer}, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.stop(shutdownCtx); err != nil {
				level.Warn(logger).Log("msg", "failed to stop metrics server", "err", err)
			}
		}()
	}

	stopProfiling, err := selfprofile.Start(cfg.SelfProfiling, logger, map[string]string{"target": cfg.Target.String()})
	if err != nil {
		return err
	}
	defer func() {
		if err := stopProfiling(); err != nil {
			level.Warn(logger).Log("msg", "failed to stop self profiling", "err", err)
		}
	}()

	out := output(ctx)
	if cfg.Output.Format == report.FormatConsole && report.IsTerminal(consoleOutput) {
		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(consoleOutput))
		s.Suffix = fmt.Sprintf(" %d connections to %s", cfg.Workers, cfg.Target)
		s.Start()
		defer s.Stop()
	}

	o := harness.NewOrchestrator(cfg.Config, logger, burstcontext.Registry(ctx))
	results, err := o.Run(ctx, cfg.Workers, cfg.Target, payload)
	if err != nil {
		return err
	}

	if err := report.Write(out, cfg.Target, results, report.Options{
		Format:         cfg.Output.Format,
		PrintResponses: cfg.Output.PrintResponses,
		Color:          report.IsTerminal(out),
	}); err != nil {
		return err
	}

	if s := harness.Summarize(results); cfg.Output.FailOnError && s.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", errConnectionsFailed, s.Failed, s.Total)
	}
	return nil
}
