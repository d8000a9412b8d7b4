package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	burstcontext "github.com/grafana/connburst/pkg/burst/context"
	"github.com/grafana/connburst/pkg/util"
)

// Orchestrator launches a fixed set of workers against a single target and
// waits for all of them to finish.
type Orchestrator struct {
	cfg     Config
	logger  log.Logger
	metrics *metrics

	dial     dialFunc
	resolver Resolver
}

func NewOrchestrator(cfg Config, logger log.Logger, reg prometheus.Registerer) *Orchestrator {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Orchestrator{
		cfg:     cfg.WithDefaults(),
		logger:  log.With(logger, "component", "orchestrator"),
		metrics: newMetrics(reg),
		dial:    dialSocket,
	}
}

// Run starts workerCount workers, each sending payload to target, and
// returns once every worker reached a terminal state. Results are indexed by
// task ID. Worker failures are reported in the results, never as the
// returned error, which is only set for invalid arguments.
func (o *Orchestrator) Run(ctx context.Context, workerCount int, target Target, payload []byte) ([]Result, error) {
	if workerCount < 0 {
		return nil, fmt.Errorf("invalid worker count %d", workerCount)
	}
	results := make([]Result, workerCount)
	if workerCount == 0 {
		return results, nil
	}

	logger := log.With(o.logger, "run", runID(ctx))
	limit := o.cfg.concurrencyLimit(workerCount)
	level.Info(logger).Log("msg", "starting connections", "target", target, "workers", workerCount, "concurrency", limit, "payload_bytes", len(payload))

	start := time.Now()
	var g errgroup.Group
	g.SetLimit(limit)
	for _, task := range NewTasks(workerCount, target, payload) {
		g.Go(func() error {
			err := util.RecoverPanic(func() error {
				results[task.ID] = newWorker(task, o.cfg, logger, o.metrics, o.dial, o.resolver).Run(ctx)
				return nil
			})()
			if err != nil {
				results[task.ID] = Result{
					TaskID:    task.ID,
					State:     StateFailed,
					Failure:   &Failure{Phase: PhaseUnknown, Cause: err},
					finalized: true,
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	o.metrics.runsCompleted.Inc()

	s := Summarize(results)
	level.Info(logger).Log("msg", "all connections finished", "closed", s.Closed, "failed", s.Failed, "received_bytes", s.BytesReceived, "duration", time.Since(start))
	return results, nil
}

// runID returns the run ID pinned in ctx, or a new ULID.
func runID(ctx context.Context) string {
	if id := burstcontext.RunID(ctx); id != "" {
		return id
	}
	return ulid.Make().String()
}
