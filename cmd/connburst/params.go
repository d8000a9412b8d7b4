package main

import (
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/grafana/connburst/pkg/harness"
	"github.com/grafana/connburst/pkg/report"
)

const envPrefix = "CONNBURST_"

type commander interface {
	Flag(name, help string) *kingpin.FlagClause
	Arg(name, help string) *kingpin.ArgClause
}

func envVar(flag string) string {
	return envPrefix + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(flag))
}

type configFileParams struct {
	path      string
	expandEnv bool
}

func addConfigFileParams(cmd commander, path string, expandEnv bool) *configFileParams {
	p := &configFileParams{}
	cmd.Flag("config.file", "YAML file providing the defaults of every other flag.").Default(path).Envar(envVar("config.file")).StringVar(&p.path)
	cmd.Flag("config.expand-env", "Expands ${var} in the config file according to the values of the environment variables.").Default(strconv.FormatBool(expandEnv)).Envar(envVar("config.expand-env")).BoolVar(&p.expandEnv)
	return p
}

type requestParams struct {
	cfg     *config
	headers map[string]string
}

func addRequestParams(cmd commander, cfg *config) *requestParams {
	p := &requestParams{cfg: cfg}
	cmd.Flag("target.host", "Host to connect to. Only IPv4 addresses are used.").Default(cfg.Target.Host).Envar(envVar("target.host")).StringVar(&cfg.Target.Host)
	cmd.Flag("target.port", "TCP port to connect to.").Default(strconv.Itoa(cfg.Target.Port)).Envar(envVar("target.port")).IntVar(&cfg.Target.Port)

	req := &cfg.Request
	cmd.Flag("request.method", "HTTP method of the request.").Default(req.Method).Envar(envVar("request.method")).StringVar(&req.Method)
	cmd.Flag("request.path", "Path of the request.").Default(req.Path).Envar(envVar("request.path")).StringVar(&req.Path)
	cmd.Flag("request.host", "Host header value. Defaults to the target address.").Default(req.Host).Envar(envVar("request.host")).StringVar(&req.Host)
	cmd.Flag("request.connection", "Connection header value, empty to omit it.").Default(req.Connection).Envar(envVar("request.connection")).StringVar(&req.Connection)
	cmd.Flag("request.content-type", "Content-Type of the body.").Default(req.ContentType).Envar(envVar("request.content-type")).StringVar(&req.ContentType)
	cmd.Flag("request.header", "Extra request header as name=value. Can be repeated.").StringMapVar(&p.headers)
	cmd.Flag("request.body", "Request body.").Default(req.Body).Envar(envVar("request.body")).StringVar(&req.Body)
	cmd.Flag("request.body-file", "File to read the request body from.").Default(req.BodyFile).Envar(envVar("request.body-file")).StringVar(&req.BodyFile)
	cmd.Flag("request.raw-file", "File sent verbatim instead of a generated request.").Default(req.RawFile).Envar(envVar("request.raw-file")).StringVar(&req.RawFile)
	return p
}

// payload resolves the request files and renders the request.
func (p *requestParams) payload(fs afero.Fs) ([]byte, error) {
	req := &p.cfg.Request
	if len(p.headers) > 0 {
		req.Headers = lo.Assign(req.Headers, p.headers)
	}
	if err := req.Load(fs); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req.Build(p.cfg.Target), nil
}

type runParams struct {
	*requestParams
	receiveMode string
	format      string
}

func addRunParams(cmd commander, cfg *config) *runParams {
	p := &runParams{requestParams: addRequestParams(cmd, cfg)}

	cmd.Flag("workers", "Number of connections to open.").Default(strconv.Itoa(cfg.Workers)).Envar(envVar("workers")).IntVar(&cfg.Workers)
	cmd.Flag("concurrency", "Maximum number of connections in flight. 0 opens all at once, \"auto\" uses GOMAXPROCS.").Default(cfg.Concurrency.String()).Envar(envVar("concurrency")).SetValue(&cfg.Concurrency)
	cmd.Flag("connect-timeout", "Deadline for establishing a connection, 0 to disable.").Default(cfg.ConnectTimeout.String()).Envar(envVar("connect-timeout")).DurationVar(&cfg.ConnectTimeout)
	cmd.Flag("write-timeout", "Deadline for a blocked write, 0 to disable.").Default(cfg.WriteTimeout.String()).Envar(envVar("write-timeout")).DurationVar(&cfg.WriteTimeout)
	cmd.Flag("read-timeout", "Idle deadline between two reads, 0 to wait for the peer forever.").Default(cfg.ReadTimeout.String()).Envar(envVar("read-timeout")).DurationVar(&cfg.ReadTimeout)
	cmd.Flag("chunk-size", "Maximum number of bytes per read.").Default(strconv.Itoa(cfg.ChunkSize)).Envar(envVar("chunk-size")).IntVar(&cfg.ChunkSize)
	cmd.Flag("max-response-bytes", "Fail a connection once its response exceeds this size, 0 for no limit.").Default(strconv.Itoa(cfg.MaxResponseBytes)).Envar(envVar("max-response-bytes")).IntVar(&cfg.MaxResponseBytes)
	cmd.Flag("receive-mode", "How to wait when no data is available: poll, backoff or spin.").Default(string(cfg.ReceiveMode)).Envar(envVar("receive-mode")).
		EnumVar(&p.receiveMode, lo.Map(harness.ReceiveModes, func(m harness.ReceiveMode, _ int) string { return string(m) })...)
	cmd.Flag("backoff.min-period", "Minimum sleep between reads in backoff mode.").Default(cfg.Backoff.MinBackoff.String()).Envar(envVar("backoff.min-period")).DurationVar(&cfg.Backoff.MinBackoff)
	cmd.Flag("backoff.max-period", "Maximum sleep between reads in backoff mode.").Default(cfg.Backoff.MaxBackoff.String()).Envar(envVar("backoff.max-period")).DurationVar(&cfg.Backoff.MaxBackoff)

	cmd.Flag("output", "How to output the results: console or json.").Default(string(cfg.Output.Format)).Envar(envVar("output")).
		EnumVar(&p.format, lo.Map(report.Formats, func(f report.Format, _ int) string { return string(f) })...)
	cmd.Flag("print-responses", "Print every response body.").Default(strconv.FormatBool(cfg.Output.PrintResponses)).Envar(envVar("print-responses")).BoolVar(&cfg.Output.PrintResponses)
	cmd.Flag("fail-on-error", "Exit with status 1 if any connection failed.").Default(strconv.FormatBool(cfg.Output.FailOnError)).Envar(envVar("fail-on-error")).BoolVar(&cfg.Output.FailOnError)

	cmd.Flag("metrics.listen-address", "Address to expose Prometheus metrics on while running, empty to disable.").Default(cfg.Metrics.ListenAddress).Envar(envVar("metrics.listen-address")).StringVar(&cfg.Metrics.ListenAddress)
	cmd.Flag("self-profiling.server-address", "Pyroscope server to send profiles of connburst itself to, empty to disable.").Default(cfg.SelfProfiling.ServerAddress).Envar(envVar("self-profiling.server-address")).StringVar(&cfg.SelfProfiling.ServerAddress)
	cmd.Flag("self-profiling.application-name", "Application name of the self profiles.").Default(cfg.SelfProfiling.ApplicationName).Envar(envVar("self-profiling.application-name")).StringVar(&cfg.SelfProfiling.ApplicationName)
	return p
}

// resolve applies the flags that need conversion and validates the result.
func (p *runParams) resolve() error {
	cfg := p.cfg
	cfg.ReceiveMode = harness.ReceiveMode(p.receiveMode)
	cfg.Output.Format = report.Format(p.format)
	return cfg.Validate()
}
