// Package selfprofile pushes continuous profiles of the running harness to a
// Pyroscope server.
package selfprofile

import (
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/pyroscope-go"
	"github.com/pkg/errors"
	"github.com/prometheus/common/version"
)

type Config struct {
	ServerAddress   string `yaml:"server_address"`
	ApplicationName string `yaml:"application_name"`
}

func (cfg Config) Enabled() bool { return cfg.ServerAddress != "" }

// Start begins profiling. The returned stop function is a no-op when
// profiling is disabled.
func Start(cfg Config, logger log.Logger, tags map[string]string) (stop func() error, err error) {
	if !cfg.Enabled() {
		return func() error { return nil }, nil
	}
	name := cfg.ApplicationName
	if name == "" {
		name = "connburst"
	}
	if tags == nil {
		tags = map[string]string{}
	}
	if _, ok := tags["version"]; !ok && version.Version != "" {
		tags["version"] = version.Version
	}
	p, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: name,
		ServerAddress:   cfg.ServerAddress,
		Logger:          NewLogger(logger),
		Tags:            tags,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "starting self profiling")
	}
	level.Info(logger).Log("msg", "self profiling enabled", "server", cfg.ServerAddress, "application", name)
	return p.Stop, nil
}

type logger struct {
	l log.Logger
}

// NewLogger adapts a go-kit logger to the profiler client's logger.
func NewLogger(l log.Logger) pyroscope.Logger {
	return logger{l: log.With(l, "component", "selfprofile")}
}

func (l logger) Infof(format string, args ...interface{}) {
	level.Info(l.l).Log("msg", fmt.Sprintf(format, args...))
}

func (l logger) Debugf(format string, args ...interface{}) {
	level.Debug(l.l).Log("msg", fmt.Sprintf(format, args...))
}

func (l logger) Errorf(format string, args ...interface{}) {
	level.Error(l.l).Log("msg", fmt.Sprintf(format, args...))
}
