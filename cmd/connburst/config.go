package main

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/drone/envsubst"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/grafana/connburst/pkg/harness"
	"github.com/grafana/connburst/pkg/report"
	"github.com/grafana/connburst/pkg/selfprofile"
)

// config is the content of the optional configuration file. Its values
// become the defaults of the command line flags.
type config struct {
	harness.Config `yaml:",inline"`

	Output        outputConfig       `yaml:"output"`
	Metrics       metricsConfig      `yaml:"metrics"`
	SelfProfiling selfprofile.Config `yaml:"self_profiling"`
}

type outputConfig struct {
	Format         report.Format `yaml:"format"`
	PrintResponses bool          `yaml:"print_responses"`
	FailOnError    bool          `yaml:"fail_on_error"`
}

type metricsConfig struct {
	ListenAddress string `yaml:"listen_address"`
}

func defaultConfig() config {
	return config{
		Config: harness.DefaultConfig(),
		Output: outputConfig{Format: report.FormatConsole},
	}
}

// loadConfig reads path from fs on top of the defaults. An empty path
// returns the defaults.
func loadConfig(fs afero.Fs, path string, expandEnv bool) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	buf, err := afero.ReadFile(fs, path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading config file %s", path)
	}
	if expandEnv {
		s, err := envsubst.EvalEnv(string(buf))
		if err != nil {
			return cfg, errors.Wrapf(err, "expanding environment variables in %s", path)
		}
		buf = []byte(s)
	}

	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, errors.Wrapf(err, "parsing config file %s", path)
	}
	return cfg, nil
}

// configFileFromArgs finds the config file flags before the actual flag
// parsing, so the file can provide the defaults of every other flag.
func configFileFromArgs(args []string, getenv func(string) string) (path string, expandEnv bool) {
	path = getenv(envVar("config.file"))
	expandEnv, _ = strconv.ParseBool(getenv(envVar("config.expand-env")))

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--":
			return path, expandEnv
		case arg == "--config.file" && i+1 < len(args):
			i++
			path = args[i]
		case strings.HasPrefix(arg, "--config.file="):
			path = strings.TrimPrefix(arg, "--config.file=")
		case arg == "--config.expand-env":
			expandEnv = true
		case arg == "--no-config.expand-env":
			expandEnv = false
		case strings.HasPrefix(arg, "--config.expand-env="):
			expandEnv, _ = strconv.ParseBool(strings.TrimPrefix(arg, "--config.expand-env="))
		}
	}
	return path, expandEnv
}
