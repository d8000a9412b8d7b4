package harness

import (
	"fmt"
	"time"

	"github.com/grafana/dskit/backoff"
	"github.com/hashicorp/go-multierror"

	"github.com/grafana/connburst/pkg/util"
)

// ReceiveMode selects how a worker reacts to a read that would block.
type ReceiveMode string

const (
	// ReceiveModePoll parks on the runtime network poller until readable.
	ReceiveModePoll ReceiveMode = "poll"
	// ReceiveModeBackoff sleeps with an exponential backoff between reads.
	ReceiveModeBackoff ReceiveMode = "backoff"
	// ReceiveModeSpin retries immediately, without sleeping or yielding.
	ReceiveModeSpin ReceiveMode = "spin"
)

var ReceiveModes = []ReceiveMode{ReceiveModePoll, ReceiveModeBackoff, ReceiveModeSpin}

const DefaultChunkSize = 1024

type Config struct {
	Target      Target                `yaml:"target"`
	Workers     int                   `yaml:"workers"`
	Concurrency util.ConcurrencyLimit `yaml:"concurrency"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	// ReadTimeout is an idle deadline, re-armed after every chunk read.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	ChunkSize        int            `yaml:"chunk_size"`
	MaxResponseBytes int            `yaml:"max_response_bytes"`
	ReceiveMode      ReceiveMode    `yaml:"receive_mode"`
	Backoff          backoff.Config `yaml:"backoff"`

	Request RequestConfig `yaml:"request"`
}

func DefaultConfig() Config {
	return Config{
		Target:         Target{Host: "localhost", Port: 8080},
		Workers:        30,
		ConnectTimeout: 5 * time.Second,
		WriteTimeout:   5 * time.Second,
		ReadTimeout:    10 * time.Second,
		ChunkSize:      DefaultChunkSize,
		ReceiveMode:    ReceiveModePoll,
		Backoff: backoff.Config{
			MinBackoff: time.Millisecond,
			MaxBackoff: 100 * time.Millisecond,
		},
		Request: DefaultRequestConfig(),
	}
}

func (cfg *Config) Validate() error {
	var errs error
	if err := cfg.Target.Validate(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if cfg.Workers < 0 {
		errs = multierror.Append(errs, fmt.Errorf("workers must not be negative, got %d", cfg.Workers))
	}
	if cfg.Concurrency < 0 {
		errs = multierror.Append(errs, fmt.Errorf("concurrency must not be negative, got %d", cfg.Concurrency))
	}
	if cfg.ChunkSize <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize))
	}
	if cfg.MaxResponseBytes < 0 {
		errs = multierror.Append(errs, fmt.Errorf("max response bytes must not be negative, got %d", cfg.MaxResponseBytes))
	}
	for name, d := range map[string]time.Duration{
		"connect timeout": cfg.ConnectTimeout,
		"write timeout":   cfg.WriteTimeout,
		"read timeout":    cfg.ReadTimeout,
	} {
		if d < 0 {
			errs = multierror.Append(errs, fmt.Errorf("%s must not be negative, got %s", name, d))
		}
	}
	switch cfg.ReceiveMode {
	case ReceiveModePoll, ReceiveModeSpin:
	case ReceiveModeBackoff:
		if cfg.Backoff.MinBackoff <= 0 || cfg.Backoff.MaxBackoff < cfg.Backoff.MinBackoff {
			errs = multierror.Append(errs, fmt.Errorf("invalid backoff periods min=%s max=%s", cfg.Backoff.MinBackoff, cfg.Backoff.MaxBackoff))
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown receive mode %q", cfg.ReceiveMode))
	}
	if err := cfg.Request.Validate(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs
}

// concurrencyLimit returns how many workers may run at once for a run of n
// workers.
func (cfg *Config) concurrencyLimit(n int) int {
	if limit := int(cfg.Concurrency); limit > 0 && limit < n {
		return limit
	}
	return n
}

// WithDefaults fills unset tuning fields so a zero Config is usable.
func (cfg Config) WithDefaults() Config {
	def := DefaultConfig()
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.ReceiveMode == "" {
		cfg.ReceiveMode = def.ReceiveMode
	}
	if cfg.Backoff.MinBackoff == 0 && cfg.Backoff.MaxBackoff == 0 {
		cfg.Backoff = def.Backoff
	}
	return cfg
}
