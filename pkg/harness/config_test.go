package harness

import (
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/connburst/pkg/util"
)

func Test_Config_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Target.Port = 0
	cfg.Workers = -1
	cfg.ChunkSize = 0
	cfg.ReadTimeout = -time.Second
	cfg.ReceiveMode = "busy"
	err := cfg.Validate()
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 5)
}

func Test_Config_Backoff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReceiveMode = ReceiveModeBackoff
	require.NoError(t, cfg.Validate())

	cfg.Backoff.MinBackoff = 0
	require.Error(t, cfg.Validate())
}

func Test_Config_WithDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()
	assert.Equal(t, DefaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, ReceiveModePoll, cfg.ReceiveMode)
	assert.Equal(t, DefaultConfig().Backoff, cfg.Backoff)
	// Timeouts stay unset: zero means no deadline.
	assert.Zero(t, cfg.ReadTimeout)
}

func Test_Config_ConcurrencyLimit(t *testing.T) {
	for _, tc := range []struct {
		concurrency, workers, expected int
	}{
		{0, 10, 10},
		{4, 10, 4},
		{20, 10, 10},
	} {
		cfg := Config{Concurrency: util.ConcurrencyLimit(tc.concurrency)}
		assert.Equal(t, tc.expected, cfg.concurrencyLimit(tc.workers))
	}
}
