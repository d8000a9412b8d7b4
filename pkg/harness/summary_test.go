package harness

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Summarize(t *testing.T) {
	results := []Result{
		{TaskID: 0, State: StateClosed, Response: []byte("abc"), BytesSent: 10, Duration: time.Second},
		{TaskID: 1, State: StateFailed, BytesSent: 10, Duration: 3 * time.Second,
			Failure: &Failure{Phase: PhaseReceive, Cause: errors.New("reset")}},
		{TaskID: 2, State: StateFailed, Duration: 2 * time.Second,
			Failure: &Failure{Phase: PhaseConnect, Cause: errors.New("refused")}},
	}
	s := Summarize(results)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Closed)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, map[Phase]int{PhaseReceive: 1, PhaseConnect: 1}, s.ByPhase)
	assert.Equal(t, 20, s.BytesSent)
	assert.Equal(t, 3, s.BytesReceived)
	assert.Equal(t, 3*time.Second, s.Slowest)

	err := s.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task 1: receive error: reset")
	assert.Contains(t, err.Error(), "task 2: connect error: refused")
}

func Test_Summarize_AllClosed(t *testing.T) {
	s := Summarize([]Result{{State: StateClosed}, {State: StateClosed}})
	assert.Equal(t, 2, s.Closed)
	assert.NoError(t, s.Err())
	assert.Empty(t, s.ByPhase)
}
