package report

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/connburst/pkg/harness"
	"github.com/grafana/connburst/pkg/socket"
)

var (
	target  = harness.Target{Host: "127.0.0.1", Port: 8080}
	results = []harness.Result{
		{
			TaskID:    0,
			State:     harness.StateClosed,
			Response:  []byte("HTTP/1.1 200 OK\r\n\r\nhi"),
			BytesSent: 40,
			Chunks:    1,
			Duration:  12 * time.Millisecond,
		},
		{
			TaskID:    1,
			State:     harness.StateFailed,
			BytesSent: 40,
			Duration:  100 * time.Millisecond,
			Failure:   &harness.Failure{Phase: harness.PhaseReceive, Cause: socket.ErrTimeout},
		},
		{
			TaskID:   2,
			State:    harness.StateFailed,
			Duration: time.Millisecond,
			Failure:  &harness.Failure{Phase: harness.PhaseConnect, Cause: errors.New("connection refused")},
		},
	}
)

func Test_WriteConsole(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, target, results, Options{Format: FormatConsole}))
	out := buf.String()

	assert.Contains(t, out, "Connections to 127.0.0.1:8080\n")
	assert.Contains(t, out, "worker 0: closed after 12ms (sent 40 B, received 22 B in 1 chunks)\n")
	assert.Contains(t, out, "worker 1: failed after 100ms: receive error: i/o deadline exceeded")
	assert.Contains(t, out, "worker 2: failed after 1ms: connect error: connection refused")
	assert.Contains(t, out, "3 connections, 80 B sent, 22 B received, slowest 100ms\n")
	assert.NotContains(t, out, "HTTP/1.1 200 OK")
	assert.NotContains(t, out, "\x1b[", "colors must be disabled")

	// Table headers are upper-cased by tablewriter.
	assert.Contains(t, out, "CONNECTIONS")
	assert.Regexp(t, `\|\s+failed\s+\|\s+receive\s+\|\s+1\s+\|`, out)
}

func Test_WriteConsole_PrintResponses(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, target, results, Options{PrintResponses: true}))
	assert.Contains(t, buf.String(), "HTTP/1.1 200 OK\r\n\r\nhi\n")
}

func Test_WriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, target, results, Options{Format: FormatJSON, PrintResponses: true}))

	var out jsonReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "127.0.0.1:8080", out.Target)
	require.Len(t, out.Workers, 3)

	assert.Equal(t, jsonWorker{
		ID:              0,
		State:           "closed",
		BytesSent:       40,
		BytesReceived:   22,
		Chunks:          1,
		DurationSeconds: 0.012,
		Response:        "HTTP/1.1 200 OK\r\n\r\nhi",
	}, out.Workers[0])
	assert.Equal(t, "receive", out.Workers[1].Phase)
	assert.Equal(t, socket.ErrTimeout.Error(), out.Workers[1].Error)

	assert.Equal(t, jsonSummary{
		Total:          3,
		Closed:         1,
		Failed:         2,
		FailedByPhase:  map[string]int{"receive": 1, "connect": 1},
		BytesSent:      80,
		BytesReceived:  22,
		SlowestSeconds: 0.1,
	}, out.Summary)
}

func Test_WriteUnknownFormat(t *testing.T) {
	require.Error(t, Write(&bytes.Buffer{}, target, results, Options{Format: "xml"}))
}

func Test_IsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))
}
