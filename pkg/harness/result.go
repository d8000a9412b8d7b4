package harness

import (
	"errors"
	"fmt"
	"time"
)

// State is a step of the connection lifecycle.
type State int

const (
	StateInit State = iota
	StateConnecting
	StateSending
	StateReceiving
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConnecting:
		return "connecting"
	case StateSending:
		return "sending"
	case StateReceiving:
		return "receiving"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition can happen from s.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Phase names the lifecycle step a failure happened in.
type Phase string

const (
	PhaseConnect Phase = "connect"
	PhaseSend    Phase = "send"
	PhaseReceive Phase = "receive"
	// PhaseUnknown is the catch-all for faults outside the regular I/O
	// paths, such as a recovered panic.
	PhaseUnknown Phase = "unknown"
)

// Phases lists every phase in lifecycle order.
var Phases = []Phase{PhaseConnect, PhaseSend, PhaseReceive, PhaseUnknown}

// ErrResponseTooLarge is the cause recorded when a response exceeds the
// configured maximum size.
var ErrResponseTooLarge = errors.New("response exceeds maximum size")

// Failure records why a worker ended in StateFailed.
type Failure struct {
	Phase Phase
	Cause error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s error: %v", f.Phase, f.Cause)
}

func (f *Failure) Unwrap() error { return f.Cause }

func IsConnectError(err error) bool { return isPhase(err, PhaseConnect) }
func IsSendError(err error) bool    { return isPhase(err, PhaseSend) }
func IsReceiveError(err error) bool { return isPhase(err, PhaseReceive) }

func isPhase(err error, p Phase) bool {
	var f *Failure
	return errors.As(err, &f) && f.Phase == p
}

// Result is the outcome of one worker.
type Result struct {
	TaskID   int
	State    State
	Response []byte
	// Failure is set if and only if State is StateFailed.
	Failure *Failure

	BytesSent  int
	Chunks     int
	WouldBlock int

	StartedAt time.Time
	Connected time.Duration
	FirstByte time.Duration
	Duration  time.Duration

	finalized bool
}

// Err returns the failure as an error, or nil for a closed connection.
func (r *Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}
