package harness

import (
	"context"
	"errors"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/backoff"

	"github.com/grafana/connburst/pkg/socket"
	"github.com/grafana/connburst/pkg/util"
)

// ctxCheckInterval bounds a single readiness wait so that cancellation is
// noticed while parked on the poller.
const ctxCheckInterval = 100 * time.Millisecond

type conn interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	Err() error
	WaitWritable(deadline time.Time) error
	WaitReadable(deadline time.Time) error
	Close() error
}

type dialFunc func(addr socket.Addr) (conn, bool, error)

func dialSocket(addr socket.Addr) (conn, bool, error) {
	c, inProgress, err := socket.Dial(addr)
	if err != nil {
		return nil, false, err
	}
	return c, inProgress, nil
}

// Worker runs the lifecycle of a single connection:
// connecting, sending, receiving, then closed or failed.
type Worker struct {
	task     Task
	cfg      Config
	logger   log.Logger
	metrics  *metrics
	dial     dialFunc
	resolver Resolver

	state     State
	connected bool
	result    Result
}

func newWorker(task Task, cfg Config, logger log.Logger, m *metrics, dial dialFunc, resolver Resolver) *Worker {
	if dial == nil {
		dial = dialSocket
	}
	return &Worker{
		task:     task,
		cfg:      cfg,
		logger:   log.With(logger, "task", task.ID),
		metrics:  m,
		dial:     dial,
		resolver: resolver,
	}
}

// Run executes the lifecycle and returns the finalized result. It never
// returns an error: every failure is recorded in the result.
func (w *Worker) Run(ctx context.Context) (res Result) {
	w.result = Result{TaskID: w.task.ID, State: StateInit, StartedAt: time.Now()}
	w.metrics.connectionsStarted.Inc()

	defer func() {
		if p := recover(); p != nil {
			w.fail(PhaseUnknown, util.PanicError(p))
		}
		w.finish()
		res = w.result
	}()

	c, err := w.connect(ctx)
	if err != nil {
		w.fail(PhaseConnect, err)
		return
	}
	defer func() {
		if err := c.Close(); err != nil {
			level.Warn(w.logger).Log("msg", "failed to close socket", "err", err)
		}
	}()

	if f := w.send(ctx, c); f != nil {
		w.fail(f.Phase, f.Cause)
		return
	}
	if f := w.receive(ctx, c); f != nil {
		w.fail(f.Phase, f.Cause)
		return
	}
	w.transition(StateClosed)
	return
}

func (w *Worker) connect(ctx context.Context) (conn, error) {
	w.transition(StateConnecting)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addr, err := w.task.Target.Resolve(ctx, w.resolver)
	if err != nil {
		return nil, err
	}
	c, inProgress, err := w.dial(addr)
	if err != nil {
		return nil, err
	}
	if !inProgress {
		w.markConnected()
	}
	level.Debug(w.logger).Log("msg", "connect initiated", "addr", addr, "in_progress", inProgress)
	return c, nil
}

func (w *Worker) send(ctx context.Context, c conn) *Failure {
	w.transition(StateSending)
	payload := w.task.Payload
	for len(payload) > 0 {
		if err := ctx.Err(); err != nil {
			return w.sendFailure(err)
		}
		n, err := c.Write(payload)
		if n > 0 {
			payload = payload[n:]
			w.result.BytesSent += n
			w.metrics.bytesSent.Add(float64(n))
			w.markConnected()
		}
		switch {
		case err == nil:
		case socket.IsWouldBlock(err):
			w.result.WouldBlock++
			w.metrics.wouldBlock.WithLabelValues(string(PhaseSend)).Inc()
			if err := w.wait(ctx, c.WaitWritable, w.writeDeadline()); err != nil {
				return w.sendFailure(err)
			}
			if f := w.checkPendingConnect(c); f != nil {
				return f
			}
		default:
			return w.sendFailure(err)
		}
	}
	if !w.connected {
		// Nothing confirmed the connection yet (empty payload).
		if err := w.wait(ctx, c.WaitWritable, w.writeDeadline()); err != nil {
			return &Failure{Phase: PhaseConnect, Cause: err}
		}
		if f := w.checkPendingConnect(c); f != nil {
			return f
		}
	}
	level.Debug(w.logger).Log("msg", "request sent", "bytes", w.result.BytesSent)
	return nil
}

// checkPendingConnect reports the outcome of an asynchronous connect once
// the socket became writable.
func (w *Worker) checkPendingConnect(c conn) *Failure {
	if w.connected {
		return nil
	}
	if err := c.Err(); err != nil {
		return &Failure{Phase: PhaseConnect, Cause: err}
	}
	w.markConnected()
	return nil
}

func (w *Worker) sendFailure(err error) *Failure {
	if !w.connected {
		return &Failure{Phase: PhaseConnect, Cause: err}
	}
	return &Failure{Phase: PhaseSend, Cause: err}
}

func (w *Worker) receive(ctx context.Context, c conn) *Failure {
	w.transition(StateReceiving)
	var (
		buf      = make([]byte, w.cfg.ChunkSize)
		deadline = w.readDeadline()
		retries  *backoff.Backoff
	)
	if w.cfg.ReceiveMode == ReceiveModeBackoff {
		retries = backoff.New(ctx, w.cfg.Backoff)
	}

	for {
		n, err := c.Read(buf)
		switch {
		case err == nil && n == 0:
			level.Debug(w.logger).Log("msg", "peer closed the connection", "bytes", len(w.result.Response), "chunks", w.result.Chunks)
			return nil

		case err == nil:
			if f := w.appendChunk(buf[:n]); f != nil {
				return f
			}
			deadline = w.readDeadline()
			if retries != nil {
				retries.Reset()
			}

		case socket.IsWouldBlock(err):
			w.result.WouldBlock++
			w.metrics.wouldBlock.WithLabelValues(string(PhaseReceive)).Inc()
			if !deadline.IsZero() && !time.Now().Before(deadline) {
				return &Failure{Phase: PhaseReceive, Cause: socket.ErrTimeout}
			}
			if err := w.awaitReadable(ctx, c, deadline, retries); err != nil {
				return &Failure{Phase: PhaseReceive, Cause: err}
			}

		default:
			return &Failure{Phase: PhaseReceive, Cause: err}
		}
	}
}

func (w *Worker) awaitReadable(ctx context.Context, c conn, deadline time.Time, retries *backoff.Backoff) error {
	switch w.cfg.ReceiveMode {
	case ReceiveModeSpin:
		return ctx.Err()
	case ReceiveModeBackoff:
		if !retries.Ongoing() {
			return retries.Err()
		}
		retries.Wait()
		return ctx.Err()
	default:
		return w.wait(ctx, c.WaitReadable, deadline)
	}
}

func (w *Worker) appendChunk(chunk []byte) *Failure {
	if w.result.FirstByte == 0 {
		w.result.FirstByte = time.Since(w.result.StartedAt)
		w.metrics.timeToFirstByte.Observe(w.result.FirstByte.Seconds())
		level.Debug(w.logger).Log("msg", "received response", "first_byte", w.result.FirstByte)
	}
	w.markConnected()

	var tooLarge bool
	if limit := w.cfg.MaxResponseBytes; limit > 0 && len(w.result.Response)+len(chunk) > limit {
		chunk = chunk[:limit-len(w.result.Response)]
		tooLarge = true
	}
	if len(chunk) > 0 {
		w.result.Response = append(w.result.Response, chunk...)
		w.result.Chunks++
		w.metrics.chunksReceived.Inc()
		w.metrics.bytesReceived.Add(float64(len(chunk)))
	}
	if tooLarge {
		return &Failure{Phase: PhaseReceive, Cause: ErrResponseTooLarge}
	}
	return nil
}

// wait calls fn until it reports readiness, the deadline passes, or ctx is
// done. A zero deadline only stops on readiness or cancellation.
func (w *Worker) wait(ctx context.Context, fn func(time.Time) error, deadline time.Time) error {
	if ctx.Done() == nil {
		return fn(deadline)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		step := time.Now().Add(ctxCheckInterval)
		if !deadline.IsZero() && deadline.Before(step) {
			step = deadline
		}
		err := fn(step)
		if errors.Is(err, socket.ErrTimeout) && (deadline.IsZero() || time.Now().Before(deadline)) {
			continue
		}
		return err
	}
}

func (w *Worker) writeDeadline() time.Time {
	if !w.connected {
		if w.cfg.ConnectTimeout <= 0 {
			return time.Time{}
		}
		return w.result.StartedAt.Add(w.cfg.ConnectTimeout)
	}
	if w.cfg.WriteTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(w.cfg.WriteTimeout)
}

func (w *Worker) readDeadline() time.Time {
	if w.cfg.ReadTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(w.cfg.ReadTimeout)
}

func (w *Worker) markConnected() {
	if w.connected {
		return
	}
	w.connected = true
	w.result.Connected = time.Since(w.result.StartedAt)
	level.Debug(w.logger).Log("msg", "connected", "after", w.result.Connected)
}

func (w *Worker) transition(to State) {
	if w.state.Terminal() {
		return
	}
	from := w.state
	if from != StateInit {
		w.metrics.connectionsInFlight.WithLabelValues(from.String()).Dec()
	}
	if !to.Terminal() {
		w.metrics.connectionsInFlight.WithLabelValues(to.String()).Inc()
	}
	w.state = to
	w.result.State = to
}

func (w *Worker) fail(phase Phase, cause error) {
	if w.state.Terminal() {
		return
	}
	w.result.Failure = &Failure{Phase: phase, Cause: cause}
	w.transition(StateFailed)
}

func (w *Worker) finish() {
	if w.result.finalized {
		return
	}
	if !w.state.Terminal() {
		w.fail(PhaseUnknown, errors.New("worker stopped in a non-terminal state"))
	}
	w.result.finalized = true
	w.result.Duration = time.Since(w.result.StartedAt)

	phase := ""
	if w.result.Failure != nil {
		phase = string(w.result.Failure.Phase)
	}
	w.metrics.connectionsCompleted.WithLabelValues(w.state.String(), phase).Inc()
	w.metrics.connectionDuration.WithLabelValues(w.state.String()).Observe(w.result.Duration.Seconds())

	if w.result.Failure != nil {
		level.Debug(w.logger).Log("msg", "connection failed", "phase", phase, "err", w.result.Failure.Cause, "duration", w.result.Duration)
		return
	}
	level.Debug(w.logger).Log("msg", "connection closed", "bytes", len(w.result.Response), "duration", w.result.Duration)
}
