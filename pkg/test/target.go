package test

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

// Handler scripts the behaviour of a Target for one accepted connection.
// The connection is closed once the handler returns. done is closed when the
// target stops.
type Handler func(s *Target, conn *net.TCPConn, done <-chan struct{})

// Target is a local TCP server used as the peer of harness workers.
type Target struct {
	t        testing.TB
	listener *net.TCPListener
	handler  Handler
	done     chan struct{}
	wg       sync.WaitGroup
	accepted atomic.Int64

	mu       sync.Mutex
	requests [][]byte
}

// NewTarget starts a Target on 127.0.0.1 and stops it when the test ends.
func NewTarget(t testing.TB, handler Handler) *Target {
	t.Helper()
	l, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	s := &Target{
		t:        t,
		listener: l,
		handler:  handler,
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

func (s *Target) Host() string { return "127.0.0.1" }

func (s *Target) Port() int { return s.listener.Addr().(*net.TCPAddr).Port }

// Accepted returns the number of connections accepted so far.
func (s *Target) Accepted() int { return int(s.accepted.Load()) }

// Requests returns the raw requests read by ReadRequest-based handlers.
func (s *Target) Requests() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.requests...)
}

func (s *Target) Close() {
	select {
	case <-s.done:
		return
	default:
	}
	close(s.done)
	_ = s.listener.Close()
	s.wg.Wait()
}

func (s *Target) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.AcceptTCP()
		if err != nil {
			return
		}
		s.accepted.Inc()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handler(s, conn, s.done)
		}()
	}
}

// ReadRequest consumes one HTTP request from conn, body included, and
// records its raw bytes.
func (s *Target) ReadRequest(conn net.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	var raw bytes.Buffer
	req, err := http.ReadRequest(bufio.NewReader(io.TeeReader(conn, &raw)))
	if err != nil {
		return err
	}
	if _, err := io.Copy(io.Discard, req.Body); err != nil {
		return err
	}
	s.mu.Lock()
	s.requests = append(s.requests, raw.Bytes())
	s.mu.Unlock()
	return nil
}

// RespondAndClose reads the request, writes response in one go and closes.
func RespondAndClose(response []byte) Handler {
	return RespondInChunks(0, response)
}

// RespondInChunks reads the request, then writes every chunk separately,
// pausing between them, and closes.
func RespondInChunks(pause time.Duration, chunks ...[]byte) Handler {
	return func(s *Target, conn *net.TCPConn, done <-chan struct{}) {
		if err := s.ReadRequest(conn); err != nil {
			s.t.Logf("target: reading request: %v", err)
			return
		}
		_ = conn.SetNoDelay(true)
		for i, chunk := range chunks {
			if i > 0 && pause > 0 {
				select {
				case <-time.After(pause):
				case <-done:
					return
				}
			}
			if _, err := conn.Write(chunk); err != nil {
				return
			}
		}
		_ = conn.CloseWrite()
	}
}

// Hold reads the request and then neither writes nor closes until the
// target stops or release is closed.
func Hold(release <-chan struct{}) Handler {
	return func(s *Target, conn *net.TCPConn, done <-chan struct{}) {
		_ = s.ReadRequest(conn)
		select {
		case <-release:
		case <-done:
		}
	}
}

// Reset closes the connection with an RST right after reading the request.
func Reset() Handler {
	return func(s *Target, conn *net.TCPConn, _ <-chan struct{}) {
		_ = s.ReadRequest(conn)
		_ = conn.SetLinger(0)
	}
}
