// Package socket wraps a single IPv4 TCP file descriptor in non-blocking
// mode. It exposes the raw connect/read/write results (including
// would-block) and explicit readiness waits, so callers decide how to react
// to a socket that is not ready yet. Waits park the goroutine on the runtime
// network poller.
package socket

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

var (
	// ErrTimeout is returned by the readiness waits when the deadline passes
	// before the socket becomes ready.
	ErrTimeout = errors.New("i/o deadline exceeded")

	// ErrClosed is returned by operations on a socket that was already
	// released.
	ErrClosed = errors.New("socket already closed")

	// ErrUnsupported is returned by Dial on platforms without the
	// non-blocking socket implementation.
	ErrUnsupported = errors.New("non-blocking sockets are not supported on this platform")
)

// Addr is a resolved IPv4 TCP endpoint.
type Addr struct {
	IP   [4]byte
	Port int
}

func (a Addr) String() string {
	return net.JoinHostPort(net.IP(a.IP[:]).String(), strconv.Itoa(a.Port))
}

// AddrFrom converts an IP to an Addr. Only IPv4 addresses are accepted.
func AddrFrom(ip net.IP, port int) (Addr, error) {
	v4 := ip.To4()
	if v4 == nil {
		return Addr{}, fmt.Errorf("%s is not an IPv4 address", ip)
	}
	if port <= 0 || port > 65535 {
		return Addr{}, fmt.Errorf("invalid port %d", port)
	}
	var a Addr
	copy(a.IP[:], v4)
	a.Port = port
	return a, nil
}

// IsWouldBlock reports whether err means the operation could not complete
// without blocking and should be retried once the socket is ready.
func IsWouldBlock(err error) bool {
	return isWouldBlock(err)
}

// expired reports whether a non-zero deadline already passed.
func expired(deadline time.Time) bool {
	return !deadline.IsZero() && !time.Now().Before(deadline)
}
