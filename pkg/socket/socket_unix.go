//go:build linux || darwin

package socket

import (
	"errors"
	"os"
	"syscall"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// Conn is a non-blocking TCP socket. It is owned by a single goroutine;
// only Close is safe to call concurrently.
//
// The descriptor is registered with the runtime network poller, so a
// goroutine waiting for readiness is parked instead of holding an OS thread.
type Conn struct {
	file   *os.File
	raw    syscall.RawConn
	addr   Addr
	closed atomic.Bool
}

// Dial creates a non-blocking IPv4 TCP socket and starts connecting it to
// addr. When the connect is still in flight, the returned Conn is usable and
// inProgress is true. Any other connect failure releases the socket and
// returns the error.
func Dial(addr Addr) (c *Conn, inProgress bool, err error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, false, err
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, false, err
	}

	// os.NewFile registers descriptors in non-blocking mode with the poller.
	file := os.NewFile(uintptr(fd), "tcp4:"+addr.String())
	raw, err := file.SyscallConn()
	if err != nil {
		_ = file.Close()
		return nil, false, err
	}
	c = &Conn{file: file, raw: raw, addr: addr}

	var connectErr error
	if err := raw.Control(func(fd uintptr) {
		connectErr = unix.Connect(int(fd), &unix.SockaddrInet4{Port: addr.Port, Addr: addr.IP})
	}); err != nil {
		_ = c.Close()
		return nil, false, err
	}
	switch err := connectErr; {
	case err == nil:
		return c, false, nil
	case errors.Is(err, unix.EINPROGRESS), errors.Is(err, unix.EALREADY), errors.Is(err, unix.EINTR):
		return c, true, nil
	case isWouldBlock(err):
		return c, true, nil
	default:
		_ = c.Close()
		return nil, false, err
	}
}

// Addr returns the remote address the socket was dialed to.
func (c *Conn) Addr() Addr { return c.addr }

// Write performs a single non-blocking write. A socket that is not ready
// returns an error for which IsWouldBlock is true.
func (c *Conn) Write(p []byte) (int, error) {
	return c.io(func(fd int) (int, error) { return unix.Write(fd, p) })
}

// Read performs a single non-blocking read. It returns 0, nil when the peer
// closed the connection.
func (c *Conn) Read(p []byte) (int, error) {
	return c.io(func(fd int) (int, error) { return unix.Read(fd, p) })
}

func (c *Conn) io(op func(fd int) (int, error)) (n int, err error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	if cerr := c.raw.Control(func(fd uintptr) {
		for {
			n, err = op(int(fd))
			if !errors.Is(err, unix.EINTR) {
				return
			}
		}
	}); cerr != nil {
		return 0, c.mapErr(cerr)
	}
	if n < 0 {
		n = 0
	}
	return n, err
}

// Err returns and clears the pending socket error (SO_ERROR). It is how the
// outcome of an asynchronous connect is observed.
func (c *Conn) Err() error {
	if c.closed.Load() {
		return ErrClosed
	}
	var (
		v   int
		err error
	)
	if cerr := c.raw.Control(func(fd uintptr) {
		v, err = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_ERROR)
	}); cerr != nil {
		return c.mapErr(cerr)
	}
	if err != nil {
		return err
	}
	if v != 0 {
		return unix.Errno(v)
	}
	return nil
}

// WaitWritable blocks the calling goroutine until the socket can accept more
// data, an error is pending on it, or the deadline passes. A zero deadline
// waits forever.
func (c *Conn) WaitWritable(deadline time.Time) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if expired(deadline) {
		return ErrTimeout
	}
	if err := c.file.SetWriteDeadline(deadline); err != nil {
		return c.mapErr(err)
	}
	return c.mapErr(c.raw.Write(func(fd uintptr) bool { return ready(fd, unix.POLLOUT) }))
}

// WaitReadable blocks the calling goroutine until data or EOF can be read,
// an error is pending on the socket, or the deadline passes. A zero deadline
// waits forever.
func (c *Conn) WaitReadable(deadline time.Time) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if expired(deadline) {
		return ErrTimeout
	}
	if err := c.file.SetReadDeadline(deadline); err != nil {
		return c.mapErr(err)
	}
	return c.mapErr(c.raw.Read(func(fd uintptr) bool { return ready(fd, unix.POLLIN) }))
}

// ready checks readiness without blocking. When it reports false the poller
// parks the goroutine until the next edge on the descriptor.
func ready(fd uintptr, events int16) bool {
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	for {
		n, err := unix.Poll(fds, 0)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		// POLLERR and POLLHUP count as ready: the next read or write
		// surfaces the actual condition. So does a failing poll.
		return err != nil || n > 0
	}
}

func (c *Conn) mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		return ErrTimeout
	case c.closed.Load():
		return ErrClosed
	default:
		return err
	}
}

// Close releases the file descriptor and removes it from the poller. Only
// the first call closes it; later calls return ErrClosed.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	return c.file.Close()
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}
