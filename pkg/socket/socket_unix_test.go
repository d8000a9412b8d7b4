//go:build linux || darwin

package socket

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/connburst/pkg/test"
)

func listen(t *testing.T) (*net.TCPListener, Addr) {
	t.Helper()
	l, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	addr, err := AddrFrom(l.Addr().(*net.TCPAddr).IP, l.Addr().(*net.TCPAddr).Port)
	require.NoError(t, err)
	return l, addr
}

func dialConnected(t *testing.T, addr Addr) *Conn {
	t.Helper()
	c, inProgress, err := Dial(addr)
	require.NoError(t, err)
	if inProgress {
		require.NoError(t, c.WaitWritable(time.Now().Add(5*time.Second)))
		require.NoError(t, c.Err())
	}
	return c
}

func Test_AddrFrom(t *testing.T) {
	a, err := AddrFrom(net.ParseIP("10.1.2.3"), 8080)
	require.NoError(t, err)
	assert.Equal(t, "10.1.2.3:8080", a.String())

	_, err = AddrFrom(net.ParseIP("::1"), 8080)
	require.Error(t, err)

	_, err = AddrFrom(net.ParseIP("127.0.0.1"), 0)
	require.Error(t, err)
}

func Test_Expired(t *testing.T) {
	assert.False(t, expired(time.Time{}))
	assert.True(t, expired(time.Now().Add(-time.Second)))
	assert.False(t, expired(time.Now().Add(time.Minute)))
}

func Test_Conn_RoundTrip(t *testing.T) {
	l, addr := listen(t)

	served := make(chan []byte, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 5)
		_, _ = io.ReadFull(conn, buf)
		served <- buf
		_, _ = conn.Write([]byte("world"))
	}()

	c := dialConnected(t, addr)
	defer c.Close()
	assert.Equal(t, addr, c.Addr())

	n, err := c.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, []byte("hello"), <-served)

	var got []byte
	buf := make([]byte, 2)
	for {
		n, err := c.Read(buf)
		if IsWouldBlock(err) {
			require.NoError(t, c.WaitReadable(time.Now().Add(5*time.Second)))
			continue
		}
		require.NoError(t, err)
		if n == 0 {
			break
		}
		got = append(got, buf[:n]...)
	}
	assert.Equal(t, "world", string(got))
}

func Test_Conn_ReadWouldBlock(t *testing.T) {
	l, addr := listen(t)
	go func() {
		conn, err := l.Accept()
		if err == nil {
			time.Sleep(time.Second)
			conn.Close()
		}
	}()

	c := dialConnected(t, addr)
	defer c.Close()

	_, err := c.Read(make([]byte, 16))
	require.Error(t, err)
	assert.True(t, IsWouldBlock(err))

	err = c.WaitReadable(time.Now().Add(20 * time.Millisecond))
	assert.ErrorIs(t, err, ErrTimeout)
}

func Test_Conn_ConnectRefused(t *testing.T) {
	l, addr := listen(t)
	require.NoError(t, l.Close())

	c, inProgress, err := Dial(addr)
	if err != nil {
		// Refused synchronously.
		assert.Nil(t, c)
		return
	}
	defer c.Close()
	require.True(t, inProgress)
	require.NoError(t, c.WaitWritable(time.Now().Add(5*time.Second)))
	assert.Error(t, c.Err())
}

func Test_Conn_CloseOnce(t *testing.T) {
	_, addr := listen(t)
	c := dialConnected(t, addr)

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Close(), ErrClosed)

	_, err := c.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.WaitReadable(time.Time{}), ErrClosed)
	assert.ErrorIs(t, c.Err(), ErrClosed)
}

func Test_Conn_WaitParksGoroutine(t *testing.T) {
	l, addr := listen(t)
	limit := test.LimitThreads(t, 32)
	conns := 4 * limit
	test.RequireOpenFiles(t, 2*conns)

	var (
		peersMu sync.Mutex
		peers   []net.Conn
	)
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			peersMu.Lock()
			peers = append(peers, conn)
			peersMu.Unlock()
		}
	}()
	t.Cleanup(func() {
		peersMu.Lock()
		defer peersMu.Unlock()
		for _, p := range peers {
			_ = p.Close()
		}
	})

	errs := make([]error, conns)
	var wg sync.WaitGroup
	for i := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, inProgress, err := Dial(addr)
			if err != nil {
				errs[i] = err
				return
			}
			defer c.Close()
			if inProgress {
				if err := c.WaitWritable(time.Now().Add(5 * time.Second)); err != nil {
					errs[i] = err
					return
				}
			}
			errs[i] = c.WaitReadable(time.Now().Add(300 * time.Millisecond))
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, ErrTimeout)
	}
	assert.LessOrEqual(t, test.ThreadsCreated(), limit)
}
