package test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// FreePorts reserves n distinct loopback ports and releases them all before
// returning. Nothing guarantees they stay free afterwards.
func FreePorts(n int) ([]int, error) {
	ports := make([]int, 0, n)
	listeners := make([]*net.TCPListener, 0, n)
	defer func() {
		for _, l := range listeners {
			_ = l.Close()
		}
	}()
	for len(ports) < n {
		l, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
		if err != nil {
			return nil, err
		}
		listeners = append(listeners, l)
		ports = append(ports, l.Addr().(*net.TCPAddr).Port)
	}
	return ports, nil
}

// ClosedPort returns a loopback port nothing listens on.
func ClosedPort(t testing.TB) int {
	t.Helper()
	ports, err := FreePorts(1)
	require.NoError(t, err)
	return ports[0]
}
