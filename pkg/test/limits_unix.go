//go:build linux || darwin

package test

import (
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"testing"

	"golang.org/x/sys/unix"
)

// LimitThreads lowers the runtime's OS thread limit to the threads already
// created plus GOMAXPROCS plus headroom, and restores it when the test ends.
// Exceeding the limit aborts the test binary. It returns the new limit.
func LimitThreads(t testing.TB, headroom int) int {
	t.Helper()
	limit := pprof.Lookup("threadcreate").Count() + runtime.GOMAXPROCS(0) + headroom
	prev := debug.SetMaxThreads(limit)
	t.Cleanup(func() { debug.SetMaxThreads(prev) })
	return limit
}

// ThreadsCreated returns how many OS threads the runtime created so far.
func ThreadsCreated() int {
	return pprof.Lookup("threadcreate").Count()
}

// RequireOpenFiles skips the test unless the process may open n more
// descriptors.
func RequireOpenFiles(t testing.TB, n int) {
	t.Helper()
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		t.Skipf("reading RLIMIT_NOFILE: %v", err)
	}
	if rlim.Cur < uint64(n)+64 {
		t.Skipf("RLIMIT_NOFILE %d is below the %d descriptors needed", rlim.Cur, n)
	}
}
