// SPDX-License-Identifier: AGPL-3.0-only

package test

import (
	"bytes"
	"testing"

	"github.com/go-kit/log"
)

type testingWriter struct {
	t testing.TB
}

func (w testingWriter) Write(p []byte) (int, error) {
	w.t.Log(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}

// NewTestingLogger returns a logfmt logger writing to the test log, so the
// output is only shown for failed or verbose tests.
func NewTestingLogger(t testing.TB) log.Logger {
	return log.NewLogfmtLogger(log.NewSyncWriter(testingWriter{t: t}))
}
