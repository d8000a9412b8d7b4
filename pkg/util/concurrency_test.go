package util

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrencyLimit(t *testing.T) {
	for _, tc := range []struct {
		in       string
		expected ConcurrencyLimit
		err      bool
	}{
		{in: "", expected: 0},
		{in: "0", expected: 0},
		{in: "16", expected: 16},
		{in: "auto", expected: ConcurrencyLimit(runtime.GOMAXPROCS(-1))},
		{in: "-1", err: true},
		{in: "many", err: true},
	} {
		t.Run(tc.in, func(t *testing.T) {
			var c ConcurrencyLimit
			err := c.UnmarshalText([]byte(tc.in))
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, c)
		})
	}
}
