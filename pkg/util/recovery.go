package util

import (
	"fmt"
	"runtime"

	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const maxStacksize = 8 * 1024

var panicTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "connburst",
	Name:      "panic_total",
	Help:      "The total number of panic triggered",
})

// PanicError converts a recovered value into an error, logging the stack of
// the panicking goroutine.
func PanicError(p interface{}) error {
	stack := make([]byte, maxStacksize)
	stack = stack[:runtime.Stack(stack, false)]
	level.Error(Logger).Log("msg", "panic recovered", "panic", fmt.Sprint(p), "stack", string(stack))
	panicTotal.Inc()
	return fmt.Errorf("panic: %v", p)
}

// RecoverPanic is a helper function to recover from panic and return an error.
func RecoverPanic(f func() error) func() error {
	return func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = PanicError(p)
			}
		}()
		return f()
	}
}
