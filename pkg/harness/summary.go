package harness

import (
	"fmt"
	"time"

	"github.com/grafana/dskit/multierror"
	"github.com/samber/lo"
)

// Summary aggregates the results of a run. Nothing in the harness requires
// it; it exists for reporting layers.
type Summary struct {
	Total         int
	Closed        int
	Failed        int
	ByPhase       map[Phase]int
	BytesSent     int
	BytesReceived int
	// Slowest is the longest connection lifecycle of the run.
	Slowest time.Duration

	errs multierror.MultiError
}

func Summarize(results []Result) Summary {
	s := Summary{
		Total:   len(results),
		ByPhase: make(map[Phase]int, len(Phases)),
	}
	s.Closed = lo.CountBy(results, func(r Result) bool { return r.State == StateClosed })
	s.Failed = lo.CountBy(results, func(r Result) bool { return r.State == StateFailed })
	s.BytesSent = lo.SumBy(results, func(r Result) int { return r.BytesSent })
	s.BytesReceived = lo.SumBy(results, func(r Result) int { return len(r.Response) })
	for _, r := range results {
		if r.Duration > s.Slowest {
			s.Slowest = r.Duration
		}
		if r.Failure != nil {
			s.ByPhase[r.Failure.Phase]++
			s.errs.Add(fmt.Errorf("task %d: %w", r.TaskID, r.Failure))
		}
	}
	return s
}

// Err combines every worker failure, or returns nil if all connections
// closed normally.
func (s Summary) Err() error {
	return s.errs.Err()
}
