// Package report renders the results of a harness run for humans (console)
// or machines (JSON).
package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"github.com/grafana/connburst/pkg/harness"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

var Formats = []Format{FormatConsole, FormatJSON}

type Options struct {
	Format Format
	// PrintResponses includes every response body in the output.
	PrintResponses bool
	// Color enables ANSI colors in console output.
	Color bool
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Write renders results to w in the requested format.
func Write(w io.Writer, target harness.Target, results []harness.Result, opts Options) error {
	switch opts.Format {
	case FormatJSON:
		return writeJSON(w, target, results, opts)
	case FormatConsole, "":
		return writeConsole(w, target, results, opts)
	default:
		return fmt.Errorf("unknown output format %q", opts.Format)
	}
}

type palette struct {
	ok, failed, header *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		ok:     color.New(color.FgGreen),
		failed: color.New(color.FgRed),
		header: color.New(color.Bold),
	}
	for _, c := range []*color.Color{p.ok, p.failed, p.header} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func writeConsole(w io.Writer, target harness.Target, results []harness.Result, opts Options) error {
	p := newPalette(opts.Color)
	if _, err := p.header.Fprintf(w, "Connections to %s\n", target); err != nil {
		return err
	}

	for _, r := range results {
		var line string
		if r.Failure != nil {
			line = p.failed.Sprintf("worker %d: %s after %s: %v", r.TaskID, r.State, round(r.Duration), r.Failure)
		} else {
			line = p.ok.Sprintf("worker %d: %s after %s", r.TaskID, r.State, round(r.Duration))
		}
		if _, err := fmt.Fprintf(w, "%s (sent %s, received %s in %d chunks)\n",
			line, humanize.Bytes(uint64(r.BytesSent)), humanize.Bytes(uint64(len(r.Response))), r.Chunks); err != nil {
			return err
		}
		if opts.PrintResponses && len(r.Response) > 0 {
			if _, err := fmt.Fprintf(w, "%s\n", r.Response); err != nil {
				return err
			}
		}
	}

	s := harness.Summarize(results)
	fmt.Fprintln(w)
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"State", "Phase", "Connections"})
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	table.Append([]string{harness.StateClosed.String(), "", strconv.Itoa(s.Closed)})
	for _, phase := range harness.Phases {
		if n := s.ByPhase[phase]; n > 0 {
			table.Append([]string{harness.StateFailed.String(), string(phase), strconv.Itoa(n)})
		}
	}
	table.Render()

	_, err := fmt.Fprintf(w, "%d connections, %s sent, %s received, slowest %s\n",
		s.Total, humanize.Bytes(uint64(s.BytesSent)), humanize.Bytes(uint64(s.BytesReceived)), round(s.Slowest))
	return err
}

func round(d time.Duration) time.Duration {
	if d < time.Millisecond {
		return d.Round(time.Microsecond)
	}
	return d.Round(time.Millisecond)
}

type jsonReport struct {
	Target  string       `json:"target"`
	Workers []jsonWorker `json:"workers"`
	Summary jsonSummary  `json:"summary"`
}

type jsonWorker struct {
	ID               int     `json:"id"`
	State            string  `json:"state"`
	Phase            string  `json:"phase,omitempty"`
	Error            string  `json:"error,omitempty"`
	BytesSent        int     `json:"bytes_sent"`
	BytesReceived    int     `json:"bytes_received"`
	Chunks           int     `json:"chunks"`
	WouldBlock       int     `json:"would_block"`
	ConnectSeconds   float64 `json:"connect_seconds"`
	FirstByteSeconds float64 `json:"first_byte_seconds"`
	DurationSeconds  float64 `json:"duration_seconds"`
	Response         string  `json:"response,omitempty"`
}

type jsonSummary struct {
	Total          int            `json:"total"`
	Closed         int            `json:"closed"`
	Failed         int            `json:"failed"`
	FailedByPhase  map[string]int `json:"failed_by_phase,omitempty"`
	BytesSent      int            `json:"bytes_sent"`
	BytesReceived  int            `json:"bytes_received"`
	SlowestSeconds float64        `json:"slowest_seconds"`
}

func writeJSON(w io.Writer, target harness.Target, results []harness.Result, opts Options) error {
	s := harness.Summarize(results)
	out := jsonReport{
		Target: target.String(),
		Workers: lo.Map(results, func(r harness.Result, _ int) jsonWorker {
			jw := jsonWorker{
				ID:               r.TaskID,
				State:            r.State.String(),
				BytesSent:        r.BytesSent,
				BytesReceived:    len(r.Response),
				Chunks:           r.Chunks,
				WouldBlock:       r.WouldBlock,
				ConnectSeconds:   r.Connected.Seconds(),
				FirstByteSeconds: r.FirstByte.Seconds(),
				DurationSeconds:  r.Duration.Seconds(),
			}
			if r.Failure != nil {
				jw.Phase = string(r.Failure.Phase)
				jw.Error = r.Failure.Cause.Error()
			}
			if opts.PrintResponses {
				jw.Response = string(r.Response)
			}
			return jw
		}),
		Summary: jsonSummary{
			Total:          s.Total,
			Closed:         s.Closed,
			Failed:         s.Failed,
			FailedByPhase:  lo.MapKeys(s.ByPhase, func(_ int, p harness.Phase) string { return string(p) }),
			BytesSent:      s.BytesSent,
			BytesReceived:  s.BytesReceived,
			SlowestSeconds: s.Slowest.Seconds(),
		},
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
