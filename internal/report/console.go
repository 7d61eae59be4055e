// Package report renders run results for humans and for machines.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/wesleyorama2/stampede/internal/stress"
	"github.com/wesleyorama2/stampede/internal/stress/engine"
	"github.com/wesleyorama2/stampede/internal/stress/stats"
)

// Console writes progress lines and the final summary to a terminal or
// a pipe. Colors are dropped automatically when the writer is not a
// terminal.
type Console struct {
	w      io.Writer
	scheme *ColorScheme
	quiet  bool
}

// NewConsole creates a console reporter.
//
// Parameters:
//   - w: destination, usually os.Stdout
//   - noColor: force plain output even on a terminal
//   - quiet: suppress progress lines; the summary still prints
func NewConsole(w io.Writer, noColor, quiet bool) *Console {
	if w == nil {
		w = os.Stdout
	}
	if !noColor {
		if f, ok := w.(*os.File); ok {
			if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
				noColor = true
			}
		} else {
			noColor = true
		}
	}

	scheme := DefaultColorScheme()
	if noColor {
		scheme = NoColorScheme()
	}
	return &Console{w: w, scheme: scheme, quiet: quiet}
}

// Progress prints a one-line status update. It is safe to call from a
// ticker while the run is in flight.
func (c *Console) Progress(state stress.RunState, snap *stats.Snapshot, inFlight int64) {
	if c.quiet || snap == nil {
		return
	}

	fmt.Fprintf(c.w, "[%s] %s | ops: %s | in-flight: %d | ok: %s fail: %s err: %s | p95: %s | %.1f op/s\n",
		formatDuration(snap.Elapsed),
		state.String(),
		formatCount(snap.Total.Count),
		inFlight,
		formatCount(snap.Total.Successes),
		formatCount(snap.Total.Failures),
		formatCount(snap.Total.Errors),
		formatLatency(snap.Latency.P95),
		snap.Throughput,
	)
}

// Summary prints the final report for a finished run.
func (c *Console) Summary(result *engine.Result) {
	banner := strings.Repeat("━", 64)

	status := "Completed"
	statusColor := c.scheme.Ok
	if result.State == stress.RunAborted {
		status = "ABORTED (partial results)"
		statusColor = c.scheme.Fail
	}

	fmt.Fprintln(c.w)
	fmt.Fprintln(c.w, c.scheme.Banner.Sprint(banner))
	fmt.Fprintf(c.w, "%s: %s\n", c.scheme.Header.Sprint("stampede run "+shortRunID(result.RunID)), statusColor.Sprint(status))
	fmt.Fprintln(c.w, c.scheme.Banner.Sprint(banner))
	fmt.Fprintln(c.w)

	fmt.Fprintf(c.w, "Duration:    %s\n", formatDuration(result.Elapsed))
	fmt.Fprintf(c.w, "Seed:        %d\n", result.Seed)
	fmt.Fprintf(c.w, "Dispatched:  %s\n", formatCount(int64(result.Dispatched)))
	if result.Err != nil {
		fmt.Fprintf(c.w, "Cause:       %s\n", c.scheme.Fail.Sprint(result.Err.Error()))
	}
	fmt.Fprintln(c.w)

	if result.Stats == nil || result.Stats.Total.Count == 0 {
		fmt.Fprintln(c.w, c.scheme.Muted.Sprint("No operations completed."))
		return
	}
	snap := result.Stats

	c.printTable(snap)
	c.printErrors(snap)

	rate := successRate(snap.Total)
	rateColor := c.scheme.Ok
	if rate < 0.99 {
		rateColor = c.scheme.Warn
	}
	if rate < 0.95 {
		rateColor = c.scheme.Fail
	}
	fmt.Fprintf(c.w, "Success rate: %s | Throughput: %.1f op/s\n",
		rateColor.Sprintf("%.1f%%", rate*100),
		snap.Throughput,
	)
}

// printTable renders the per-operation breakdown with a totals row.
func (c *Console) printTable(snap *stats.Snapshot) {
	kinds := make([]string, 0, len(snap.Kinds))
	for kind := range snap.Kinds {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	header := fmt.Sprintf("%-22s %9s %9s %9s %7s %8s %8s %8s %8s",
		"OPERATION", "COUNT", "OK", "FAIL", "ERR", "P50", "P95", "P99", "MAX")
	fmt.Fprintln(c.w, c.scheme.Header.Sprint(header))

	for _, kind := range kinds {
		ks := snap.Kinds[kind]
		fmt.Fprintf(c.w, "%s %9s %9s %9s %7s %8s %8s %8s %8s\n",
			c.scheme.Kind.Sprintf("%-22s", kind),
			formatCount(ks.Count),
			formatCount(ks.Successes),
			formatCount(ks.Failures),
			formatCount(ks.Errors),
			formatLatency(ks.Latency.P50),
			formatLatency(ks.Latency.P95),
			formatLatency(ks.Latency.P99),
			formatLatency(ks.Latency.Max),
		)
	}

	fmt.Fprintf(c.w, "%s %9s %9s %9s %7s %8s %8s %8s %8s\n",
		c.scheme.Header.Sprintf("%-22s", "TOTAL"),
		formatCount(snap.Total.Count),
		formatCount(snap.Total.Successes),
		formatCount(snap.Total.Failures),
		formatCount(snap.Total.Errors),
		formatLatency(snap.Latency.P50),
		formatLatency(snap.Latency.P95),
		formatLatency(snap.Latency.P99),
		formatLatency(snap.Latency.Max),
	)
	fmt.Fprintln(c.w)
}

// printErrors lists the first error sample captured for each operation
// that saw one.
func (c *Console) printErrors(snap *stats.Snapshot) {
	kinds := make([]string, 0, len(snap.Kinds))
	for kind, ks := range snap.Kinds {
		if ks.FirstError != nil {
			kinds = append(kinds, kind)
		}
	}
	if len(kinds) == 0 {
		return
	}
	sort.Strings(kinds)

	fmt.Fprintln(c.w, c.scheme.Header.Sprint("First errors:"))
	for _, kind := range kinds {
		sample := snap.Kinds[kind].FirstError
		detail := sample.Reason
		if sample.Err != "" {
			detail = sample.Err
		}
		fmt.Fprintf(c.w, "  %s %s seq %d (%s): %s\n",
			c.scheme.Fail.Sprint("✗"),
			kind,
			sample.Seq,
			sample.Target,
			detail,
		)
	}
	fmt.Fprintln(c.w)
}

func successRate(total stats.Counts) float64 {
	if total.Count == 0 {
		return 0
	}
	return float64(total.Successes) / float64(total.Count)
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatDuration renders an elapsed time at a precision fit for the
// magnitude.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// formatLatency renders a latency value compactly for table cells.
func formatLatency(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

// formatCount renders a count with thousands separators.
func formatCount(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}
