package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/wesleyorama2/stampede/internal/stress"
	"github.com/wesleyorama2/stampede/internal/stress/engine"
	"github.com/wesleyorama2/stampede/internal/stress/stats"
)

func sampleResult(state stress.RunState) *engine.Result {
	return &engine.Result{
		RunID:      "0c9f2ab4-1111-2222-3333-444455556666",
		State:      state,
		Seed:       42,
		Dispatched: 1500,
		Started:    time.Now(),
		Elapsed:    90 * time.Second,
		Stats: &stats.Snapshot{
			Kinds: map[string]stats.KindStats{
				"instance-start": {
					Count:     1000,
					Successes: 950,
					Failures:  45,
					Errors:    5,
					Latency: stats.LatencyStats{
						P50: 120 * time.Millisecond,
						P95: 300 * time.Millisecond,
						P99: 450 * time.Millisecond,
						Max: 2 * time.Second,
					},
					FirstError: &stats.ErrorSample{
						Seq:    412,
						Target: "inst3",
						Reason: "retries exhausted",
						Err:    "retries exhausted after 3 attempts: status 500",
					},
				},
				"disk-create": {
					Count:     500,
					Successes: 500,
					Latency: stats.LatencyStats{
						P50: 80 * time.Millisecond,
						P95: 150 * time.Millisecond,
						P99: 200 * time.Millisecond,
						Max: 900 * time.Millisecond,
					},
				},
			},
			Total: stats.Counts{Count: 1500, Successes: 1450, Failures: 45, Errors: 5},
			Latency: stats.LatencyStats{
				P50: 110 * time.Millisecond,
				P95: 280 * time.Millisecond,
				P99: 430 * time.Millisecond,
				Max: 2 * time.Second,
			},
			Elapsed:    90 * time.Second,
			Throughput: 16.7,
		},
	}
}

func TestConsoleSummary(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, true, false)
	c.Summary(sampleResult(stress.RunCompleted))

	out := buf.String()
	for _, want := range []string{
		"stampede run 0c9f2ab4",
		"Completed",
		"Seed:        42",
		"Dispatched:  1,500",
		"instance-start",
		"disk-create",
		"TOTAL",
		"First errors:",
		"seq 412 (inst3)",
		"Success rate:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected summary to contain %q, got:\n%s", want, out)
		}
	}

	// Operations sort alphabetically.
	if strings.Index(out, "disk-create") > strings.Index(out, "instance-start") {
		t.Error("Expected operations sorted by name")
	}
}

func TestConsoleSummaryAborted(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, true, false)

	result := sampleResult(stress.RunAborted)
	result.Incomplete = true
	c.Summary(result)

	if !strings.Contains(buf.String(), "ABORTED (partial results)") {
		t.Errorf("Expected aborted banner, got:\n%s", buf.String())
	}
}

func TestConsoleSummaryEmptyStats(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, true, false)

	result := sampleResult(stress.RunAborted)
	result.Stats = &stats.Snapshot{}
	c.Summary(result)

	if !strings.Contains(buf.String(), "No operations completed.") {
		t.Errorf("Expected empty-stats message, got:\n%s", buf.String())
	}
}

func TestConsoleProgress(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, true, false)

	c.Progress(stress.RunRunning, &stats.Snapshot{
		Total:      stats.Counts{Count: 1234, Successes: 1200, Failures: 30, Errors: 4},
		Latency:    stats.LatencyStats{P95: 210 * time.Millisecond},
		Elapsed:    12300 * time.Millisecond,
		Throughput: 99.2,
	}, 8)

	out := buf.String()
	for _, want := range []string{"running", "ops: 1,234", "in-flight: 8", "p95: 210ms", "99.2 op/s"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected progress line to contain %q, got: %s", want, out)
		}
	}
}

func TestConsoleQuietSuppressesProgress(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, true, true)

	c.Progress(stress.RunRunning, &stats.Snapshot{}, 0)
	if buf.Len() != 0 {
		t.Errorf("Expected no progress output in quiet mode, got: %s", buf.String())
	}

	// The summary still prints.
	c.Summary(sampleResult(stress.RunCompleted))
	if buf.Len() == 0 {
		t.Error("Expected summary output in quiet mode")
	}
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
	}
	for _, tt := range tests {
		if got := formatCount(tt.n); got != tt.want {
			t.Errorf("formatCount(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFormatLatency(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "-"},
		{250 * time.Microsecond, "250µs"},
		{42 * time.Millisecond, "42ms"},
		{1500 * time.Millisecond, "1.50s"},
	}
	for _, tt := range tests {
		if got := formatLatency(tt.d); got != tt.want {
			t.Errorf("formatLatency(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
