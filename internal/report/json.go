package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/wesleyorama2/stampede/internal/stress"
	"github.com/wesleyorama2/stampede/internal/stress/engine"
	"github.com/wesleyorama2/stampede/internal/stress/stats"
)

// Report is the machine-readable form of a run result.
type Report struct {
	RunID      string          `json:"runId"`
	State      stress.RunState `json:"state"`
	Incomplete bool            `json:"incomplete"`
	Error      string          `json:"error,omitempty"`
	Seed       int64           `json:"seed"`
	Dispatched uint64          `json:"dispatched"`
	Started    time.Time       `json:"started"`
	ElapsedMs  int64           `json:"elapsedMs"`
	Stats      *stats.Snapshot `json:"stats"`
}

// NewReport converts a run result into its serializable form.
func NewReport(result *engine.Result) *Report {
	r := &Report{
		RunID:      result.RunID,
		State:      result.State,
		Incomplete: result.Incomplete,
		Seed:       result.Seed,
		Dispatched: result.Dispatched,
		Started:    result.Started,
		ElapsedMs:  result.Elapsed.Milliseconds(),
		Stats:      result.Stats,
	}
	if result.Err != nil {
		r.Error = result.Err.Error()
	}
	return r
}

// WriteJSON writes the result as indented JSON.
func WriteJSON(w io.Writer, result *engine.Result) error {
	data, err := json.MarshalIndent(NewReport(result), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
