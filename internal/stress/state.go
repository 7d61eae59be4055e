package stress

// RunState is the lifecycle state of a run. Transitions are strictly
// forward: Pending -> Running -> Draining -> Completed or Aborted. A
// terminal state is never left.
type RunState int32

const (
	// RunPending indicates the run is configured but not yet started.
	RunPending RunState = iota
	// RunRunning indicates the run is dispatching operations.
	RunRunning
	// RunDraining indicates dispatch has stopped and in-flight operations
	// are being allowed to finish.
	RunDraining
	// RunCompleted indicates the run finished normally.
	RunCompleted
	// RunAborted indicates the run stopped early because of a systemic
	// failure. Statistics from an aborted run are partial.
	RunAborted
)

func (s RunState) String() string {
	switch s {
	case RunPending:
		return "pending"
	case RunRunning:
		return "running"
	case RunDraining:
		return "draining"
	case RunCompleted:
		return "completed"
	case RunAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final state.
func (s RunState) Terminal() bool {
	return s == RunCompleted || s == RunAborted
}

// MarshalJSON emits the state name rather than its numeric value.
func (s RunState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}
