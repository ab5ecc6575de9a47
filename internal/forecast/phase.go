package forecast

// Phase is the controller lifecycle state.
type Phase int

const (
	// PhaseCollecting buffers observations until the history is complete.
	PhaseCollecting Phase = iota
	// PhaseTrained feeds every observation to the model. Terminal.
	PhaseTrained
	// PhaseFailed is entered when training fails. Terminal.
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseCollecting:
		return "collecting"
	case PhaseTrained:
		return "trained"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}
