package training

import "fmt"

// Phase is the coarse lifecycle position of an Engine
type Phase string

const (
	PhaseInitialized Phase = "Initialized"
	PhaseTraining    Phase = "Training"
	PhaseEvaluating  Phase = "Evaluating"
	PhaseFinalized   Phase = "Finalized"
	PhaseFailed      Phase = "Failed"
)

// State is the engine lifecycle:
//
//	Initialized -> Training(1) -> Evaluating(1) -> Training(2) -> ... -> Finalized
//
// Any error moves the engine to Failed. Epoch is 1-based and zero outside
// Training and Evaluating.
type State struct {
	Phase Phase `json:"phase"`
	Epoch int   `json:"epoch,omitempty"`
}

func (s State) String() string {
	switch s.Phase {
	case PhaseTraining, PhaseEvaluating:
		return fmt.Sprintf("%s(%d)", s.Phase, s.Epoch)
	default:
		return string(s.Phase)
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s.Phase == PhaseFinalized || s.Phase == PhaseFailed
}
