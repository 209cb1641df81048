// Package agent implements the step-based agent core: the conversation
// memory, the run loop with its state machine and stuck detection, and
// the tool-calling specialization.
package agent

import "fmt"

// State is the agent's lifecycle state.
// Valid transitions: IDLE -> RUNNING -> (FINISHED|ERROR) -> IDLE.
type State string

const (
	StateIdle     State = "IDLE"
	StateRunning  State = "RUNNING"
	StateFinished State = "FINISHED"
	StateError    State = "ERROR"
)

// ErrIllegalState reports a run attempted from a non-IDLE state or a
// transition to an unknown state.
type ErrIllegalState struct {
	Op    string
	State State
}

func (e *ErrIllegalState) Error() string {
	return fmt.Sprintf("agent: %s not allowed in state %s", e.Op, e.State)
}

func validState(s State) bool {
	switch s {
	case StateIdle, StateRunning, StateFinished, StateError:
		return true
	}
	return false
}
