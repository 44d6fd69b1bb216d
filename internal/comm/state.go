package comm

import "fmt"

// State is the completion state of an operation.
type State int

const (
	StatePending State = iota
	StateInProgress
	StateSucceeded
	StateFailed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateInProgress:
		return "IN_PROGRESS"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateFailed:
		return "FAILED"
	case StateTimedOut:
		return "TIMED_OUT"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether s can end an operation.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateTimedOut
}

// ValidateTransition checks an operation state change. Failed and timed out
// operations go back to pending when they are requeued for retry.
func ValidateTransition(from, to State) error {
	validTransitions := map[State][]State{
		StatePending:    {StateInProgress, StateFailed},
		StateInProgress: {StateSucceeded, StateFailed, StateTimedOut},
		StateFailed:     {StatePending},
		StateTimedOut:   {StatePending},
		StateSucceeded:  {},
	}

	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("invalid current state: %s", from)
	}

	for _, validTo := range allowed {
		if validTo == to {
			return nil
		}
	}

	return fmt.Errorf("invalid state transition: %s -> %s", from, to)
}
