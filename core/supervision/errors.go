package supervision

import "fmt"

// EscalationError wraps a failure a supervisor passed to its parent.
type EscalationError struct {
	Supervisor string
	Unit       string
	Err        error
}

func (e *EscalationError) Error() string {
	return fmt.Sprintf("supervisor %s escalated failure of %s: %v", e.Supervisor, e.Unit, e.Err)
}

func (e *EscalationError) Unwrap() error { return e.Err }
