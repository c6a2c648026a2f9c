package remote

import "fmt"

// Error is a failure reported by, or on the way to, the collaborator.
type Error struct {
	Operation string
	Status    int
	Message   string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("remote %s: %s (status %d)", e.Operation, e.Message, e.Status)
	}
	return fmt.Sprintf("remote %s: %s", e.Operation, e.Message)
}
