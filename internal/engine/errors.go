package engine

import "fmt"

// ValidationError marks a request that is malformed on its face: bad ids,
// inverted intervals, unknown frequencies. Distinct from an availability
// rejection, which is a well-formed request for a slot that isn't free.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func validationErr(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// UnavailableError rejects a well-formed booking request because the slot is
// not free. Reason carries the first failing rule, in evaluation order.
type UnavailableError struct {
	Reason string
}

func (e *UnavailableError) Error() string {
	return "slot unavailable: " + e.Reason
}
