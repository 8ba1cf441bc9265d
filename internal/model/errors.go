package model

import (
	"errors"
	"fmt"
)

// ValidationError rejects bad input before anything is persisted. Field
// names the offending input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NotFoundError reports a reference to a rule, event, decision path, or
// account that does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// ConsistencyError is an internal fault: an invariant the engine maintains
// was found violated (overlapping revision windows, a gap in a balance
// series). It aborts the whole recalculation rather than persisting a
// partially-correct result.
type ConsistencyError struct {
	Message string
}

func (e ConsistencyError) Error() string {
	return "consistency violation: " + e.Message
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
