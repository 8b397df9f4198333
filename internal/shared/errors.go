package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks input or state that violates a business rule.
	ErrValidation = errors.New("validation failed")
	// ErrConfirmationRequired is returned when an operation needs an explicit
	// operator decision before it can proceed.
	ErrConfirmationRequired = errors.New("confirmation required")
	// ErrInvalidState marks an operation not allowed in the current state of
	// a record. It is always paired with ErrValidation.
	ErrInvalidState = errors.New("invalid state")
	// ErrStopped reports a cooperative stop of a long-running operation.
	ErrStopped = errors.New("operation stopped")
)

// PersistenceError wraps a storage failure with the operation that caused it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persistence wraps err as a PersistenceError unless it is nil or already a
// domain error that callers need to match.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) {
		return err
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// Invalid builds a validation error carrying a message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
