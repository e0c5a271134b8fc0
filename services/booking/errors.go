package booking

import (
	"errors"
	"fmt"
)

// ValidationError is a policy violation surfaced to the caller as a
// user-facing rejection; it is never auto-retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validationError: %s", e.Reason)
}

func NewValidationError(reason string) error {
	return &ValidationError{Reason: reason}
}

var (
	// ErrSessionFull means the caller lost the race for the last spot; the
	// caller should re-render current availability.
	ErrSessionFull = errors.New("session is now full")

	// ErrAlreadyBooked means the user already holds an open, non-no-show
	// booking for the session.
	ErrAlreadyBooked = NewValidationError("you already have a booking for this session")
)
