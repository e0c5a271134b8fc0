// database/repository/repository.go
package repository

import "errors"

// Outcome reports what a repository save actually did, so callers never need
// sentinel errors for "nothing changed".
type Outcome int

const (
	Unchanged Outcome = iota
	Saved
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrImmutableField is returned when an update attempts to change a
	// field that is fixed after creation (booking user/session, invoice
	// owner identity).
	ErrImmutableField = errors.New("attempt to modify an immutable field")

	// ErrDuplicate is returned when an insert violates a unique index.
	ErrDuplicate = errors.New("duplicate record")
)
