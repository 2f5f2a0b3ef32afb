// Package sentinel holds the errors stores return for expected outcomes.
// Services match them with errors.Is and translate each into a domain error
// exactly once.
package sentinel

import "errors"

var (
	// ErrNotFound: no row for the key.
	ErrNotFound = errors.New("not found")
	// ErrConflict: a uniqueness constraint rejected the write.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState: the row exists but is not in a state the write accepts.
	ErrInvalidState = errors.New("invalid state")
	// ErrInFlight: a process-local guard rejected an overlapping run.
	ErrInFlight = errors.New("operation already in flight")
)
