package store

import "errors"

// Sentinel errors for store operations.
var (
	// ErrInvalidEntry indicates an entry missing its key or payload.
	ErrInvalidEntry = errors.New("store: invalid entry")

	// ErrClosed indicates an operation on a closed store.
	ErrClosed = errors.New("store: store is closed")
)
