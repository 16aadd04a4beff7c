package query

import "errors"

// Sentinel errors for query validation.
var (
	// ErrEmptyQuery indicates an empty or whitespace-only query.
	ErrEmptyQuery = errors.New("query: query is empty")
)
