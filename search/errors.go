package search

import "errors"

// Sentinel errors for lookups.
var (
	// ErrInvalidCacheType indicates a request named an unknown cache type.
	ErrInvalidCacheType = errors.New("search: invalid cache type")

	// ErrNilStore indicates the searcher was constructed without a store.
	ErrNilStore = errors.New("search: store is required")

	// ErrNilRouter indicates the searcher was constructed without a router.
	ErrNilRouter = errors.New("search: router is required")
)
