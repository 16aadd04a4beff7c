package policy

import "errors"

// Sentinel errors for policy loading and validation.
var (
	// ErrInvalidPolicy indicates a policy value is out of range or missing.
	ErrInvalidPolicy = errors.New("policy: invalid policy")

	// ErrUnknownCacheType indicates a cache type outside the known set.
	ErrUnknownCacheType = errors.New("policy: unknown cache type")

	// ErrDuplicateProvider indicates two provider entries share an id.
	ErrDuplicateProvider = errors.New("policy: duplicate provider id")
)
