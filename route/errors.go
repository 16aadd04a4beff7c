package route

import "errors"

// Sentinel errors for routing.
var (
	// ErrNoProvider indicates no eligible provider remains for the request,
	// either because none advertises the capability, all are quota-saturated,
	// or every fallback attempt failed.
	ErrNoProvider = errors.New("route: no provider available")

	// ErrBudgetExceeded indicates the global daily or monthly spend ceiling
	// is met or would be exceeded by the call's expected cost.
	ErrBudgetExceeded = errors.New("route: budget exceeded")

	// ErrProviderTimeout indicates a provider call hit its configured
	// timeout. Treated as transient and eligible for fallback.
	ErrProviderTimeout = errors.New("route: provider call timed out")

	// ErrUnknownProvider indicates a provider without a policy entry.
	ErrUnknownProvider = errors.New("route: provider has no policy entry")
)
