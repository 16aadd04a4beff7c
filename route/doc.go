// Package route selects which upstream provider serves a cache miss.
//
// The router owns all provider quota state and the global spend budget. It
// picks the cheapest eligible provider for a capability, falls back to the
// next-cheapest on transient failure, and refuses to dispatch once a budget
// ceiling is met.
package route
