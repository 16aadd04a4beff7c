// Package provider defines the upstream search capability contract.
//
// Each upstream service is wrapped by an adapter that translates its native
// response into the one canonical Result shape at the boundary. Errors from a
// provider are retryable unless explicitly marked permanent.
package provider
