package provider

import (
	"context"
	"encoding/json"

	"github.com/jonwraymond/searchcache/policy"
)

// Query is the normalized request passed to a provider.
type Query struct {
	// Text is the normalized query string.
	Text string

	// Location is an optional location qualifier.
	Location string

	// CacheType is the capability being requested.
	CacheType policy.CacheType
}

// Result is the canonical provider response shape. Adapters must collapse
// their native payloads into this form.
type Result struct {
	// Items are the raw result records, one JSON document each.
	Items []json.RawMessage

	// Cost is the monetary cost the call incurred.
	Cost float64
}

// Provider is the upstream search capability.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Search must honor cancellation/deadlines.
// - Errors: errors are treated as transient unless wrapped with Permanent.
type Provider interface {
	// ID returns the provider's stable identifier, matching its policy entry.
	ID() string

	// Capabilities returns the cache types this provider can serve.
	Capabilities() []string

	// Search executes the query upstream.
	Search(ctx context.Context, q Query) (Result, error)
}

// Func adapts a closure into a Provider.
type Func struct {
	Name string
	Caps []string
	Fn   func(ctx context.Context, q Query) (Result, error)
}

// ID returns the provider name.
func (f *Func) ID() string { return f.Name }

// Capabilities returns the advertised cache types.
func (f *Func) Capabilities() []string { return f.Caps }

// Search invokes the wrapped closure.
func (f *Func) Search(ctx context.Context, q Query) (Result, error) {
	return f.Fn(ctx, q)
}

// Ensure Func implements Provider
var _ Provider = (*Func)(nil)
