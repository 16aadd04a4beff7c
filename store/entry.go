package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jonwraymond/searchcache/policy"
)

// Entry is one cached search response. The store owns entry lifetime:
// creation on miss-then-success, deletion on expiry, eviction, or corruption.
type Entry struct {
	// Key is the deterministic cache key (see Key).
	Key string

	// NormalizedQuery, Location, and CacheType are the inputs that produced
	// the key.
	NormalizedQuery string
	Location        string
	CacheType       policy.CacheType

	// Payload is the normalized result blob (a JSON array of items).
	Payload json.RawMessage

	// SourceProvider is the provider that produced the payload, or
	// "cache-seed" for pre-loaded entries.
	SourceProvider string

	// Cost is the monetary cost incurred to obtain the payload. Zero when the
	// entry was itself created from a cache or fuzzy hit.
	Cost float64

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its expiry at the given time.
func (e Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Valid reports whether the entry can be stored.
func (e Entry) Valid() bool {
	return e.Key != "" && len(e.Payload) > 0 && json.Valid(e.Payload)
}

// Store is the cache store contract.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use; per-key
//   isolation is sufficient, no cross-key transactions are promised.
// - Errors: Get and GetStale never error; corrupt entries are evicted and
//   reported as a miss.
type Store interface {
	// Get retrieves a live entry. An expired entry is treated as absent and
	// evicted as a side effect of the read.
	Get(ctx context.Context, key string) (Entry, bool)

	// GetStale retrieves an entry regardless of expiry. Used only for
	// degraded serving when no provider can be called.
	GetStale(ctx context.Context, key string) (Entry, bool)

	// Put stores an entry. The entry's ExpiresAt must already be set.
	Put(ctx context.Context, e Entry) error

	// Delete removes an entry. Idempotent.
	Delete(ctx context.Context, key string) error

	// EvictExpired removes all expired entries, returning the count removed.
	EvictExpired(ctx context.Context) (int, error)
}

// Scanner streams live entries for index rebuilds.
type Scanner interface {
	// Scan calls fn for every live entry. Corrupt entries encountered during
	// the scan are dropped from the store and skipped.
	Scan(ctx context.Context, fn func(Entry) error) error
}
