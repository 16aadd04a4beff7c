package store

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemorySize is the default capacity of the memory tier.
const DefaultMemorySize = 1024

// Memory is the fast in-process tier: a bounded LRU over entries. Once
// capacity is exceeded the least-recently-used entry is evicted.
type Memory struct {
	lru *lru.Cache[string, Entry]
	now func() time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithMemoryClock overrides the time source. Used by tests.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates a memory tier with the given capacity.
// size <= 0 uses DefaultMemorySize.
func NewMemory(size int, opts ...MemoryOption) *Memory {
	if size <= 0 {
		size = DefaultMemorySize
	}
	// lru.New errors only on non-positive size, which is handled above.
	c, _ := lru.New[string, Entry](size)
	m := &Memory{lru: c, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get retrieves a live entry. Expired entries are removed as a side effect
// and reported as a miss.
func (m *Memory) Get(_ context.Context, key string) (Entry, bool) {
	e, ok := m.lru.Get(key)
	if !ok {
		return Entry{}, false
	}
	if e.Expired(m.now()) {
		m.lru.Remove(key)
		return Entry{}, false
	}
	return e, true
}

// GetStale retrieves an entry regardless of expiry, without promoting it.
func (m *Memory) GetStale(_ context.Context, key string) (Entry, bool) {
	return m.lru.Peek(key)
}

// Put stores an entry, evicting the LRU entry if at capacity.
func (m *Memory) Put(_ context.Context, e Entry) error {
	if !e.Valid() {
		return ErrInvalidEntry
	}
	m.lru.Add(e.Key, e)
	return nil
}

// Delete removes an entry. Idempotent.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.lru.Remove(key)
	return nil
}

// EvictExpired removes all expired entries.
func (m *Memory) EvictExpired(_ context.Context) (int, error) {
	now := m.now()
	removed := 0
	for _, key := range m.lru.Keys() {
		if e, ok := m.lru.Peek(key); ok && e.Expired(now) {
			m.lru.Remove(key)
			removed++
		}
	}
	return removed, nil
}

// Scan calls fn for every live entry in the memory tier.
func (m *Memory) Scan(_ context.Context, fn func(Entry) error) error {
	now := m.now()
	for _, key := range m.lru.Keys() {
		e, ok := m.lru.Peek(key)
		if !ok || e.Expired(now) {
			continue
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of entries currently held, including expired ones
// not yet evicted.
func (m *Memory) Len() int {
	return m.lru.Len()
}

// Ensure Memory implements Store and Scanner
var (
	_ Store   = (*Memory)(nil)
	_ Scanner = (*Memory)(nil)
)
