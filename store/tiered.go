package store

import (
	"context"
	"time"
)

// Tiered composes the memory tier over an optional durable tier. Reads check
// memory first and promote durable hits; writes go to both tiers.
type Tiered struct {
	mem *Memory
	dur *SQLite
	now func() time.Time
}

// TieredOption configures a Tiered store.
type TieredOption func(*Tiered)

// WithTieredClock overrides the time source. Used by tests.
func WithTieredClock(now func() time.Time) TieredOption {
	return func(t *Tiered) { t.now = now }
}

// NewTiered creates a two-tier store. dur may be nil for a memory-only
// deployment; the store then degrades to a single bounded tier.
func NewTiered(mem *Memory, dur *SQLite, opts ...TieredOption) *Tiered {
	t := &Tiered{mem: mem, dur: dur, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Get retrieves a live entry, promoting durable hits into memory.
func (t *Tiered) Get(ctx context.Context, key string) (Entry, bool) {
	if e, ok := t.mem.Get(ctx, key); ok {
		return e, true
	}
	if t.dur == nil {
		return Entry{}, false
	}
	e, ok := t.dur.Get(ctx, key)
	if !ok {
		return Entry{}, false
	}
	_ = t.mem.Put(ctx, e)
	return e, true
}

// GetStale retrieves an entry regardless of expiry, memory first.
func (t *Tiered) GetStale(ctx context.Context, key string) (Entry, bool) {
	if e, ok := t.mem.GetStale(ctx, key); ok {
		return e, true
	}
	if t.dur == nil {
		return Entry{}, false
	}
	return t.dur.GetStale(ctx, key)
}

// Put writes the entry to both tiers.
func (t *Tiered) Put(ctx context.Context, e Entry) error {
	if err := t.mem.Put(ctx, e); err != nil {
		return err
	}
	if t.dur != nil {
		return t.dur.Put(ctx, e)
	}
	return nil
}

// Delete removes the entry from both tiers.
func (t *Tiered) Delete(ctx context.Context, key string) error {
	if err := t.mem.Delete(ctx, key); err != nil {
		return err
	}
	if t.dur != nil {
		return t.dur.Delete(ctx, key)
	}
	return nil
}

// EvictExpired sweeps both tiers. The count is the durable tier's count when
// present, since memory holds a subset of the same keys.
func (t *Tiered) EvictExpired(ctx context.Context) (int, error) {
	memRemoved, err := t.mem.EvictExpired(ctx)
	if err != nil {
		return 0, err
	}
	if t.dur == nil {
		return memRemoved, nil
	}
	return t.dur.EvictExpired(ctx)
}

// Scan streams live entries from the durable tier, or from memory when no
// durable tier is configured.
func (t *Tiered) Scan(ctx context.Context, fn func(Entry) error) error {
	if t.dur != nil {
		return t.dur.Scan(ctx, fn)
	}
	return t.mem.Scan(ctx, fn)
}

// Ensure Tiered implements Store and Scanner
var (
	_ Store   = (*Tiered)(nil)
	_ Scanner = (*Tiered)(nil)
)
