package store

import (
	"context"
	"testing"
	"time"
)

func newTestTiered(t *testing.T) (*Tiered, *Memory, *SQLite) {
	t.Helper()
	mem := NewMemory(16)
	dur := newTestSQLite(t)
	return NewTiered(mem, dur), mem, dur
}

func TestTiered_PutWritesBothTiers(t *testing.T) {
	tc, mem, dur := newTestTiered(t)
	ctx := context.Background()

	e := testEntry("k1", "coffee shops", time.Now().UTC().Add(time.Hour))
	if err := tc.Put(ctx, e); err != nil {
		t.Fatal(err)
	}

	if _, ok := mem.Get(ctx, "k1"); !ok {
		t.Error("memory tier should hold the entry")
	}
	if _, ok := dur.Get(ctx, "k1"); !ok {
		t.Error("durable tier should hold the entry")
	}
}

func TestTiered_DurableHitPromotes(t *testing.T) {
	tc, mem, dur := newTestTiered(t)
	ctx := context.Background()

	e := testEntry("k1", "coffee shops", time.Now().UTC().Add(time.Hour))
	if err := dur.Put(ctx, e); err != nil {
		t.Fatal(err)
	}

	got, ok := tc.Get(ctx, "k1")
	if !ok {
		t.Fatal("tiered Get should fall through to the durable tier")
	}
	if got.NormalizedQuery != "coffee shops" {
		t.Errorf("unexpected entry: %+v", got)
	}

	// Promoted into memory by the read.
	if _, ok := mem.Get(ctx, "k1"); !ok {
		t.Error("durable hit should be promoted to the memory tier")
	}
}

func TestTiered_DeleteRemovesBothTiers(t *testing.T) {
	tc, mem, dur := newTestTiered(t)
	ctx := context.Background()

	e := testEntry("k1", "coffee shops", time.Now().UTC().Add(time.Hour))
	if err := tc.Put(ctx, e); err != nil {
		t.Fatal(err)
	}
	if err := tc.Delete(ctx, "k1"); err != nil {
		t.Fatal(err)
	}

	if _, ok := mem.GetStale(ctx, "k1"); ok {
		t.Error("memory tier should be empty after delete")
	}
	if _, ok := dur.GetStale(ctx, "k1"); ok {
		t.Error("durable tier should be empty after delete")
	}
}

func TestTiered_GetStaleFallsThrough(t *testing.T) {
	now := time.Now().UTC()
	clock := func() time.Time { return now }
	mem := NewMemory(16, WithMemoryClock(clock))
	dur := newTestSQLite(t, WithSQLiteClock(clock))
	tc := NewTiered(mem, dur, WithTieredClock(clock))
	ctx := context.Background()

	// Entry only in the durable tier, already expired.
	if err := dur.Put(ctx, testEntry("k1", "coffee shops", now.Add(time.Minute))); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Minute)

	if _, ok := tc.Get(ctx, "k1"); ok {
		t.Error("expired entry should not be a live hit")
	}
	// Degraded path still finds it... unless the Get above evicted it.
	// Get in the durable tier evicts on access, so reinsert to verify the
	// stale read path on its own.
	if err := dur.Put(ctx, testEntry("k2", "old query", now.Add(-time.Minute))); err != nil {
		t.Fatal(err)
	}
	if _, ok := tc.GetStale(ctx, "k2"); !ok {
		t.Error("GetStale should fall through to the durable tier")
	}
}

func TestTiered_MemoryOnly(t *testing.T) {
	tc := NewTiered(NewMemory(16), nil)
	ctx := context.Background()

	e := testEntry("k1", "coffee shops", time.Now().UTC().Add(time.Hour))
	if err := tc.Put(ctx, e); err != nil {
		t.Fatal(err)
	}
	if _, ok := tc.Get(ctx, "k1"); !ok {
		t.Error("memory-only tiered store should serve hits")
	}
	if err := tc.Delete(ctx, "k1"); err != nil {
		t.Fatal(err)
	}

	var count int
	if err := tc.Scan(ctx, func(Entry) error { count++; return nil }); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("scan count = %d, want 0", count)
	}
}

func TestTiered_EvictExpired(t *testing.T) {
	now := time.Now().UTC()
	clock := func() time.Time { return now }
	mem := NewMemory(16, WithMemoryClock(clock))
	dur := newTestSQLite(t, WithSQLiteClock(clock))
	tc := NewTiered(mem, dur, WithTieredClock(clock))
	ctx := context.Background()

	_ = tc.Put(ctx, testEntry("live", "q1", now.Add(time.Hour)))
	_ = tc.Put(ctx, testEntry("dead", "q2", now.Add(time.Minute)))

	now = now.Add(10 * time.Minute)
	removed, err := tc.EvictExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
}
