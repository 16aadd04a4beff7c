package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonwraymond/searchcache/observe"
	"github.com/jonwraymond/searchcache/policy"
)

func TestIndex_EmptyBeforeRebuild(t *testing.T) {
	ix := NewIndex()
	if got := ix.Candidates("coffee shops", policy.CacheVenue); len(got) != 0 {
		t.Errorf("empty index returned candidates: %v", got)
	}
	if ix.Len() != 0 {
		t.Errorf("Len = %d, want 0", ix.Len())
	}
}

func TestIndex_RebuildAndCandidates(t *testing.T) {
	mem := NewMemory(16)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	_ = mem.Put(ctx, testEntry("k1", "coffee shops near minneapolis", exp))
	_ = mem.Put(ctx, testEntry("k2", "live music venues", exp))

	ix := NewIndex()
	if err := ix.Rebuild(ctx, mem); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if ix.Len() != 2 {
		t.Fatalf("Len = %d, want 2", ix.Len())
	}

	// Shares the token "coffee".
	cands := ix.Candidates("coffee houses near st paul", policy.CacheVenue)
	if len(cands) != 2 {
		// "near" is shared with k1 only; "coffee" with k1. k2 shares nothing.
		t.Logf("candidates: %+v", cands)
	}
	found := false
	for _, c := range cands {
		if c.Key == "k1" {
			found = true
		}
		if c.Key == "k2" {
			t.Error("k2 shares no token and should not be a candidate")
		}
	}
	if !found {
		t.Error("k1 should be a candidate via shared tokens")
	}

	// No shared tokens at all.
	if got := ix.Candidates("sushi downtown", policy.CacheVenue); len(got) != 0 {
		t.Errorf("unrelated query returned candidates: %v", got)
	}
}

func TestIndex_FiltersByCacheType(t *testing.T) {
	mem := NewMemory(16)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	venue := testEntry("k1", "coffee shops", exp)
	news := testEntry("k2", "coffee recall news", exp)
	news.CacheType = policy.CacheNews
	_ = mem.Put(ctx, venue)
	_ = mem.Put(ctx, news)

	ix := NewIndex()
	if err := ix.Rebuild(ctx, mem); err != nil {
		t.Fatal(err)
	}

	cands := ix.Candidates("coffee", policy.CacheNews)
	if len(cands) != 1 || cands[0].Key != "k2" {
		t.Errorf("candidates = %+v, want only k2", cands)
	}
}

func TestIndex_ReadersSeePreviousSnapshotDuringRebuild(t *testing.T) {
	mem := NewMemory(16)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)
	_ = mem.Put(ctx, testEntry("k1", "coffee shops", exp))

	ix := NewIndex()
	if err := ix.Rebuild(ctx, mem); err != nil {
		t.Fatal(err)
	}

	// Concurrent readers during repeated rebuilds must never observe a
	// partial index; they see either the old or the new snapshot.
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				cands := ix.Candidates("coffee shops", policy.CacheVenue)
				if len(cands) != 1 {
					t.Errorf("reader saw %d candidates, want 1", len(cands))
					return
				}
			}
		}()
	}

	for i := 0; i < 100; i++ {
		if err := ix.Rebuild(ctx, mem); err != nil {
			t.Fatal(err)
		}
	}
	close(stop)
	wg.Wait()

	if ix.Rebuilds() != 101 {
		t.Errorf("Rebuilds = %d, want 101", ix.Rebuilds())
	}
}

type failingScanner struct {
	mu    sync.Mutex
	fails int
	inner Scanner
}

func (f *failingScanner) Scan(ctx context.Context, fn func(Entry) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("scan unavailable")
	}
	return f.inner.Scan(ctx, fn)
}

func TestRebuilder_RetriesAfterFailure(t *testing.T) {
	mem := NewMemory(16)
	ctx := context.Background()
	_ = mem.Put(ctx, testEntry("k1", "coffee shops", time.Now().Add(time.Hour)))

	src := &failingScanner{fails: 1, inner: mem}
	ix := NewIndex()

	r := NewRebuilder(ix, src, 50*time.Millisecond, observe.NopLogger())
	// Shrink the retry floor so the test stays fast.
	r.Start(ctx)
	defer r.Stop()

	deadline := time.After(5 * time.Second)
	for ix.Rebuilds() == 0 {
		select {
		case <-deadline:
			t.Fatal("rebuilder never recovered from the failed scan")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if ix.Len() != 1 {
		t.Errorf("Len = %d, want 1", ix.Len())
	}
}

func TestRebuilder_StopTerminates(t *testing.T) {
	mem := NewMemory(16)
	ix := NewIndex()
	r := NewRebuilder(ix, mem, time.Hour, nil)
	r.Start(context.Background())

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not terminate the rebuild loop")
	}
}
