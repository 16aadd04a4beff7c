package store

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jonwraymond/searchcache/observe"
	"github.com/jonwraymond/searchcache/policy"
	"github.com/jonwraymond/searchcache/query"
)

// Candidate is one fuzzy-match candidate from the index.
type Candidate struct {
	Key             string
	NormalizedQuery string
	Location        string
	CacheType       policy.CacheType
}

// snapshot is an immutable view of the index. Readers always see a complete
// snapshot; rebuilds swap the pointer atomically.
type snapshot struct {
	postings   map[string][]int
	candidates []Candidate
}

var emptySnapshot = &snapshot{postings: map[string][]int{}}

// Index is the derived, rebuildable lookup structure mapping normalized-query
// tokens to candidate cache keys. It lets the fuzzy matcher find candidates
// without scanning the whole store.
//
// Contract:
// - Concurrency: Candidates never blocks on a rebuild; lookups during a
//   rebuild use the previous snapshot.
type Index struct {
	snap    atomic.Pointer[snapshot]
	rebuilt atomic.Int64
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	ix := &Index{}
	ix.snap.Store(emptySnapshot)
	return ix
}

// Candidates returns the entries of the given cache type sharing at least
// one token with the normalized query.
func (ix *Index) Candidates(normalized string, ct policy.CacheType) []Candidate {
	snap := ix.snap.Load()

	seen := make(map[int]bool)
	var out []Candidate
	for _, tok := range query.Tokens(normalized) {
		for _, idx := range snap.postings[tok] {
			if seen[idx] {
				continue
			}
			seen[idx] = true
			c := snap.candidates[idx]
			if c.CacheType == ct {
				out = append(out, c)
			}
		}
	}
	return out
}

// Rebuild constructs a fresh snapshot from the source and swaps it in.
// Corrupt entries are dropped by the source's Scan.
func (ix *Index) Rebuild(ctx context.Context, src Scanner) error {
	next := &snapshot{postings: make(map[string][]int)}

	err := src.Scan(ctx, func(e Entry) error {
		idx := len(next.candidates)
		next.candidates = append(next.candidates, Candidate{
			Key:             e.Key,
			NormalizedQuery: e.NormalizedQuery,
			Location:        e.Location,
			CacheType:       e.CacheType,
		})
		for _, tok := range query.Tokens(e.NormalizedQuery) {
			next.postings[tok] = append(next.postings[tok], idx)
		}
		return nil
	})
	if err != nil {
		return err
	}

	ix.snap.Store(next)
	ix.rebuilt.Add(1)
	return nil
}

// Rebuilds returns the number of completed rebuilds.
func (ix *Index) Rebuilds() int64 {
	return ix.rebuilt.Load()
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int {
	return len(ix.snap.Load().candidates)
}

// Rebuilder periodically rebuilds an index from a store in the background.
// Failed rebuilds retry with exponential backoff before returning to the
// regular interval.
type Rebuilder struct {
	index    *Index
	src      Scanner
	interval time.Duration
	logger   observe.Logger
	stop     chan struct{}
	done     chan struct{}
}

// NewRebuilder creates a rebuilder. interval <= 0 defaults to 5 minutes.
func NewRebuilder(ix *Index, src Scanner, interval time.Duration, logger observe.Logger) *Rebuilder {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &Rebuilder{
		index:    ix,
		src:      src,
		interval: interval,
		logger:   logger.WithComponent("store"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the rebuild loop. The first rebuild runs immediately.
func (r *Rebuilder) Start(ctx context.Context) {
	go r.loop(ctx)
}

func (r *Rebuilder) loop(ctx context.Context) {
	defer close(r.done)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = r.interval
	bo.MaxElapsedTime = 0

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-timer.C:
		}

		// Sweep expired entries before rebuilding so the fresh snapshot only
		// indexes live data.
		if sweeper, ok := r.src.(interface {
			EvictExpired(context.Context) (int, error)
		}); ok {
			if n, err := sweeper.EvictExpired(ctx); err == nil && n > 0 {
				r.logger.Debug(ctx, "evicted expired entries",
					observe.Field{Key: "count", Value: n},
				)
			}
		}

		if err := r.index.Rebuild(ctx, r.src); err != nil {
			delay := bo.NextBackOff()
			r.logger.Warn(ctx, "index rebuild failed",
				observe.Field{Key: "error", Value: err.Error()},
				observe.Field{Key: "retry_in", Value: delay.String()},
			)
			timer.Reset(delay)
			continue
		}

		bo.Reset()
		timer.Reset(r.interval)
	}
}

// Stop terminates the loop and waits for it to exit. Idempotent is not
// required; call once.
func (r *Rebuilder) Stop() {
	close(r.stop)
	<-r.done
}
