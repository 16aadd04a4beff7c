package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonwraymond/searchcache/policy"
)

// Outcome classifies how a lookup was resolved.
type Outcome string

// Lookup outcomes.
const (
	// OutcomeExactHit is a live cache entry found under the exact key.
	OutcomeExactHit Outcome = "exact_hit"

	// OutcomeFuzzyHit is a live entry matched through similarity scoring.
	OutcomeFuzzyHit Outcome = "fuzzy_hit"

	// OutcomeMissSuccess is a miss resolved by a successful provider call.
	OutcomeMissSuccess Outcome = "miss_success"

	// OutcomeMissError is a miss that no provider could resolve.
	OutcomeMissError Outcome = "miss_error"
)

// Event is one recorded lookup. Events are immutable once recorded.
type Event struct {
	Time       time.Time
	Outcome    Outcome
	ProviderID string
	LatencyMs  float64
	Cost       float64
	CacheType  policy.CacheType
}

// Summary aggregates events inside a window.
type Summary struct {
	// Lookups is the number of events in the window.
	Lookups int

	// ExactHits, FuzzyHits, MissSuccesses, and MissErrors count per outcome.
	ExactHits     int
	FuzzyHits     int
	MissSuccesses int
	MissErrors    int

	// HitRate is (exact + fuzzy hits) / lookups; zero when there are none.
	HitRate float64

	// FuzzyHitRate is fuzzy hits / lookups.
	FuzzyHitRate float64

	// TotalCost is the summed cost of provider calls in the window.
	TotalCost float64

	// EstimatedSavings is the spend avoided by hits: each hit is valued at
	// the average provider cost configured for its cache type.
	EstimatedSavings float64

	// AvgLatencyMs is the mean lookup latency per outcome.
	AvgLatencyMs map[Outcome]float64
}

// Recorder is the append-only event log.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: Record never fails; malformed events are recorded as given.
type Recorder struct {
	mu        sync.Mutex
	events    []Event
	retention time.Duration
	avgCost   map[policy.CacheType]float64
	now       func() time.Time
	emit      func(Event)
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderClock overrides the time source. Used by tests.
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates a recorder using the policy's per-type average costs
// for savings estimation and its retention for pruning.
func NewRecorder(pol policy.Policy, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		retention: pol.MetricsRetention,
		avgCost:   make(map[policy.CacheType]float64, len(pol.Types)),
		now:       time.Now,
	}
	if r.retention <= 0 {
		r.retention = policy.Default().MetricsRetention
	}
	for ct := range pol.Types {
		r.avgCost[ct] = pol.TypeFor(ct).AvgCost
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends one event. A zero Time is stamped with the current time.
func (r *Recorder) Record(e Event) {
	if e.Time.IsZero() {
		e.Time = r.now()
	}
	r.mu.Lock()
	r.events = append(r.events, e)
	emit := r.emit
	r.mu.Unlock()

	if emit != nil {
		emit(e)
	}
}

// Summary aggregates the events recorded within the trailing window.
// A window <= 0 covers all retained events. Aggregation is order-independent.
func (r *Recorder) Summary(window time.Duration) Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Time{}
	if window > 0 {
		cutoff = r.now().Add(-window)
	}

	s := Summary{AvgLatencyMs: make(map[Outcome]float64)}
	latencySum := make(map[Outcome]float64)
	latencyN := make(map[Outcome]int)

	for _, e := range r.events {
		if !cutoff.IsZero() && e.Time.Before(cutoff) {
			continue
		}
		s.Lookups++
		latencySum[e.Outcome] += e.LatencyMs
		latencyN[e.Outcome]++

		switch e.Outcome {
		case OutcomeExactHit:
			s.ExactHits++
			s.EstimatedSavings += r.avgCost[e.CacheType]
		case OutcomeFuzzyHit:
			s.FuzzyHits++
			s.EstimatedSavings += r.avgCost[e.CacheType]
		case OutcomeMissSuccess:
			s.MissSuccesses++
			s.TotalCost += e.Cost
		case OutcomeMissError:
			s.MissErrors++
		}
	}

	if s.Lookups > 0 {
		s.HitRate = float64(s.ExactHits+s.FuzzyHits) / float64(s.Lookups)
		s.FuzzyHitRate = float64(s.FuzzyHits) / float64(s.Lookups)
	}
	for out, n := range latencyN {
		if n > 0 {
			s.AvgLatencyMs[out] = latencySum[out] / float64(n)
		}
	}
	return s
}

// Report renders the window's summary as a human-readable text block.
func (r *Recorder) Report(window time.Duration) string {
	s := r.Summary(window)

	var b strings.Builder
	if window > 0 {
		fmt.Fprintf(&b, "search cache report (last %s)\n", window)
	} else {
		b.WriteString("search cache report (all retained events)\n")
	}
	fmt.Fprintf(&b, "  lookups:           %d\n", s.Lookups)
	fmt.Fprintf(&b, "  exact hits:        %d\n", s.ExactHits)
	fmt.Fprintf(&b, "  fuzzy hits:        %d\n", s.FuzzyHits)
	fmt.Fprintf(&b, "  miss (resolved):   %d\n", s.MissSuccesses)
	fmt.Fprintf(&b, "  miss (failed):     %d\n", s.MissErrors)
	fmt.Fprintf(&b, "  hit rate:          %.1f%%\n", s.HitRate*100)
	fmt.Fprintf(&b, "  fuzzy hit rate:    %.1f%%\n", s.FuzzyHitRate*100)
	fmt.Fprintf(&b, "  provider spend:    $%.4f\n", s.TotalCost)
	fmt.Fprintf(&b, "  estimated savings: $%.4f\n", s.EstimatedSavings)

	if len(s.AvgLatencyMs) > 0 {
		b.WriteString("  avg latency (ms):\n")
		outs := make([]string, 0, len(s.AvgLatencyMs))
		for out := range s.AvgLatencyMs {
			outs = append(outs, string(out))
		}
		sort.Strings(outs)
		for _, out := range outs {
			fmt.Fprintf(&b, "    %-14s %.2f\n", out, s.AvgLatencyMs[Outcome(out)])
		}
	}
	return b.String()
}

// Prune drops events older than the configured retention. Summaries already
// produced are unaffected.
func (r *Recorder) Prune(now time.Time) int {
	cutoff := now.Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.events[:0]
	dropped := 0
	for _, e := range r.events {
		if e.Time.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	return dropped
}

// Len returns the number of retained events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
