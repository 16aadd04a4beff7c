package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/searchcache/metrics"
	"github.com/jonwraymond/searchcache/observe"
	"github.com/jonwraymond/searchcache/policy"
	"github.com/jonwraymond/searchcache/provider"
	"github.com/jonwraymond/searchcache/query"
	"github.com/jonwraymond/searchcache/route"
	"github.com/jonwraymond/searchcache/store"
)

// Options tunes one lookup.
type Options struct {
	// FuzzyMatch enables similarity matching against indexed queries.
	FuzzyMatch bool

	// CacheType classifies the query. Empty defaults to the general type.
	CacheType policy.CacheType

	// MaxProviderAttempts caps fallback attempts. <= 0 uses the policy default.
	MaxProviderAttempts int
}

// Request is one lookup.
type Request struct {
	Query    string
	Location string
	Options  Options
}

// Response is the lookup result.
type Response struct {
	// Items are the result records, one JSON document each.
	Items []json.RawMessage

	// SourceProvider is the provider that originally produced the items.
	SourceProvider string

	// Cached reports whether the response was served from the cache.
	Cached bool

	// Degraded reports the response was served from expired cached data
	// because no provider could be called.
	Degraded bool

	// Cost is the provider cost this lookup incurred. Zero for cache hits
	// and for waiters coalesced onto another request's provider call.
	Cost float64
}

// Config wires a Searcher's collaborators.
type Config struct {
	// Policy is the deployment policy. Zero value uses defaults.
	Policy policy.Policy

	// Store is the cache store. Required.
	Store store.Store

	// Index serves fuzzy candidates. Optional; nil disables fuzzy matching.
	Index *store.Index

	// Router dispatches cache misses to providers. Required.
	Router *route.Router

	// Recorder receives one event per lookup outcome. Optional.
	Recorder *metrics.Recorder

	// Logger and Tracer default to no-ops.
	Logger observe.Logger
	Tracer observe.Tracer
}

// Searcher is the cache-first lookup orchestrator.
//
// Contract:
// - Concurrency: safe for concurrent use. Concurrent misses on one cache key
//   share a single provider call; every waiter observes the same result.
// - Context: Lookup honors cancellation between stages and during the
//   provider call.
type Searcher struct {
	pol        policy.Policy
	store      store.Store
	index      *store.Index
	router     *route.Router
	rec        *metrics.Recorder
	norm       *query.Normalizer
	thresholds query.Thresholds
	flight     singleflight.Group
	logger     observe.Logger
	tracer     observe.Tracer
	now        func() time.Time
}

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher)

// WithSearcherClock overrides the time source. Used by tests.
func WithSearcherClock(now func() time.Time) SearcherOption {
	return func(s *Searcher) { s.now = now }
}

// New creates a Searcher.
func New(cfg Config, opts ...SearcherOption) (*Searcher, error) {
	if cfg.Store == nil {
		return nil, ErrNilStore
	}
	if cfg.Router == nil {
		return nil, ErrNilRouter
	}
	pol := cfg.Policy
	if pol.Types == nil {
		pol = policy.Default()
	}

	s := &Searcher{
		pol:        pol,
		store:      cfg.Store,
		index:      cfg.Index,
		router:     cfg.Router,
		rec:        cfg.Recorder,
		norm:       query.NewNormalizer(pol.MaxQueryLen),
		thresholds: query.ThresholdsFrom(pol),
		logger:     cfg.Logger,
		tracer:     cfg.Tracer,
		now:        time.Now,
	}
	if s.logger == nil {
		s.logger = observe.NopLogger()
	}
	s.logger = s.logger.WithComponent("search")
	if s.tracer == nil {
		s.tracer = observe.NopTracer()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// flightResult is the value shared between coalesced waiters.
type flightResult struct {
	items      []json.RawMessage
	providerID string
	cost       float64
}

// Lookup resolves one request cache-first: exact key, then fuzzy candidates,
// then a coalesced provider dispatch. When the budget is exhausted or no
// provider remains, expired cached data is served flagged Degraded.
func (s *Searcher) Lookup(ctx context.Context, req Request) (Response, error) {
	start := s.now()

	ct := req.Options.CacheType
	if ct == "" {
		ct = policy.CacheGeneral
	}
	if !ct.Valid() {
		return Response{}, fmt.Errorf("%w: %q", ErrInvalidCacheType, ct)
	}

	normalized, err := s.norm.Normalize(req.Query)
	if err != nil {
		return Response{}, fmt.Errorf("search: %w", err)
	}

	key, err := store.Key(normalized, req.Location, ct, map[string]any{
		"fuzzy": req.Options.FuzzyMatch,
	})
	if err != nil {
		return Response{}, err
	}

	ctx, span := s.tracer.StartSpan(ctx, "search.lookup",
		attribute.String("cache.type", string(ct)),
		attribute.Bool("fuzzy", req.Options.FuzzyMatch),
	)

	resp, outcome, err := s.resolve(ctx, req, normalized, key, ct)

	latency := float64(s.now().Sub(start).Microseconds()) / 1000.0
	s.record(metrics.Event{
		Time:       s.now(),
		Outcome:    outcome,
		ProviderID: resp.SourceProvider,
		LatencyMs:  latency,
		Cost:       resp.Cost,
		CacheType:  ct,
	}, outcome)

	span.SetAttributes(attribute.String("outcome", string(outcome)))
	s.tracer.EndSpan(span, err)
	return resp, err
}

// resolve runs the lookup stages. The returned outcome is empty when the
// request coalesced onto another flight that already recorded the event.
func (s *Searcher) resolve(ctx context.Context, req Request, normalized, key string, ct policy.CacheType) (Response, metrics.Outcome, error) {
	// Exact check reads through expiry so a stale copy survives for degraded
	// serving; expired entries are still evicted on access.
	var stale *store.Entry
	if e, ok := s.store.GetStale(ctx, key); ok {
		if !e.Expired(s.now()) {
			return Response{
				Items:          itemsOf(e.Payload),
				SourceProvider: e.SourceProvider,
				Cached:         true,
			}, metrics.OutcomeExactHit, nil
		}
		stale = &e
		_ = s.store.Delete(ctx, key)
	}

	if req.Options.FuzzyMatch && s.index != nil {
		if resp, ok := s.fuzzy(ctx, req, normalized, ct); ok {
			return resp, metrics.OutcomeFuzzyHit, nil
		}
	}

	// Only the caller whose closure actually ran owns the provider call; the
	// singleflight shared flag is true for the initiator too once waiters
	// join, so it cannot identify the payer.
	initiated := false
	v, err, _ := s.flight.Do(key, func() (any, error) {
		initiated = true
		return s.dispatch(ctx, req, normalized, key, ct)
	})
	if err == nil {
		fr := v.(flightResult)
		resp := Response{
			Items:          fr.items,
			SourceProvider: fr.providerID,
		}
		if !initiated {
			// Coalesced waiters observe the result but incur no cost and
			// record no event of their own.
			return resp, "", nil
		}
		resp.Cost = fr.cost
		return resp, metrics.OutcomeMissSuccess, nil
	}

	if errors.Is(err, route.ErrBudgetExceeded) || errors.Is(err, route.ErrNoProvider) {
		if stale != nil {
			s.logger.Warn(ctx, "serving stale data, no provider available",
				observe.Field{Key: "cache_type", Value: string(ct)},
				observe.Field{Key: "key", Value: key},
				observe.Field{Key: "error", Value: err.Error()},
			)
			return Response{
				Items:          itemsOf(stale.Payload),
				SourceProvider: stale.SourceProvider,
				Cached:         true,
				Degraded:       true,
			}, metrics.OutcomeMissError, nil
		}
	}
	return Response{}, metrics.OutcomeMissError, err
}

// fuzzy scores index candidates of the same cache type and location against
// the type's threshold; the best match at or above it wins.
func (s *Searcher) fuzzy(ctx context.Context, req Request, normalized string, ct policy.CacheType) (Response, bool) {
	threshold := s.thresholds.ForType(ct)

	var (
		bestKey   string
		bestScore float64
	)
	for _, c := range s.index.Candidates(normalized, ct) {
		if c.Location != req.Location {
			continue
		}
		score := query.Similarity(normalized, c.NormalizedQuery)
		if score >= threshold && score > bestScore {
			bestKey, bestScore = c.Key, score
		}
	}
	if bestKey == "" {
		return Response{}, false
	}

	// The index may lag the store; the entry must still be live.
	e, ok := s.store.Get(ctx, bestKey)
	if !ok {
		return Response{}, false
	}
	return Response{
		Items:          itemsOf(e.Payload),
		SourceProvider: e.SourceProvider,
		Cached:         true,
	}, true
}

// dispatch resolves a miss through the router and stores the result with the
// cache type's TTL. Runs at most once per key across concurrent lookups.
func (s *Searcher) dispatch(ctx context.Context, req Request, normalized, key string, ct policy.CacheType) (flightResult, error) {
	res, providerID, err := s.router.Dispatch(ctx, provider.Query{
		Text:      normalized,
		Location:  req.Location,
		CacheType: ct,
	}, req.Options.MaxProviderAttempts)
	if err != nil {
		return flightResult{}, err
	}

	payload, err := json.Marshal(res.Items)
	if err != nil {
		return flightResult{}, fmt.Errorf("search: failed to encode provider items: %w", err)
	}

	now := s.now()
	entry := store.Entry{
		Key:             key,
		NormalizedQuery: normalized,
		Location:        req.Location,
		CacheType:       ct,
		Payload:         payload,
		SourceProvider:  providerID,
		Cost:            res.Cost,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.pol.TypeFor(ct).TTL),
	}
	if err := s.store.Put(ctx, entry); err != nil {
		// The result is still good; losing the cache write costs a future
		// provider call, not this response.
		s.logger.Error(ctx, "failed to cache provider result",
			observe.Field{Key: "key", Value: key},
			observe.Field{Key: "error", Value: err.Error()},
		)
	}

	return flightResult{items: res.Items, providerID: providerID, cost: res.Cost}, nil
}

func (s *Searcher) record(e metrics.Event, outcome metrics.Outcome) {
	if s.rec == nil || outcome == "" {
		return
	}
	s.rec.Record(e)
}

// itemsOf decodes a stored payload back into individual items.
func itemsOf(payload json.RawMessage) []json.RawMessage {
	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil
	}
	return items
}
