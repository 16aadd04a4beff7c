package route

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonwraymond/searchcache/observe"
	"github.com/jonwraymond/searchcache/policy"
	"github.com/jonwraymond/searchcache/provider"
)

// DefaultMaxAttempts is the default cap on fallback attempts per request.
const DefaultMaxAttempts = 3

// DefaultProviderTimeout bounds a provider call when its policy sets none.
const DefaultProviderTimeout = 10 * time.Second

// providerState pairs a provider's policy with its quota counters. Counters
// are monotonically non-decreasing within a period and reset only at UTC
// day/month boundaries.
type providerState struct {
	pol        policy.ProviderPolicy
	usedToday  int
	usedMonth  int
	inflight   int // reserved-but-unsettled calls, counted against quota
	spentMonth float64
}

// Router is the cost-aware provider router. It exclusively owns quota
// mutation; RecordUsage is the only path that advances counters.
//
// Contract:
// - Concurrency: safe for concurrent use. Budget admission holds the router
//   lock across check and reservation, so two concurrent calls cannot both
//   pass a ceiling. The documented race tolerance is that the expected cost
//   is reserved up front and reconciled to the actual cost on completion;
//   overshoot is bounded by the per-call difference between the two.
type Router struct {
	mu        sync.Mutex
	states    map[string]*providerState
	order     []string // provider ids, sorted for deterministic iteration
	adapters  map[string]provider.Provider
	budget    policy.Budget
	spentDay  float64
	spentMon  float64
	reserved  float64
	day       time.Time
	month     time.Time
	recorded  map[string]bool // attempt ids already counted
	maxTries  int
	now       func() time.Time
	logger    observe.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) { r.now = now }
}

// WithLogger sets the router's logger.
func WithLogger(l observe.Logger) RouterOption {
	return func(r *Router) { r.logger = l.WithComponent("route") }
}

// NewRouter creates a router from the deployment policy and the provider
// adapters. Every adapter must have a matching policy entry.
func NewRouter(pol policy.Policy, adapters []provider.Provider, opts ...RouterOption) (*Router, error) {
	r := &Router{
		states:   make(map[string]*providerState, len(pol.Providers)),
		adapters: make(map[string]provider.Provider, len(adapters)),
		budget:   pol.Budget,
		recorded: make(map[string]bool),
		maxTries: pol.MaxProviderAttempts,
		now:      time.Now,
		logger:   observe.NopLogger(),
	}
	if r.maxTries <= 0 {
		r.maxTries = DefaultMaxAttempts
	}

	for _, pp := range pol.Providers {
		r.states[pp.ID] = &providerState{pol: pp}
		r.order = append(r.order, pp.ID)
	}
	sort.Strings(r.order)

	for _, a := range adapters {
		if _, ok := r.states[a.ID()]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, a.ID())
		}
		r.adapters[a.ID()] = a
	}

	for _, opt := range opts {
		opt(r)
	}

	now := r.now().UTC()
	r.day = dayOf(now)
	r.month = monthOf(now)
	return r, nil
}

func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func monthOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Select picks the cheapest eligible provider for a capability and verifies
// the global budget against its expected cost. It does not reserve anything;
// Dispatch is the reserving path.
func (r *Router) Select(capability string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, _, err := r.selectLocked(capability, nil)
	return id, err
}

// selectLocked picks the cheapest eligible provider not in exclude.
// Eligibility: advertises the capability, has a registered adapter, and has
// daily and monthly quota headroom. Quota-saturated providers are excluded
// silently. Ties on cost break by lower Priority, then lexical id, keeping
// selection total and deterministic.
func (r *Router) selectLocked(capability string, exclude map[string]bool) (string, float64, error) {
	var (
		bestID string
		best   *providerState
	)
	for _, id := range r.order {
		if exclude[id] {
			continue
		}
		if _, ok := r.adapters[id]; !ok {
			continue
		}
		ps := r.states[id]
		if !hasCapability(ps.pol, capability) {
			continue
		}
		if ps.pol.DailyLimit > 0 && ps.usedToday+ps.inflight >= ps.pol.DailyLimit {
			continue
		}
		if ps.pol.MonthlyLimit > 0 && ps.usedMonth+ps.inflight >= ps.pol.MonthlyLimit {
			continue
		}

		if best == nil || cheaper(ps, best) {
			best, bestID = ps, id
		}
	}
	if best == nil {
		return "", 0, ErrNoProvider
	}

	expected := r.expectedCostLocked(best)
	if err := r.checkBudgetLocked(expected); err != nil {
		return "", 0, err
	}
	return bestID, expected, nil
}

func hasCapability(pp policy.ProviderPolicy, capability string) bool {
	for _, c := range pp.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// cheaper reports whether a should be preferred over b.
func cheaper(a, b *providerState) bool {
	if a.pol.CostPerRequest != b.pol.CostPerRequest {
		return a.pol.CostPerRequest < b.pol.CostPerRequest
	}
	if a.pol.Priority != b.pol.Priority {
		return a.pol.Priority < b.pol.Priority
	}
	return a.pol.ID < b.pol.ID
}

// expectedCostLocked is the call's expected cost: zero while the provider is
// inside its monthly free quota, its cost-per-request after.
func (r *Router) expectedCostLocked(ps *providerState) float64 {
	if ps.usedMonth < ps.pol.FreeQuotaPerMonth {
		return 0
	}
	return ps.pol.CostPerRequest
}

// checkBudgetLocked rejects when a ceiling is already met, or would be
// exceeded by the expected cost plus outstanding reservations.
func (r *Router) checkBudgetLocked(expected float64) error {
	if r.budget.DailyCeiling > 0 {
		if r.spentDay+r.reserved >= r.budget.DailyCeiling ||
			r.spentDay+r.reserved+expected > r.budget.DailyCeiling {
			return ErrBudgetExceeded
		}
	}
	if r.budget.MonthlyCeiling > 0 {
		if r.spentMon+r.reserved >= r.budget.MonthlyCeiling ||
			r.spentMon+r.reserved+expected > r.budget.MonthlyCeiling {
			return ErrBudgetExceeded
		}
	}
	return nil
}

// CheckBudget reports whether the global budget permits any further spend.
func (r *Router) CheckBudget() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkBudgetLocked(0)
}

// RecordUsage advances the provider's quota counters and the global spend.
// It is idempotent per attempt id: retries of the same attempt never count
// twice. This is the only mutation path for quota counters.
func (r *Router) RecordUsage(providerID, attemptID string, cost float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settleLocked(providerID, attemptID, 0, cost)
}

func (r *Router) settleLocked(providerID, attemptID string, reserved, cost float64) {
	r.reserved -= reserved
	if r.reserved < 0 {
		r.reserved = 0
	}
	ps, ok := r.states[providerID]
	if !ok {
		return
	}
	if r.recorded[attemptID] {
		return
	}
	r.recorded[attemptID] = true
	ps.usedToday++
	ps.usedMonth++
	ps.spentMonth += cost
	r.spentDay += cost
	r.spentMon += cost
}

// MaybeReset applies UTC day/month boundary resets. It is the single reset
// operation; call paths never reset counters themselves. Run drives it on a
// schedule.
func (r *Router) MaybeReset(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d := dayOf(now); d.After(r.day) {
		r.day = d
		r.spentDay = 0
		for _, ps := range r.states {
			ps.usedToday = 0
		}
	}
	if m := monthOf(now); m.After(r.month) {
		r.month = m
		r.spentMon = 0
		for _, ps := range r.states {
			ps.usedMonth = 0
			ps.spentMonth = 0
		}
	}
}

// Run invokes MaybeReset on a fixed cadence until the context is canceled.
func (r *Router) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.MaybeReset(now)
		}
	}
}

// Usage returns a provider's current period counters.
func (r *Router) Usage(providerID string) (usedToday, usedThisMonth int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, found := r.states[providerID]
	if !found {
		return 0, 0, false
	}
	return ps.usedToday, ps.usedMonth, true
}

// Spent returns the global spend for the current day and month.
func (r *Router) Spent() (day, month float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spentDay, r.spentMon
}
