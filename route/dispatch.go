package route

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/searchcache/observe"
	"github.com/jonwraymond/searchcache/provider"
)

// Dispatch resolves a cache miss through the provider chain: select the
// cheapest eligible provider, reserve its expected cost against the budget,
// call it with its configured timeout, and on transient failure release the
// reservation and fall back to the next-cheapest provider. maxAttempts <= 0
// uses the policy default. Permanent provider errors abort immediately.
func (r *Router) Dispatch(ctx context.Context, q provider.Query, maxAttempts int) (provider.Result, string, error) {
	if maxAttempts <= 0 {
		maxAttempts = r.maxTries
	}
	capability := string(q.CacheType)
	exclude := make(map[string]bool)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		r.mu.Lock()
		id, expected, err := r.selectLocked(capability, exclude)
		if err == nil {
			// Reserve the expected spend and a quota slot so concurrent
			// dispatches cannot collectively overrun a ceiling or limit.
			r.reserved += expected
			r.states[id].inflight++
		}
		r.mu.Unlock()

		if err != nil {
			if lastErr != nil {
				return provider.Result{}, "", fmt.Errorf("%w (last attempt: %v)", err, lastErr)
			}
			return provider.Result{}, "", err
		}

		attemptID := uuid.NewString()
		res, callErr := r.call(ctx, id, q)
		if callErr == nil {
			// One successful call, counted exactly once for this attempt id.
			r.mu.Lock()
			r.states[id].inflight--
			r.settleLocked(id, attemptID, expected, res.Cost)
			r.mu.Unlock()
			return res, id, nil
		}

		r.mu.Lock()
		r.reserved -= expected
		if r.reserved < 0 {
			r.reserved = 0
		}
		r.states[id].inflight--
		r.mu.Unlock()

		if provider.IsPermanent(callErr) {
			return provider.Result{}, id, callErr
		}
		if ctx.Err() != nil {
			return provider.Result{}, id, ctx.Err()
		}

		r.logger.Warn(ctx, "provider call failed, trying fallback",
			observe.Field{Key: "provider", Value: id},
			observe.Field{Key: "attempt", Value: attempt + 1},
			observe.Field{Key: "error", Value: callErr.Error()},
		)
		lastErr = callErr
		exclude[id] = true
	}

	return provider.Result{}, "", fmt.Errorf("%w: fallback attempts exhausted: %v", ErrNoProvider, lastErr)
}

type callOutcome struct {
	res provider.Result
	err error
}

// call runs one provider attempt under the provider's configured timeout.
// A deadline hit maps to ErrProviderTimeout, which is transient.
func (r *Router) call(ctx context.Context, id string, q provider.Query) (provider.Result, error) {
	r.mu.Lock()
	timeout := r.states[id].pol.Timeout
	adapter := r.adapters[id]
	r.mu.Unlock()

	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan callOutcome, 1)
	go func() {
		res, err := adapter.Search(callCtx, q)
		done <- callOutcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		return out.res, out.err
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return provider.Result{}, fmt.Errorf("%w: %s after %s", ErrProviderTimeout, id, timeout)
		}
		return provider.Result{}, callCtx.Err()
	}
}

// Timeout returns the effective call timeout for a provider.
func (r *Router) Timeout(providerID string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, ok := r.states[providerID]
	if !ok || ps.pol.Timeout <= 0 {
		return DefaultProviderTimeout
	}
	return ps.pol.Timeout
}
