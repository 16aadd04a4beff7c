// Package metrics records lookup outcomes and derives cost/savings summaries.
//
// The recorder keeps an append-only event log: one event per logical lookup.
// Summaries over a time window report hit rates, spend, and the estimated
// spend avoided by serving from cache instead of a paid provider.
package metrics
