// Package search is the cache-first lookup orchestrator.
//
// A lookup checks the exact cache key, then fuzzy-matches against indexed
// queries, and only then dispatches to a paid provider. Concurrent misses on
// the same key collapse into a single provider call, and budget exhaustion
// degrades to serving stale cached data rather than failing outright.
package search
