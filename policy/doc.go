// Package policy defines the deployment policy consumed by the search cache:
// per-cache-type TTLs, fuzzy-match thresholds and average call costs, per-provider
// cost and quota limits, and the global spend budget.
package policy
