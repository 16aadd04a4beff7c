// Package query canonicalizes raw search queries and scores their similarity.
//
// It provides normalization (lowercase, whitespace collapse, trailing
// punctuation strip, deterministic truncation), an edit-distance similarity
// score in [0,1], per-cache-type match thresholds, and batch grouping of
// near-duplicate queries.
package query
