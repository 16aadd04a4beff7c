// Package store provides the two-tier cache store for search responses: a
// bounded in-memory LRU tier over a durable SQLite tier, plus a
// snapshot-swapped token index that serves fuzzy-match candidate lookups and
// is rebuilt in the background.
package store
