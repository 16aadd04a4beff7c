package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jonwraymond/searchcache/observe"
	"github.com/jonwraymond/searchcache/policy"
)

const createEntriesTable = `
CREATE TABLE IF NOT EXISTS search_entries (
	key TEXT PRIMARY KEY,
	normalized_query TEXT NOT NULL,
	location TEXT NOT NULL,
	cache_type TEXT NOT NULL,
	payload BLOB NOT NULL,
	source_provider TEXT NOT NULL,
	cost REAL NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_search_entries_expires ON search_entries(expires_at);
`

// SQLite is the durable tier. Entries evicted from memory but not yet
// expired survive here across restarts.
type SQLite struct {
	db     *sql.DB
	now    func() time.Time
	logger observe.Logger
}

// SQLiteOption configures a SQLite store.
type SQLiteOption func(*SQLite)

// WithSQLiteClock overrides the time source. Used by tests.
func WithSQLiteClock(now func() time.Time) SQLiteOption {
	return func(s *SQLite) { s.now = now }
}

// WithSQLiteLogger sets the logger for corruption evictions.
func WithSQLiteLogger(l observe.Logger) SQLiteOption {
	return func(s *SQLite) { s.logger = l.WithComponent("store") }
}

// NewSQLite opens (creating if needed) the durable tier at the given path.
// Use ":memory:" for an ephemeral database.
func NewSQLite(path string, opts ...SQLiteOption) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open durable tier: %w", err)
	}

	if _, err := db.Exec(createEntriesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate durable tier: %w", err)
	}

	s := &SQLite{db: db, now: time.Now, logger: observe.NopLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get retrieves a live entry. Expired entries are deleted as a side effect
// of the read. A corrupt row is deleted and reported as a miss, never as an
// error to the caller.
func (s *SQLite) Get(ctx context.Context, key string) (Entry, bool) {
	e, ok := s.read(ctx, key)
	if !ok {
		return Entry{}, false
	}
	if e.Expired(s.now()) {
		_ = s.Delete(ctx, key)
		return Entry{}, false
	}
	return e, true
}

// GetStale retrieves an entry regardless of expiry.
func (s *SQLite) GetStale(ctx context.Context, key string) (Entry, bool) {
	return s.read(ctx, key)
}

func (s *SQLite) read(ctx context.Context, key string) (Entry, bool) {
	var (
		e                    Entry
		cacheType            string
		createdAt, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT key, normalized_query, location, cache_type, payload, source_provider, cost, created_at, expires_at
		 FROM search_entries WHERE key = ?`, key,
	).Scan(&e.Key, &e.NormalizedQuery, &e.Location, &cacheType, &e.Payload, &e.SourceProvider, &e.Cost, &createdAt, &expiresAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn(ctx, "durable tier read failed", observe.Field{Key: "error", Value: err.Error()})
		}
		return Entry{}, false
	}

	if !json.Valid(e.Payload) {
		// Corrupt row: evict silently and miss.
		_ = s.Delete(ctx, key)
		s.logger.Warn(ctx, "corrupt cache entry evicted", observe.Field{Key: "key", Value: key})
		return Entry{}, false
	}

	e.CacheType = policy.CacheType(cacheType)
	e.CreatedAt = time.Unix(0, createdAt).UTC()
	e.ExpiresAt = time.Unix(0, expiresAt).UTC()
	return e, true
}

// Put stores an entry, replacing any previous row for the key.
func (s *SQLite) Put(ctx context.Context, e Entry) error {
	if !e.Valid() {
		return ErrInvalidEntry
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO search_entries
		 (key, normalized_query, location, cache_type, payload, source_provider, cost, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Key, e.NormalizedQuery, e.Location, string(e.CacheType), []byte(e.Payload),
		e.SourceProvider, e.Cost, e.CreatedAt.UnixNano(), e.ExpiresAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("store: put: %w", err)
	}
	return nil
}

// Delete removes an entry. Idempotent.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM search_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("store: delete: %w", err)
	}
	return nil
}

// EvictExpired removes all expired rows.
func (s *SQLite) EvictExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM search_entries WHERE expires_at <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("store: evict expired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

// Scan calls fn for every live row. Rows whose payloads fail to deserialize
// are collected and deleted after the scan, then skipped.
func (s *SQLite) Scan(ctx context.Context, fn func(Entry) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, normalized_query, location, cache_type, payload, source_provider, cost, created_at, expires_at
		 FROM search_entries WHERE expires_at > ?`, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("store: scan: %w", err)
	}
	defer rows.Close()

	var corrupt []string
	for rows.Next() {
		var (
			e                    Entry
			cacheType            string
			createdAt, expiresAt int64
		)
		if err := rows.Scan(&e.Key, &e.NormalizedQuery, &e.Location, &cacheType, &e.Payload,
			&e.SourceProvider, &e.Cost, &createdAt, &expiresAt); err != nil {
			return fmt.Errorf("store: scan row: %w", err)
		}

		if !json.Valid(e.Payload) {
			corrupt = append(corrupt, e.Key)
			continue
		}

		e.CacheType = policy.CacheType(cacheType)
		e.CreatedAt = time.Unix(0, createdAt).UTC()
		e.ExpiresAt = time.Unix(0, expiresAt).UTC()
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("store: scan: %w", err)
	}

	for _, key := range corrupt {
		_ = s.Delete(ctx, key)
		s.logger.Warn(ctx, "corrupt cache entry dropped during scan", observe.Field{Key: "key", Value: key})
	}
	return nil
}

// Len returns the number of rows, including expired ones not yet evicted.
func (s *SQLite) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM search_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: len: %w", err)
	}
	return n, nil
}

// Close releases the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ensure SQLite implements Store and Scanner
var (
	_ Store   = (*SQLite)(nil)
	_ Scanner = (*SQLite)(nil)
)
