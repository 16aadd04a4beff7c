package query

import (
	"strings"
	"unicode"
)

// DefaultMaxLen is the default maximum query length in runes.
const DefaultMaxLen = 512

// Normalizer canonicalizes raw queries.
//
// Contract:
// - Determinism: the same raw query always yields the same normalized form,
//   so downstream cache keys stay stable.
// - Concurrency: safe for concurrent use.
type Normalizer struct {
	maxLen int
}

// NewNormalizer creates a Normalizer. maxLen <= 0 uses DefaultMaxLen.
func NewNormalizer(maxLen int) *Normalizer {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &Normalizer{maxLen: maxLen}
}

// Normalize canonicalizes a raw query: deterministic truncation to the
// configured rune limit, lowercase, trim, internal whitespace collapsed to
// single spaces, trailing punctuation stripped.
// Empty or whitespace-only input returns ErrEmptyQuery.
func (n *Normalizer) Normalize(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrEmptyQuery
	}

	// Truncate before normalization so hashing stays stable for long inputs.
	runes := []rune(raw)
	if len(runes) > n.maxLen {
		raw = string(runes[:n.maxLen])
	}

	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsPunct(r)
	})
	s = strings.TrimSpace(s)

	if s == "" {
		return "", ErrEmptyQuery
	}
	return s, nil
}

// Tokens splits a normalized query into its whitespace-separated tokens.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}
