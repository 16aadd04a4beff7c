package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/searchcache/policy"
	"github.com/jonwraymond/searchcache/query"
)

// batchItem is one request's position within a dedup bucket.
type batchItem struct {
	idx        int
	normalized string
}

// LookupBatch resolves a batch of requests, deduplicating near-identical
// queries before any provider is called. Requests are bucketed by cache type,
// location, and fuzzy option; within a bucket, queries whose similarity meets
// the type's threshold share one resolution. The response slice preserves
// submission order, and per-request failures are joined into the returned
// error without failing the rest of the batch.
func (s *Searcher) LookupBatch(ctx context.Context, reqs []Request) ([]Response, error) {
	responses := make([]Response, len(reqs))
	var errs []error

	type bucketKey struct {
		ct       policy.CacheType
		location string
		fuzzy    bool
	}
	buckets := make(map[bucketKey][]batchItem)
	var order []bucketKey

	for i, req := range reqs {
		ct := req.Options.CacheType
		if ct == "" {
			ct = policy.CacheGeneral
		}
		normalized, err := s.norm.Normalize(req.Query)
		if err != nil {
			errs = append(errs, fmt.Errorf("search: request %d: %w", i, err))
			continue
		}

		bk := bucketKey{ct: ct, location: req.Location, fuzzy: req.Options.FuzzyMatch}
		if _, ok := buckets[bk]; !ok {
			order = append(order, bk)
		}
		buckets[bk] = append(buckets[bk], batchItem{idx: i, normalized: normalized})
	}

	for _, bk := range order {
		items := buckets[bk]
		normalized := make([]string, len(items))
		for i, it := range items {
			normalized[i] = it.normalized
		}

		for _, g := range query.GroupBatch(normalized, s.thresholds.ForType(bk.ct)) {
			rep := items[g.Members[0]].idx
			resp, err := s.Lookup(ctx, reqs[rep])
			if err != nil {
				for _, m := range g.Members {
					errs = append(errs, fmt.Errorf("search: request %d: %w", items[m].idx, err))
				}
				continue
			}
			for mi, m := range g.Members {
				r := resp
				if mi > 0 {
					// Grouped members share the representative's result; the
					// provider cost is attributed once.
					r.Cost = 0
				}
				responses[items[m].idx] = r
			}
		}
	}

	return responses, errors.Join(errs...)
}
