package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jonwraymond/searchcache/policy"
	"github.com/jonwraymond/searchcache/query"
)

func TestLookupBatch_DeduplicatesNearDuplicates(t *testing.T) {
	env := defaultEnv(t, 0.01)
	ctx := context.Background()

	// Two near-duplicate pairs plus one unique query: three provider calls.
	reqs := []Request{
		venueRequest("coffee shops in minneapolis"),
		venueRequest("coffee shop in minneapolis"),
		venueRequest("live music venues"),
		venueRequest("live music venue"),
		venueRequest("sushi downtown"),
	}

	responses, err := env.s.LookupBatch(ctx, reqs)
	if err != nil {
		t.Fatalf("LookupBatch failed: %v", err)
	}
	if len(responses) != len(reqs) {
		t.Fatalf("responses = %d, want %d", len(responses), len(reqs))
	}
	if env.calls.Load() != 3 {
		t.Errorf("provider calls = %d, want 3", env.calls.Load())
	}

	// Grouped members share the representative's items.
	if string(responses[0].Items[0]) != string(responses[1].Items[0]) {
		t.Error("pair 0/1 should share one result")
	}
	if string(responses[2].Items[0]) != string(responses[3].Items[0]) {
		t.Error("pair 2/3 should share one result")
	}
	if string(responses[0].Items[0]) == string(responses[2].Items[0]) {
		t.Error("distinct groups must not share results")
	}

	// Cost is attributed once per group.
	var total float64
	for _, r := range responses {
		total += r.Cost
	}
	if total != 0.03 {
		t.Errorf("summed cost = %v, want 0.03", total)
	}
}

func TestLookupBatch_PreservesSubmissionOrder(t *testing.T) {
	env := defaultEnv(t, 0.01)
	ctx := context.Background()

	reqs := []Request{
		venueRequest("zebra habitats"),
		venueRequest("aardvark burrows"),
		venueRequest("meerkat colonies"),
	}
	responses, err := env.s.LookupBatch(ctx, reqs)
	if err != nil {
		t.Fatal(err)
	}

	// The counting provider echoes the normalized query, so each response
	// identifies the request it belongs to.
	for i, want := range []string{"zebra habitats", "aardvark burrows", "meerkat colonies"} {
		if !strings.Contains(string(responses[i].Items[0]), want) {
			t.Errorf("responses[%d] = %s, want it to echo %q", i, responses[i].Items[0], want)
		}
	}
}

func TestLookupBatch_SeparatesLocations(t *testing.T) {
	env := defaultEnv(t, 0.01)
	ctx := context.Background()

	a := venueRequest("coffee shops")
	b := venueRequest("coffee shops")
	b.Location = "st paul"

	if _, err := env.s.LookupBatch(ctx, []Request{a, b}); err != nil {
		t.Fatal(err)
	}
	if env.calls.Load() != 2 {
		t.Errorf("provider calls = %d, want 2 for distinct locations", env.calls.Load())
	}
}

func TestLookupBatch_SeparatesCacheTypes(t *testing.T) {
	env := defaultEnv(t, 0.01)
	ctx := context.Background()

	a := venueRequest("coffee shops")
	b := venueRequest("coffee shops")
	b.Options.CacheType = policy.CacheGeneral

	if _, err := env.s.LookupBatch(ctx, []Request{a, b}); err != nil {
		t.Fatal(err)
	}
	if env.calls.Load() != 2 {
		t.Errorf("provider calls = %d, want 2 for distinct cache types", env.calls.Load())
	}
}

func TestLookupBatch_PerItemErrorsDoNotFailTheBatch(t *testing.T) {
	env := defaultEnv(t, 0.01)
	ctx := context.Background()

	reqs := []Request{
		venueRequest("coffee shops"),
		{Query: "   ", Options: Options{CacheType: policy.CacheVenue}},
		venueRequest("live music venues"),
	}
	responses, err := env.s.LookupBatch(ctx, reqs)
	if !errors.Is(err, query.ErrEmptyQuery) {
		t.Fatalf("err = %v, want to wrap ErrEmptyQuery", err)
	}
	if !strings.Contains(err.Error(), "request 1") {
		t.Errorf("error should name the failing request: %v", err)
	}

	if len(responses[0].Items) != 1 || len(responses[2].Items) != 1 {
		t.Error("valid requests should still resolve")
	}
	if len(responses[1].Items) != 0 {
		t.Error("failed request should have a zero response")
	}
}

func TestLookupBatch_EmptyBatch(t *testing.T) {
	env := defaultEnv(t, 0.01)
	responses, err := env.s.LookupBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("empty batch errored: %v", err)
	}
	if len(responses) != 0 {
		t.Errorf("responses = %d, want 0", len(responses))
	}
}
