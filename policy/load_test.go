package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const samplePolicy = `
types:
  venue:
    ttl: 720h
    threshold: 0.85
    avg_cost: 0.015
  news:
    ttl: 12h
    threshold: 0.92
    avg_cost: 0.005
location_threshold: 0.97
providers:
  - id: alpha
    cost_per_request: 0.01
    free_quota_per_month: 100
    daily_limit: 500
    monthly_limit: 10000
    priority: 1
    timeout: 5s
    capabilities: [venue, general]
  - id: beta
    cost_per_request: 0.02
    daily_limit: 200
    monthly_limit: 4000
    priority: 2
    capabilities: [venue, news, research, events, general]
budget:
  daily_ceiling: 2.5
  monthly_ceiling: 50
max_provider_attempts: 2
`

func TestParse_Overlay(t *testing.T) {
	p, err := Parse([]byte(samplePolicy))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if got := p.Types[CacheVenue].TTL; got != 720*time.Hour {
		t.Errorf("venue TTL = %v, want 720h", got)
	}
	if got := p.Types[CacheNews].Threshold; got != 0.92 {
		t.Errorf("news threshold = %v, want 0.92", got)
	}
	// Types absent from the file keep defaults.
	if got := p.Types[CacheResearch].TTL; got != 90*24*time.Hour {
		t.Errorf("research TTL = %v, want default 90 days", got)
	}
	if p.LocationThreshold != 0.97 {
		t.Errorf("location threshold = %v, want 0.97", p.LocationThreshold)
	}

	if len(p.Providers) != 2 {
		t.Fatalf("providers = %d, want 2", len(p.Providers))
	}
	if p.Providers[0].ID != "alpha" || p.Providers[0].Timeout != 5*time.Second {
		t.Errorf("unexpected first provider: %+v", p.Providers[0])
	}
	if p.Budget.DailyCeiling != 2.5 {
		t.Errorf("daily ceiling = %v, want 2.5", p.Budget.DailyCeiling)
	}
	if p.MaxProviderAttempts != 2 {
		t.Errorf("max attempts = %d, want 2", p.MaxProviderAttempts)
	}
	// Absent scalar keeps its default.
	if p.MaxQueryLen != 512 {
		t.Errorf("max query len = %d, want default 512", p.MaxQueryLen)
	}
}

func TestParse_InvalidPolicy(t *testing.T) {
	_, err := Parse([]byte("location_threshold: 2.0\n"))
	if !errors.Is(err, ErrInvalidPolicy) {
		t.Errorf("error = %v, want ErrInvalidPolicy", err)
	}

	_, err = Parse([]byte("types: [not, a, map]\n"))
	if err == nil {
		t.Error("expected parse error for malformed yaml")
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(samplePolicy), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(p.Providers) != 2 {
		t.Errorf("providers = %d, want 2", len(p.Providers))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
