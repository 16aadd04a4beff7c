package policy

import (
	"fmt"
	"time"
)

// CacheType classifies a query for TTL, threshold, and savings accounting.
type CacheType string

// Known cache types.
const (
	CacheVenue    CacheType = "venue"
	CacheNews     CacheType = "news"
	CacheResearch CacheType = "research"
	CacheEvents   CacheType = "events"
	CacheGeneral  CacheType = "general"
)

// CacheTypes lists all known cache types in a fixed order.
var CacheTypes = []CacheType{CacheVenue, CacheNews, CacheResearch, CacheEvents, CacheGeneral}

// Valid reports whether the cache type is one of the known types.
func (c CacheType) Valid() bool {
	switch c {
	case CacheVenue, CacheNews, CacheResearch, CacheEvents, CacheGeneral:
		return true
	}
	return false
}

// TypePolicy configures one cache type.
type TypePolicy struct {
	// TTL is how long a cached entry for this type stays live.
	TTL time.Duration `yaml:"ttl"`

	// Threshold is the minimum similarity score for a fuzzy hit, in [0,1].
	Threshold float64 `yaml:"threshold"`

	// AvgCost is the average per-call provider cost used for savings estimation.
	AvgCost float64 `yaml:"avg_cost"`
}

// ProviderPolicy configures one upstream provider.
type ProviderPolicy struct {
	// ID identifies the provider; must match the adapter's ID.
	ID string `yaml:"id"`

	// CostPerRequest is the monetary cost of one billed call.
	CostPerRequest float64 `yaml:"cost_per_request"`

	// FreeQuotaPerMonth is the number of calls per month billed at zero cost.
	FreeQuotaPerMonth int `yaml:"free_quota_per_month"`

	// DailyLimit and MonthlyLimit cap dispatched calls per period.
	DailyLimit   int `yaml:"daily_limit"`
	MonthlyLimit int `yaml:"monthly_limit"`

	// Priority breaks cost ties during selection; lower wins.
	Priority int `yaml:"priority"`

	// Timeout bounds a single call to this provider.
	// Default: 10 seconds.
	Timeout time.Duration `yaml:"timeout"`

	// Capabilities lists the cache types this provider can serve.
	Capabilities []string `yaml:"capabilities"`
}

// Budget is the global spend ceiling across all providers.
type Budget struct {
	DailyCeiling   float64 `yaml:"daily_ceiling"`
	MonthlyCeiling float64 `yaml:"monthly_ceiling"`
}

// Policy is the full deployment policy.
type Policy struct {
	// Types maps each cache type to its TTL/threshold/avg-cost policy.
	Types map[CacheType]TypePolicy `yaml:"types"`

	// LocationThreshold is the similarity threshold for pure location strings.
	LocationThreshold float64 `yaml:"location_threshold"`

	// Providers configures the upstream providers, including fallback priority.
	Providers []ProviderPolicy `yaml:"providers"`

	// Budget is the global daily/monthly spend ceiling.
	Budget Budget `yaml:"budget"`

	// MaxQueryLen is the maximum query length in runes before deterministic
	// truncation. Default: 512.
	MaxQueryLen int `yaml:"max_query_len"`

	// MaxProviderAttempts caps fallback attempts for one logical request.
	// Default: 3.
	MaxProviderAttempts int `yaml:"max_provider_attempts"`

	// IndexRebuildInterval is how often the fuzzy index is rebuilt.
	// Default: 5 minutes.
	IndexRebuildInterval time.Duration `yaml:"index_rebuild_interval"`

	// MetricsRetention is how long raw metric events are kept.
	// Default: 30 days.
	MetricsRetention time.Duration `yaml:"metrics_retention"`
}

// Default returns the default policy.
func Default() Policy {
	return Policy{
		Types: map[CacheType]TypePolicy{
			CacheVenue:    {TTL: 30 * 24 * time.Hour, Threshold: 0.85, AvgCost: 0.01},
			CacheNews:     {TTL: 24 * time.Hour, Threshold: 0.90, AvgCost: 0.01},
			CacheResearch: {TTL: 90 * 24 * time.Hour, Threshold: 0.80, AvgCost: 0.02},
			CacheEvents:   {TTL: 7 * 24 * time.Hour, Threshold: 0.90, AvgCost: 0.01},
			CacheGeneral:  {TTL: 7 * 24 * time.Hour, Threshold: 0.90, AvgCost: 0.01},
		},
		LocationThreshold:    0.95,
		Budget:               Budget{DailyCeiling: 5.0, MonthlyCeiling: 100.0},
		MaxQueryLen:          512,
		MaxProviderAttempts:  3,
		IndexRebuildInterval: 5 * time.Minute,
		MetricsRetention:     30 * 24 * time.Hour,
	}
}

// Validate checks the policy for internal consistency.
func (p Policy) Validate() error {
	for ct, tp := range p.Types {
		if !ct.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownCacheType, ct)
		}
		if tp.TTL <= 0 {
			return fmt.Errorf("%w: type %q ttl must be positive", ErrInvalidPolicy, ct)
		}
		if tp.Threshold < 0 || tp.Threshold > 1 {
			return fmt.Errorf("%w: type %q threshold must be in [0,1]", ErrInvalidPolicy, ct)
		}
		if tp.AvgCost < 0 {
			return fmt.Errorf("%w: type %q avg_cost must not be negative", ErrInvalidPolicy, ct)
		}
	}
	if p.LocationThreshold < 0 || p.LocationThreshold > 1 {
		return fmt.Errorf("%w: location_threshold must be in [0,1]", ErrInvalidPolicy)
	}

	seen := make(map[string]bool, len(p.Providers))
	for _, pp := range p.Providers {
		if pp.ID == "" {
			return fmt.Errorf("%w: provider id is required", ErrInvalidPolicy)
		}
		if seen[pp.ID] {
			return fmt.Errorf("%w: %q", ErrDuplicateProvider, pp.ID)
		}
		seen[pp.ID] = true
		if pp.CostPerRequest < 0 {
			return fmt.Errorf("%w: provider %q cost_per_request must not be negative", ErrInvalidPolicy, pp.ID)
		}
		if pp.DailyLimit < 0 || pp.MonthlyLimit < 0 || pp.FreeQuotaPerMonth < 0 {
			return fmt.Errorf("%w: provider %q limits must not be negative", ErrInvalidPolicy, pp.ID)
		}
		for _, cap := range pp.Capabilities {
			if !CacheType(cap).Valid() {
				return fmt.Errorf("%w: provider %q capability %q", ErrUnknownCacheType, pp.ID, cap)
			}
		}
	}

	if p.Budget.DailyCeiling < 0 || p.Budget.MonthlyCeiling < 0 {
		return fmt.Errorf("%w: budget ceilings must not be negative", ErrInvalidPolicy)
	}
	if p.MaxQueryLen < 0 || p.MaxProviderAttempts < 0 {
		return fmt.Errorf("%w: limits must not be negative", ErrInvalidPolicy)
	}
	return nil
}

// TypeFor returns the policy for a cache type, falling back to defaults
// when the type has no explicit entry.
func (p Policy) TypeFor(ct CacheType) TypePolicy {
	if tp, ok := p.Types[ct]; ok {
		return tp
	}
	return Default().Types[CacheGeneral]
}
