package query

import "github.com/jonwraymond/searchcache/policy"

// Similarity scores two normalized queries in [0,1]. Identical strings score
// 1.0 without running the edit-distance metric; otherwise the score is
// 1 - levenshtein(a,b)/max(len(a),len(b)) over runes.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein(ra, rb))/float64(longest)
}

// levenshtein computes the edit distance with a two-row dynamic program.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost

			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			curr[j] = m
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// Thresholds holds the per-cache-type minimum similarity for a fuzzy match.
// These are deployment configuration, not constants.
type Thresholds struct {
	// ByType maps cache types to their minimum score.
	ByType map[policy.CacheType]float64

	// Location is the threshold for pure location strings.
	Location float64
}

// ThresholdsFrom extracts fuzzy-match thresholds from a policy.
func ThresholdsFrom(p policy.Policy) Thresholds {
	byType := make(map[policy.CacheType]float64, len(p.Types))
	for ct, tp := range p.Types {
		byType[ct] = tp.Threshold
	}
	return Thresholds{ByType: byType, Location: p.LocationThreshold}
}

// ForType returns the threshold for a cache type. Unconfigured types use the
// general default of 0.90.
func (t Thresholds) ForType(ct policy.CacheType) float64 {
	if v, ok := t.ByType[ct]; ok {
		return v
	}
	return 0.90
}
