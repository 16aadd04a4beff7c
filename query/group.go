package query

// Group is a cluster of near-duplicate queries within one batch. Members are
// indexes into the submitted slice; the first member is the representative.
type Group struct {
	// Representative is the normalized query dispatched for the whole group.
	Representative string

	// Members are the positions of the grouped queries in the batch.
	Members []int
}

// GroupBatch clusters normalized queries whose similarity to an existing
// group's representative meets the threshold. Grouping is greedy in
// submission order, so results are deterministic for a given batch.
func GroupBatch(normalized []string, threshold float64) []Group {
	groups := make([]Group, 0, len(normalized))

	for i, q := range normalized {
		placed := false
		for gi := range groups {
			if Similarity(q, groups[gi].Representative) >= threshold {
				groups[gi].Members = append(groups[gi].Members, i)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, Group{Representative: q, Members: []int{i}})
		}
	}
	return groups
}
