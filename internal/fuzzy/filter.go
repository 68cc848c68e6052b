package fuzzy

import "sort"

// Match points back into the candidate slice handed to Filter.
type Match struct {
	Index int
	Score int
}

// Filter scores every candidate against the query and returns the ones
// at or above cutoff, sorted by descending score. Ties keep candidate
// order. A cutoff <= 0 selects DefaultCutoff.
func Filter(query string, candidates []string, cutoff int) []Match {
	if cutoff <= 0 {
		cutoff = DefaultCutoff
	}
	matches := make([]Match, 0, len(candidates))
	for i, candidate := range candidates {
		score := WRatio(query, candidate)
		if score >= cutoff {
			matches = append(matches, Match{Index: i, Score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}
