// Package fuzzy scores supplier listings against a search query. The
// scorer follows the classic weighted-ratio scheme: a base similarity
// ratio combined with token-sort, token-set and (for very uneven
// lengths) best-window partial ratios, all on a 0-100 scale.
package fuzzy

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// DefaultCutoff is the minimum score a candidate must reach to survive
// filtering. Tuned permissive: reagent listings bury the substance name
// in grades, pack sizes and catalog noise.
const DefaultCutoff = 40

// WRatio is the weighted composite similarity between a query and a
// candidate title.
func WRatio(query, candidate string) int {
	a, b := normalize(query), normalize(candidate)
	if a == "" || b == "" {
		return 0
	}

	best := ratio(a, b)
	if s := scale(tokenSortRatio(a, b), 0.95); s > best {
		best = s
	}
	if s := scale(tokenSetRatio(a, b), 0.95); s > best {
		best = s
	}

	la, lb := len([]rune(a)), len([]rune(b))
	longer, shorter := la, lb
	if lb > la {
		longer, shorter = lb, la
	}
	if shorter > 0 && float64(longer)/float64(shorter) > 1.5 {
		if s := scale(partialRatio(a, b), 0.9); s > best {
			best = s
		}
	}

	if best > 100 {
		best = 100
	}
	return best
}

// ratio is the indel similarity of two normalized strings:
// 200*LCS/(len(a)+len(b)).
func ratio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 100
	}
	common := longestCommonSubsequence(ra, rb)
	return int(math.Round(200 * float64(common) / float64(len(ra)+len(rb))))
}

// partialRatio slides the shorter string over the longer one and keeps
// the best window ratio.
func partialRatio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(ra) == 0 {
		return 0
	}
	best := 0
	for start := 0; start+len(ra) <= len(rb); start++ {
		window := rb[start : start+len(ra)]
		if r := ratio(string(ra), string(window)); r > best {
			best = r
			if best == 100 {
				break
			}
		}
	}
	return best
}

func tokenSortRatio(a, b string) int {
	return ratio(sortedTokens(a), sortedTokens(b))
}

// tokenSetRatio compares the shared-token core against each side's
// full token set, which makes supersets of the query score high.
func tokenSetRatio(a, b string) int {
	setA := tokenSet(a)
	setB := tokenSet(b)

	var shared, onlyA, onlyB []string
	for token := range setA {
		if _, ok := setB[token]; ok {
			shared = append(shared, token)
		} else {
			onlyA = append(onlyA, token)
		}
	}
	for token := range setB {
		if _, ok := setA[token]; !ok {
			onlyB = append(onlyB, token)
		}
	}
	sort.Strings(shared)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	core := strings.Join(shared, " ")
	full1 := strings.TrimSpace(core + " " + strings.Join(onlyA, " "))
	full2 := strings.TrimSpace(core + " " + strings.Join(onlyB, " "))

	best := ratio(full1, full2)
	if core != "" {
		if r := ratio(core, full1); r > best {
			best = r
		}
		if r := ratio(core, full2); r > best {
			best = r
		}
	}
	return best
}

// longestCommonSubsequence uses the two-row DP form; memory stays
// proportional to the shorter input.
func longestCommonSubsequence(a, b []rune) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	prev := make([]int, len(a)+1)
	curr := make([]int, len(a)+1)
	for i := 1; i <= len(b); i++ {
		for j := 1; j <= len(a); j++ {
			if b[i-1] == a[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(a)]
}

func normalize(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

func sortedTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range strings.Fields(s) {
		set[token] = struct{}{}
	}
	return set
}

func scale(score int, factor float64) int {
	return int(math.Round(float64(score) * factor))
}
