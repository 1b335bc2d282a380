package extract

import "sort"

// tieEpsilon is the score difference below which two sentences tie.
const tieEpsilon = 1e-12

// Select returns the indices of the k highest scores in ascending index
// order. k is clamped to [1, len(scores)]. Scores are ranked exactly,
// then neighbours in that ranking that differ by at most tieEpsilon form
// one tie group, ordered by index. Ties go to the lower index.
func Select(scores []float64, k int) []int {
	n := len(scores)
	if n == 0 {
		return nil
	}
	k = clamp(k, 1, n)

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		sa, sb := scores[order[a]], scores[order[b]]
		if sa != sb {
			return sa > sb
		}
		return order[a] < order[b]
	})
	// Runs of adjacent scores closer than tieEpsilon tie; each run goes
	// back to document order.
	for lo := 0; lo < n; {
		hi := lo + 1
		for hi < n && scores[order[hi-1]]-scores[order[hi]] <= tieEpsilon {
			hi++
		}
		sort.Ints(order[lo:hi])
		lo = hi
	}

	picked := order[:k]
	sort.Ints(picked)
	return picked
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
