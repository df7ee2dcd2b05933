package match

import (
	"github.com/xhad/reanchor/internal/models"
)

// trigramMatcher is tier 4, the last resort: n-gram overlap scoring across
// the whole haystack. It has no acceptance gate and returns the best-scoring
// span it finds; classification of a weak score happens downstream. Equal
// scores resolve to the leftmost span.
type trigramMatcher struct{}

func (trigramMatcher) attempt(needle, haystack string, _ Hints) (Candidate, int, bool) {
	n := len(needle)
	needleSet := trigramSet(normalizeFuzzy(needle))
	if len(needleSet) == 0 {
		return Candidate{}, 0, false
	}

	hay := normalizeFuzzy(haystack)
	if len(hay) <= n {
		score := jaccard(needleSet, trigramSet(hay))
		if score == 0 {
			return Candidate{}, 0, false
		}
		return Candidate{Start: 0, End: len(haystack), Confidence: score, Method: models.MethodTrigram}, 0, true
	}

	step := n / 4
	if step < 1 {
		step = 1
	}

	bestStart, bestScore := -1, 0.0
	for i := 0; i+n <= len(hay); i += step {
		score := jaccard(needleSet, trigramSet(hay[i:i+n]))
		if score > bestScore {
			bestScore = score
			bestStart = i
			if score == 1 {
				break
			}
		}
	}
	if bestStart < 0 || bestScore == 0 {
		return Candidate{}, 0, false
	}

	// Refine around the coarse winner; ties keep the leftmost start.
	lo := bestStart - step + 1
	if lo < 0 {
		lo = 0
	}
	hi := bestStart + step - 1
	for i := lo; i <= hi && i+n <= len(hay); i++ {
		if i == bestStart {
			continue
		}
		score := jaccard(needleSet, trigramSet(hay[i:i+n]))
		if score > bestScore || (score == bestScore && i < bestStart) {
			bestScore = score
			bestStart = i
		}
	}

	end := bestStart + n
	if end > len(haystack) {
		end = len(haystack)
	}
	return Candidate{
		Start:      bestStart,
		End:        end,
		Confidence: bestScore,
		Method:     models.MethodTrigram,
	}, 0, true
}

func trigramSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for i := 0; i+3 <= len(s); i++ {
		set[s[i:i+3]] = struct{}{}
	}
	return set
}

// jaccard is |a ∩ b| / |a ∪ b| over trigram sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for t := range a {
		if _, ok := b[t]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}
