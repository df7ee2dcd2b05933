package match

// levenshtein computes the edit distance between two strings with a two-row
// table. Returns the distance and the number of table cells filled, which is
// the unit the engine uses to account search cost.
func levenshtein(a, b string) (int, int) {
	if a == b {
		return 0, 0
	}
	if len(a) == 0 {
		return len(b), 0
	}
	if len(b) == 0 {
		return len(a), 0
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
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)], len(a) * len(b)
}

// similarity is the normalized edit-distance score in [0,1].
func similarity(a, b string) (float64, int) {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0, 0
	}
	dist, cells := levenshtein(a, b)
	sim := 1.0 - float64(dist)/float64(longest)
	if sim < 0 {
		sim = 0
	}
	return sim, cells
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
