package match

// slidingSearch compares needle against every window of its own length in
// region, coarse-stepped first and then refined around the winner. Returns
// the best window start relative to region, the best similarity and the
// edit-distance cells spent. Equal scores keep the leftmost start.
func slidingSearch(needle, region string) (int, float64, int) {
	n := len(needle)
	if n == 0 || len(region) == 0 {
		return -1, 0, 0
	}
	if len(region) <= n {
		sim, cells := similarity(needle, region)
		return 0, sim, cells
	}

	step := stepFor(n)
	bestStart, bestSim, total := -1, 0.0, 0

	for i := 0; i+n <= len(region); i += step {
		sim, cells := similarity(needle, region[i:i+n])
		total += cells
		if sim > bestSim {
			bestSim = sim
			bestStart = i
			if sim == 1 {
				return bestStart, bestSim, total
			}
		}
	}
	if bestStart < 0 {
		return -1, 0, total
	}

	// Refine at single-byte granularity around the coarse winner.
	lo := bestStart - step + 1
	if lo < 0 {
		lo = 0
	}
	hi := bestStart + step - 1
	for i := lo; i <= hi && i+n <= len(region); i++ {
		if i == bestStart {
			continue
		}
		sim, cells := similarity(needle, region[i:i+n])
		total += cells
		if sim > bestSim || (sim == bestSim && i < bestStart) {
			bestSim = sim
			bestStart = i
		}
	}

	return bestStart, bestSim, total
}

// stepFor picks the coarse scan stride: finer steps for short needles,
// capped so long needles stay cheap to scan.
func stepFor(needleLen int) int {
	step := needleLen / 20
	if step < 5 {
		step = 5
	}
	if step > 10 {
		step = 10
	}
	return step
}
