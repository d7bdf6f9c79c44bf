package curve

import "sort"

// findBracketOrBoundary finds the indices of two adjacent nodes that bracket
// the target. If the target is outside the range, returns the nearest
// boundary pair.
func findBracketOrBoundary(times []float64, target float64) (i1, i2 int) {
	if len(times) < 2 {
		panic("findBracketOrBoundary: need at least 2 nodes")
	}

	// Binary search for first node >= target
	idx := sort.SearchFloat64s(times, target)

	if idx <= 0 {
		return 0, 1
	}
	if idx >= len(times) {
		return len(times) - 2, len(times) - 1
	}
	return idx - 1, idx
}
