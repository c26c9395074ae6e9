package analysis

import "sort"

const (
	// Neighbor distance checked on each side of a local extremum. Series
	// shorter than 2*levelNeighbors+1 yield no levels, and the first and
	// last levelNeighbors positions are never candidates.
	levelNeighbors = 2

	maxLevels = 3
)

// FindSupportLevels scans the lows for local minima, points less than or
// equal to both neighbors at distance 1 and 2 on each side, and returns the
// three highest such minima in descending order. Significance is
// deliberately highest-price-first rather than distance-from-current-price.
func FindSupportLevels(lows []float64) []float64 {
	var minima []float64
	for i := levelNeighbors; i < len(lows)-levelNeighbors; i++ {
		if lows[i] <= lows[i-1] && lows[i] <= lows[i-2] &&
			lows[i] <= lows[i+1] && lows[i] <= lows[i+2] {
			minima = append(minima, lows[i])
		}
	}
	return topLevels(minima)
}

// FindResistanceLevels scans the highs for local maxima, points greater
// than or equal to both neighbors at distance 1 and 2 on each side, and
// returns the three highest in descending order.
func FindResistanceLevels(highs []float64) []float64 {
	var maxima []float64
	for i := levelNeighbors; i < len(highs)-levelNeighbors; i++ {
		if highs[i] >= highs[i-1] && highs[i] >= highs[i-2] &&
			highs[i] >= highs[i+1] && highs[i] >= highs[i+2] {
			maxima = append(maxima, highs[i])
		}
	}
	return topLevels(maxima)
}

func topLevels(levels []float64) []float64 {
	sort.Sort(sort.Reverse(sort.Float64Slice(levels)))
	if len(levels) > maxLevels {
		levels = levels[:maxLevels]
	}
	return levels
}
