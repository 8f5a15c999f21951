package calibration

import (
	"math"

	"github.com/hcc-mvi-risk-server/internal/domain"
)

// DerivePointWeights converts coefficients into relative integer points: each
// absolute coefficient is divided by the smallest non-zero absolute coefficient
// and rounded, so the least influential retained feature is worth 1 point.
// Magnitudes at or below epsilon count as zero; if none remain, epsilon is the divisor.
func DerivePointWeights(coefficients [domain.NumFeatures]float64, epsilon float64) [domain.NumFeatures]int {
	minAbs := math.Inf(1)
	for _, c := range coefficients {
		if a := math.Abs(c); a > epsilon && a < minAbs {
			minAbs = a
		}
	}
	if math.IsInf(minAbs, 1) {
		minAbs = epsilon
	}

	var points [domain.NumFeatures]int
	for i, c := range coefficients {
		points[i] = int(math.Round(math.Abs(c) / minAbs))
	}
	return points
}

// PointsFromProbability counts the cut points a probability in [0, 1] meets or
// exceeds. With the default cut points this yields buckets 0 through 4.
func PointsFromProbability(probability float64, cutPoints []float64) int {
	points := 0
	for _, cut := range cutPoints {
		if probability >= cut {
			points++
		}
	}
	return points
}

// RebuildProbabilityTable averages the predicted probabilities (in [0, 1]) that
// fall into each bucket and returns them in percent. Every bucket from 0 to
// len(cutPoints) gets a value: empty buckets keep the fallback entry, or 0 when
// the fallback has none.
func RebuildProbabilityTable(probabilities []float64, cutPoints []float64, fallback map[int]float64) map[int]float64 {
	buckets := len(cutPoints) + 1
	sums := make([]float64, buckets)
	counts := make([]int, buckets)

	for _, p := range probabilities {
		b := PointsFromProbability(p, cutPoints)
		sums[b] += p
		counts[b]++
	}

	table := make(map[int]float64, buckets)
	for b := 0; b < buckets; b++ {
		if counts[b] == 0 {
			table[b] = fallback[b]
			continue
		}
		table[b] = sums[b] / float64(counts[b]) * 100
	}
	return table
}
