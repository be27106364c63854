package analytics

import (
	"math"
	"sort"
)

// CalmarRatio is the annual return over the maximum drawdown. Zero drawdown
// yields 0.
func CalmarRatio(annualReturn, maxDrawdown float64) float64 {
	if maxDrawdown == 0 {
		return 0
	}
	return annualReturn / maxDrawdown
}

// ValueAtRisk is the loss threshold at the given confidence level, reported
// as a non-negative number. It takes the (1-confidence) percentile of the
// per-bar returns with linear interpolation between order statistics, then
// negates it. A positive percentile (no losses in the tail) yields 0.
func ValueAtRisk(returns []float64, confidence float64) float64 {
	if len(returns) == 0 || confidence <= 0 || confidence >= 1 {
		return 0
	}
	p := percentile(returns, (1-confidence)*100)
	if p >= 0 {
		return 0
	}
	return -p
}

// percentile computes the q-th percentile (0..100) with the linear
// interpolation numpy uses by default.
func percentile(xs []float64, q float64) float64 {
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
