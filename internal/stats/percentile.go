// Package stats holds small order-statistic helpers shared by the model,
// sweep and metrics packages.
package stats

import (
	"math"
	"sort"
)

// PercentileSorted returns the q-quantile (q in [0,1]) of an ascending slice,
// interpolating linearly between order statistics.
func PercentileSorted(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	// Linear interpolation between order stats.
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Sorted returns an ascending copy of values.
func Sorted(values []float64) []float64 {
	out := append([]float64(nil), values...)
	sort.Float64s(out)
	return out
}

// Percentiles returns one quantile per q, sorting values once.
func Percentiles(values []float64, qs ...float64) []float64 {
	sorted := Sorted(values)
	out := make([]float64, len(qs))
	for i, q := range qs {
		out[i] = PercentileSorted(sorted, q)
	}
	return out
}

// Spread is the P95 - P5 price spread with its two ends.
type Spread struct {
	P05    float64 `json:"p05"`
	P95    float64 `json:"p95"`
	Spread float64 `json:"spread"`
}

func SpreadOf(values []float64) Spread {
	p := Percentiles(values, 0.05, 0.95)
	return Spread{P05: p[0], P95: p[1], Spread: p[1] - p[0]}
}
