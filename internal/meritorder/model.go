// Package meritorder fits and evaluates a piecewise-linear map from residual
// load (MW) to clearing price (EUR/MWh).
package meritorder

import (
	"math"
	"sort"
)

// Segment is one linear piece: price = Slope*load + Intercept for loads in [From, To].
// From of the first and To of the last segment are the fitted domain edges;
// Evaluate extrapolates beyond them with the outermost segment.
type Segment struct {
	From         float64 `json:"from"`
	To           float64 `json:"to"`
	Slope        float64 `json:"slope"`
	Intercept    float64 `json:"intercept"`
	R2           float64 `json:"r2"`
	Samples      int     `json:"samples"`
	SlopeClamped bool    `json:"slopeClamped"`
}

func (s Segment) At(load float64) float64 { return s.Slope*load + s.Intercept }

// Model is an immutable fitted merit-order curve.
type Model struct {
	Breakpoints []float64 `json:"breakpoints"`
	Segments    []Segment `json:"segments"`
	R2          float64   `json:"r2"`

	// Discontinuities[j] is the jump at Breakpoints[j]: right segment minus left segment.
	Discontinuities []float64 `json:"discontinuities"`

	// Single-line regression over the same samples, for comparison.
	GlobalSlope     float64 `json:"globalSlope"`
	GlobalIntercept float64 `json:"globalIntercept"`
	GlobalR2        float64 `json:"globalR2"`

	DomainMin float64 `json:"domainMin"`
	DomainMax float64 `json:"domainMax"`
	Samples   int     `json:"samples"`
	Clipped   int     `json:"clipped"`
}

// SegmentIndex returns the index of the segment containing load.
// A load equal to a breakpoint belongs to the left segment.
func (m *Model) SegmentIndex(load float64) int {
	return sort.Search(len(m.Breakpoints), func(i int) bool { return load <= m.Breakpoints[i] })
}

// Evaluate returns the modeled price at a residual load.
func (m *Model) Evaluate(load float64) float64 {
	if len(m.Segments) == 0 {
		return 0
	}
	return m.Segments[m.SegmentIndex(load)].At(load)
}

// EvaluateAll maps Evaluate over loads into a new slice.
func (m *Model) EvaluateAll(loads []float64) []float64 {
	out := make([]float64, len(loads))
	for i, l := range loads {
		out[i] = m.Evaluate(l)
	}
	return out
}

// Delta is the modeled price change when residual load moves from one value to another.
func (m *Model) Delta(from, to float64) float64 {
	return m.Evaluate(to) - m.Evaluate(from)
}

// Continuous reports whether every boundary jump is within tol.
func (m *Model) Continuous(tol float64) bool {
	for _, gap := range m.Discontinuities {
		if math.Abs(gap) > tol {
			return false
		}
	}
	return true
}

// Monotone reports whether every segment slope is non-negative, ignoring the
// first segment when allowNegativeFirst is set.
func (m *Model) Monotone(allowNegativeFirst bool) bool {
	for i, s := range m.Segments {
		if s.Slope < 0 && !(i == 0 && allowNegativeFirst) {
			return false
		}
	}
	return true
}
