package meritorder

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bess-impact/internal/model"
)

// truth is a continuous three-piece curve with knees at 1000 and 2000 MW.
func truth(x float64) float64 {
	switch {
	case x <= 1000:
		return 0.01 * x
	case x <= 2000:
		return 10 + 0.05*(x-1000)
	default:
		return 60 + 0.2*(x-2000)
	}
}

func sample(n int, f func(float64) float64, noise float64) (loads, prices []float64) {
	for i := 0; i < n; i++ {
		x := float64(i) * 3000 / float64(n)
		loads = append(loads, x)
		prices = append(prices, f(x)+noise*math.Sin(float64(i)*1.7))
	}
	return loads, prices
}

func TestFitRecoversPiecewiseCurve(t *testing.T) {
	loads, prices := sample(3000, truth, 0)

	m, err := Fit(loads, prices, Policy{Mode: ModeFixed, Breakpoints: []float64{1000, 2000}, NoClip: true})
	require.NoError(t, err)
	require.Len(t, m.Segments, 3)

	want := []struct{ slope, intercept float64 }{{0.01, 0}, {0.05, -40}, {0.2, -340}}
	for i, w := range want {
		assert.InDelta(t, w.slope, m.Segments[i].Slope, 1e-6, "segment %d slope", i)
		assert.InDelta(t, w.intercept, m.Segments[i].Intercept, 1e-3, "segment %d intercept", i)
		assert.InDelta(t, 1.0, m.Segments[i].R2, 1e-9)
	}
	assert.InDelta(t, 1.0, m.R2, 1e-9)
	assert.True(t, m.Continuous(1e-6))
	assert.Less(t, m.GlobalR2, m.R2)

	assert.InDelta(t, 35.0, m.Evaluate(1500), 1e-3)
	// outside the fitted domain the outermost segment extrapolates
	assert.InDelta(t, truth(4000), m.Evaluate(4000), 1e-3)
	assert.InDelta(t, -1.0, m.Evaluate(-100), 1e-3)
}

func TestFitIsDeterministic(t *testing.T) {
	loads, prices := sample(2000, truth, 8)

	for _, mode := range []BreakpointMode{ModeQuantile, ModeSearch} {
		t.Run(string(mode), func(t *testing.T) {
			a, err := Fit(loads, prices, Policy{Mode: mode})
			require.NoError(t, err)
			b, err := Fit(loads, prices, Policy{Mode: mode})
			require.NoError(t, err)
			assert.Equal(t, a, b)
		})
	}
}

func TestFitInsufficientData(t *testing.T) {
	loads, prices := sample(300, truth, 0)

	_, err := Fit(loads, prices, Policy{Mode: ModeFixed, Breakpoints: []float64{2990}, MinSamples: 10, NoClip: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientData))
	assert.True(t, model.IsClass(err, model.ClassModelFit))

	_, err = Fit(loads[:5], prices[:5], Policy{})
	assert.True(t, errors.Is(err, ErrInsufficientData))
}

func TestFitLowR2IsNotAnError(t *testing.T) {
	loads, prices := sample(600, func(float64) float64 { return 50 }, 30)

	m, err := Fit(loads, prices, Policy{Segments: 2, NoClip: true})
	require.NoError(t, err)
	assert.Less(t, m.R2, 0.2)
}

func TestEvaluateMonotoneAndContinuous(t *testing.T) {
	loads, prices := sample(3000, truth, 5)

	m, err := Fit(loads, prices, DefaultPolicy())
	require.NoError(t, err)
	assert.True(t, m.Monotone(false))
	assert.True(t, m.Continuous(1e-6))

	prev := m.Evaluate(-500)
	for x := -500.0; x <= 3500; x += 7 {
		v := m.Evaluate(x)
		assert.GreaterOrEqual(t, v, prev-1e-9, "load %.0f", x)
		prev = v
	}
}

func TestFitClampsNegativeSlope(t *testing.T) {
	dip := func(x float64) float64 {
		switch {
		case x <= 1000:
			return 0.01 * x
		case x <= 2000:
			return 10 - 0.02*(x-1000)
		default:
			return -10 + 0.2*(x-2000)
		}
	}
	loads, prices := sample(3000, dip, 0)

	m, err := Fit(loads, prices, Policy{Mode: ModeFixed, Breakpoints: []float64{1000, 2000}, NoClip: true})
	require.NoError(t, err)
	assert.False(t, m.Segments[0].SlopeClamped)
	assert.True(t, m.Segments[1].SlopeClamped)
	assert.Equal(t, 0.0, m.Segments[1].Slope)
	assert.True(t, m.Monotone(false))
	assert.True(t, m.Continuous(1e-6))
}

func TestFitNegativePriceRegime(t *testing.T) {
	// Price falls to zero across the first segment, then rises.
	g := func(x float64) float64 {
		if x <= 500 {
			return 20 - 0.04*x
		}
		return 0.02 * (x - 500)
	}
	loads, prices := sample(3000, g, 0)

	policy := Policy{Mode: ModeFixed, Breakpoints: []float64{500}, NoClip: true}
	clamped, err := Fit(loads, prices, policy)
	require.NoError(t, err)
	assert.True(t, clamped.Segments[0].SlopeClamped)

	policy.AllowNegativeFirstSegment = true
	kept, err := Fit(loads, prices, policy)
	require.NoError(t, err)
	assert.False(t, kept.Segments[0].SlopeClamped)
	assert.Less(t, kept.Segments[0].Slope, 0.0)
	assert.True(t, kept.Monotone(true))
	assert.False(t, kept.Monotone(false))
}

func TestIndependentFitReportsDiscontinuity(t *testing.T) {
	step := func(x float64) float64 {
		if x <= 1000 {
			return 10
		}
		return 50
	}
	loads, prices := sample(2000, step, 0)

	m, err := Fit(loads, prices, Policy{Mode: ModeFixed, Breakpoints: []float64{1000}, Independent: true, NoClip: true})
	require.NoError(t, err)
	require.Len(t, m.Discontinuities, 1)
	assert.InDelta(t, 40.0, m.Discontinuities[0], 1e-6)
	assert.False(t, m.Continuous(1))
}

func TestSearchFindsKnee(t *testing.T) {
	knee := func(x float64) float64 {
		if x <= 1500 {
			return 0.01 * x
		}
		return 15 + 0.1*(x-1500)
	}
	loads, prices := sample(3000, knee, 0)

	m, err := Fit(loads, prices, Policy{Mode: ModeSearch, Segments: 2, NoClip: true})
	require.NoError(t, err)
	require.Len(t, m.Breakpoints, 1)
	assert.InDelta(t, 1500, m.Breakpoints[0], 2)
	assert.Greater(t, m.R2, 0.999)
}

func TestPolicyValidate(t *testing.T) {
	err := Policy{Mode: "spline"}.Validate()
	assert.True(t, model.IsClass(err, model.ClassConfig))

	err = Policy{Mode: ModeFixed, Breakpoints: []float64{10, 5}}.Validate()
	assert.Error(t, err)
}
