package meritorder

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"bess-impact/internal/model"
	"bess-impact/internal/stats"
)

var (
	// ErrInsufficientData means a segment has fewer samples than Policy.MinSamples.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrNotEstimable means a segment's regression is degenerate (e.g. constant load).
	ErrNotEstimable = errors.New("segment not estimable")
)

type BreakpointMode string

const (
	ModeQuantile BreakpointMode = "quantile"
	ModeFixed    BreakpointMode = "fixed"
	ModeSearch   BreakpointMode = "search"
)

// Policy controls how breakpoints are chosen and how segments are fitted.
type Policy struct {
	Mode BreakpointMode `json:"mode" yaml:"mode"`

	// Segments is the number of linear pieces (quantile and search modes).
	Segments int `json:"segments" yaml:"segments"`

	// Breakpoints are residual-load thresholds in MW (fixed mode).
	Breakpoints []float64 `json:"breakpoints,omitempty" yaml:"breakpoints"`

	MinSamples int `json:"minSamples" yaml:"min_samples"`

	// Prices farther than ClipSigma standard deviations from the mean are
	// dropped before fitting, unless NoClip is set.
	ClipSigma float64 `json:"clipSigma" yaml:"clip_sigma"`
	NoClip    bool    `json:"noClip" yaml:"no_clip"`

	// Independent fits each segment on its own and reports boundary jumps.
	// Otherwise a single continuous fit is used.
	Independent bool `json:"independent" yaml:"independent"`

	// AllowNegativeFirstSegment keeps a negative slope in the lowest segment
	// (a negative-price regime at very low residual load).
	AllowNegativeFirstSegment bool `json:"allowNegativeFirstSegment" yaml:"allow_negative_first_segment"`

	// SearchGrid is the number of quantile candidates tried per breakpoint.
	SearchGrid int `json:"searchGrid" yaml:"search_grid"`
}

// DefaultPolicy is three equal-count segments with 3-sigma clipping.
func DefaultPolicy() Policy {
	return Policy{Mode: ModeQuantile, Segments: 3, MinSamples: 24, ClipSigma: 3, SearchGrid: 19}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.Mode == "" {
		p.Mode = d.Mode
	}
	if p.Mode == ModeFixed {
		p.Segments = len(p.Breakpoints) + 1
	}
	if p.Segments <= 0 {
		p.Segments = d.Segments
	}
	if p.MinSamples <= 0 {
		p.MinSamples = d.MinSamples
	}
	if p.ClipSigma <= 0 {
		p.ClipSigma = d.ClipSigma
	}
	if p.SearchGrid <= 0 {
		p.SearchGrid = d.SearchGrid
	}
	return p
}

// Validate rejects malformed policies.
func (p Policy) Validate() error {
	switch p.Mode {
	case "", ModeQuantile, ModeSearch:
		if p.Segments < 0 {
			return model.ConfigErrorf("MERIT_ORDER", "segments must be >= 1")
		}
	case ModeFixed:
		for i, b := range p.Breakpoints {
			if math.IsNaN(b) || math.IsInf(b, 0) {
				return model.ConfigErrorf("MERIT_ORDER", "breakpoint %d is not finite", i)
			}
			if i > 0 && b <= p.Breakpoints[i-1] {
				return model.ConfigErrorf("MERIT_ORDER", "breakpoints must be strictly increasing")
			}
		}
	default:
		return model.ConfigErrorf("MERIT_ORDER", "unknown breakpoint mode %q", p.Mode)
	}
	return nil
}

// Fit estimates a merit-order model from historical residual loads and prices.
// The result depends only on the inputs: refitting the same sample yields an
// identical model.
func Fit(loads, prices []float64, policy Policy) (*Model, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	p := policy.withDefaults()
	if len(loads) != len(prices) {
		return nil, model.DataErrorf("LENGTH", "loads (%d) and prices (%d) differ in length", len(loads), len(prices))
	}

	xs, ys, clipped := prepare(loads, prices, p)
	if len(xs) < p.MinSamples {
		return nil, model.FitError("INSUFFICIENT_DATA", ErrInsufficientData,
			"%d usable samples, need at least %d", len(xs), p.MinSamples)
	}

	var bps []float64
	switch p.Mode {
	case ModeFixed:
		bps = append([]float64(nil), p.Breakpoints...)
	case ModeQuantile:
		for i := 1; i < p.Segments; i++ {
			bps = append(bps, stats.PercentileSorted(xs, float64(i)/float64(p.Segments)))
		}
	case ModeSearch:
		var err error
		if bps, err = searchBreakpoints(xs, ys, p); err != nil {
			return nil, err
		}
	}

	counts := countSegments(xs, bps)
	for j, c := range counts {
		if c < p.MinSamples {
			return nil, model.FitError("INSUFFICIENT_DATA", ErrInsufficientData,
				"segment %d has %d samples, need at least %d", j, c, p.MinSamples)
		}
	}

	slopes, intercepts, err := fitLines(xs, ys, bps, counts, p.Independent)
	if err != nil {
		return nil, err
	}
	clamped := clampSlopes(slopes, intercepts, bps, segmentMeans(ys, counts), p)

	m := &Model{
		Breakpoints: bps,
		Segments:    make([]Segment, len(slopes)),
		DomainMin:   xs[0],
		DomainMax:   xs[len(xs)-1],
		Samples:     len(xs),
		Clipped:     clipped,
	}
	start := 0
	for j := range slopes {
		seg := Segment{
			From:         m.DomainMin,
			To:           m.DomainMax,
			Slope:        slopes[j],
			Intercept:    intercepts[j],
			Samples:      counts[j],
			SlopeClamped: clamped[j],
		}
		if j > 0 {
			seg.From = bps[j-1]
		}
		if j < len(bps) {
			seg.To = bps[j]
		}
		end := start + counts[j]
		seg.R2 = rSquared(xs[start:end], ys[start:end], func(x float64) float64 { return seg.At(x) })
		m.Segments[j] = seg
		start = end
	}
	for j, b := range bps {
		m.Discontinuities = append(m.Discontinuities, m.Segments[j+1].At(b)-m.Segments[j].At(b))
	}
	m.R2 = rSquared(xs, ys, m.Evaluate)

	m.GlobalIntercept, m.GlobalSlope = stat.LinearRegression(xs, ys, nil, false)
	m.GlobalR2 = rSquared(xs, ys, func(x float64) float64 { return m.GlobalSlope*x + m.GlobalIntercept })
	return m, nil
}

// prepare drops non-finite pairs and outlier prices, and sorts by load.
func prepare(loads, prices []float64, p Policy) (xs, ys []float64, clipped int) {
	type pair struct{ x, y float64 }
	pairs := make([]pair, 0, len(loads))
	for i := range loads {
		x, y := loads[i], prices[i]
		if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
			continue
		}
		pairs = append(pairs, pair{x, y})
	}
	if !p.NoClip && len(pairs) > 1 {
		vals := make([]float64, len(pairs))
		for i, pr := range pairs {
			vals[i] = pr.y
		}
		mean, sd := stat.MeanStdDev(vals, nil)
		if sd > 0 {
			kept := pairs[:0]
			for _, pr := range pairs {
				if math.Abs(pr.y-mean) <= p.ClipSigma*sd {
					kept = append(kept, pr)
				}
			}
			clipped = len(pairs) - len(kept)
			pairs = kept
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].x != pairs[j].x {
			return pairs[i].x < pairs[j].x
		}
		return pairs[i].y < pairs[j].y
	})
	xs = make([]float64, len(pairs))
	ys = make([]float64, len(pairs))
	for i, pr := range pairs {
		xs[i], ys[i] = pr.x, pr.y
	}
	return xs, ys, clipped
}

// countSegments counts ascending xs per segment; a value on a breakpoint
// belongs to the left segment.
func countSegments(xs, bps []float64) []int {
	counts := make([]int, len(bps)+1)
	j := 0
	for _, x := range xs {
		for j < len(bps) && x > bps[j] {
			j++
		}
		counts[j]++
	}
	return counts
}

func segmentMeans(ys []float64, counts []int) []float64 {
	out := make([]float64, len(counts))
	start := 0
	for j, c := range counts {
		if c > 0 {
			out[j] = stat.Mean(ys[start:start+c], nil)
		}
		start += c
	}
	return out
}

func fitLines(xs, ys, bps []float64, counts []int, independent bool) (slopes, intercepts []float64, err error) {
	if independent {
		return fitIndependent(xs, ys, counts)
	}
	return fitHinge(xs, ys, bps)
}

// fitHinge solves one least-squares problem on the basis
// [1, u, (u-b1)+, ..., (u-bk)+] with u the standardized load, which makes the
// fitted curve continuous at every breakpoint.
func fitHinge(xs, ys, bps []float64) (slopes, intercepts []float64, err error) {
	n, k := len(xs), len(bps)
	mean, sd := stat.MeanStdDev(xs, nil)
	if sd == 0 || math.IsNaN(sd) {
		return nil, nil, model.FitError("NOT_ESTIMABLE", ErrNotEstimable, "residual load has no variance")
	}

	X := mat.NewDense(n, k+2, nil)
	for i, x := range xs {
		u := (x - mean) / sd
		X.Set(i, 0, 1)
		X.Set(i, 1, u)
		for j, b := range bps {
			if ub := (b - mean) / sd; u > ub {
				X.Set(i, 2+j, u-ub)
			}
		}
	}
	y := mat.NewVecDense(n, append([]float64(nil), ys...))

	var beta mat.VecDense
	if err := beta.SolveVec(X, y); err != nil {
		return nil, nil, model.FitError("NOT_ESTIMABLE", ErrNotEstimable, "least squares failed: %v", err)
	}

	slopes = make([]float64, k+1)
	intercepts = make([]float64, k+1)
	slopes[0] = beta.AtVec(1) / sd
	intercepts[0] = beta.AtVec(0) - beta.AtVec(1)*mean/sd
	for j := 1; j <= k; j++ {
		slopes[j] = slopes[j-1] + beta.AtVec(1+j)/sd
		intercepts[j] = intercepts[j-1] + (slopes[j-1]-slopes[j])*bps[j-1]
	}
	return slopes, intercepts, nil
}

func fitIndependent(xs, ys []float64, counts []int) (slopes, intercepts []float64, err error) {
	slopes = make([]float64, len(counts))
	intercepts = make([]float64, len(counts))
	start := 0
	for j, c := range counts {
		sx, sy := xs[start:start+c], ys[start:start+c]
		start += c
		if c < 2 || sx[0] == sx[c-1] {
			return nil, nil, model.FitError("NOT_ESTIMABLE", ErrNotEstimable, "segment %d has no load variance", j)
		}
		intercepts[j], slopes[j] = stat.LinearRegression(sx, sy, nil, false)
	}
	return slopes, intercepts, nil
}

// clampSlopes sets negative slopes to zero, left to right. In continuous mode
// intercepts are re-anchored so each segment starts where the previous ends.
func clampSlopes(slopes, intercepts, bps, means []float64, p Policy) []bool {
	clamped := make([]bool, len(slopes))
	for j := range slopes {
		neg := slopes[j] < 0 && !(j == 0 && p.AllowNegativeFirstSegment)
		switch {
		case neg && (p.Independent || len(bps) == 0):
			slopes[j], intercepts[j] = 0, means[j]
		case neg && j == 0:
			// keep the value at the first breakpoint
			intercepts[0] = slopes[0]*bps[0] + intercepts[0]
			slopes[0] = 0
		case neg:
			slopes[j] = 0
		}
		clamped[j] = neg
		if !p.Independent && j > 0 {
			b := bps[j-1]
			intercepts[j] = slopes[j-1]*b + intercepts[j-1] - slopes[j]*b
		}
	}
	return clamped
}

func rSquared(xs, ys []float64, f func(float64) float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	est := make([]float64, len(xs))
	for i, x := range xs {
		est[i] = f(x)
	}
	if stat.Variance(ys, nil) == 0 || len(ys) < 2 {
		for i := range ys {
			if math.Abs(est[i]-ys[i]) > 1e-9 {
				return 0
			}
		}
		return 1
	}
	return stat.RSquaredFrom(est, ys, nil)
}

// searchBreakpoints tries every increasing combination of quantile candidates
// and keeps the one with the lowest squared error. Ties keep the first found.
func searchBreakpoints(xs, ys []float64, p Policy) ([]float64, error) {
	k := p.Segments - 1
	if k == 0 {
		return nil, nil
	}
	var cands []float64
	for i := 1; i <= p.SearchGrid; i++ {
		c := stats.PercentileSorted(xs, float64(i)/float64(p.SearchGrid+1))
		if len(cands) == 0 || c > cands[len(cands)-1] {
			cands = append(cands, c)
		}
	}

	best := math.Inf(1)
	var bestBps []float64
	pick := make([]float64, k)
	var walk func(pos, from int)
	walk = func(pos, from int) {
		if pos == k {
			counts := countSegments(xs, pick)
			for _, c := range counts {
				if c < p.MinSamples {
					return
				}
			}
			slopes, intercepts, err := fitLines(xs, ys, pick, counts, p.Independent)
			if err != nil {
				return
			}
			if sse := sumSquares(xs, ys, pick, slopes, intercepts); sse < best {
				best = sse
				bestBps = append(bestBps[:0], pick...)
			}
			return
		}
		for i := from; i <= len(cands)-(k-pos); i++ {
			pick[pos] = cands[i]
			walk(pos+1, i+1)
		}
	}
	walk(0, 0)

	if bestBps == nil {
		return nil, model.FitError("INSUFFICIENT_DATA", ErrInsufficientData,
			"no %d-segment split leaves %d samples per segment", p.Segments, p.MinSamples)
	}
	return bestBps, nil
}

func sumSquares(xs, ys, bps, slopes, intercepts []float64) float64 {
	sse := 0.0
	j := 0
	for i, x := range xs {
		for j < len(bps) && x > bps[j] {
			j++
		}
		r := ys[i] - (slopes[j]*x + intercepts[j])
		sse += r * r
	}
	return sse
}

// FitDataset fits on a dataset's historical residual loads and prices.
func FitDataset(ds *model.Dataset, p Policy) (*Model, error) {
	m, err := Fit(ds.ResidualLoads(), ds.Prices(), p)
	if err != nil {
		return nil, fmt.Errorf("fit merit order for %s: %w", ds.Zone, err)
	}
	return m, nil
}
