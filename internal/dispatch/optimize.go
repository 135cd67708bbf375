// Package dispatch chooses hourly charge and discharge for a storage asset by
// solving one price-taker linear program per calendar day.
package dispatch

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"bess-impact/internal/lpsolve"
	"bess-impact/internal/model"
)

var (
	ErrInfeasible   = errors.New("dispatch: infeasible window")
	ErrNotConverged = errors.New("dispatch: solver did not converge")
)

// epsMW is the power below which LP output is treated as zero.
const epsMW = 1e-9

// Window is one optimization horizon, usually a day of hourly prices.
// DischargePrices, when set, values discharge separately (export arbitrage).
type Window struct {
	Start           time.Time
	Prices          []float64
	DischargePrices []float64
}

// Optimizer builds the dispatch LP and hands it to a Solver.
type Optimizer struct {
	Solver lpsolve.Solver
	// Tolerance bounds the schedule check after extraction.
	Tolerance float64
}

func NewOptimizer() *Optimizer {
	return &Optimizer{Solver: lpsolve.Simplex{}, Tolerance: 1e-6}
}

// Optimize solves one window with the default Simplex backend.
func Optimize(prices []float64, asset model.StorageAsset, initialSOC float64) (*model.DispatchSchedule, error) {
	return NewOptimizer().Optimize(prices, asset, initialSOC)
}

func (o *Optimizer) Optimize(prices []float64, asset model.StorageAsset, initialSOC float64) (*model.DispatchSchedule, error) {
	return o.OptimizeWindow(Window{Prices: prices}, asset, initialSOC)
}

// OptimizeWindow maximizes sum(d*q*de - c*p/ce) subject to the SOC recursion,
// power and energy bounds and c + d <= P. Invalid parameters fail with a
// configuration error before the solver runs.
func (o *Optimizer) OptimizeWindow(w Window, asset model.StorageAsset, initialSOC float64) (*model.DispatchSchedule, error) {
	if err := asset.Validate(); err != nil {
		return nil, err
	}
	if err := asset.ValidateSOC(initialSOC); err != nil {
		return nil, err
	}
	n := len(w.Prices)
	if n == 0 {
		return nil, model.DataErrorf("EMPTY_WINDOW", "window %s has no prices", w.Start.Format(time.DateOnly))
	}
	if w.DischargePrices != nil && len(w.DischargePrices) != n {
		return nil, model.DataErrorf("LENGTH", "window %s: %d discharge prices for %d hours",
			w.Start.Format(time.DateOnly), len(w.DischargePrices), n)
	}
	for h := 0; h < n; h++ {
		if !finite(w.Prices[h]) || (w.DischargePrices != nil && !finite(w.DischargePrices[h])) {
			return nil, model.DataErrorf("NON_FINITE", "window %s hour %d has a non-finite price", w.Start.Format(time.DateOnly), h)
		}
	}

	if asset.IsZero() {
		return model.ZeroSchedule(w.Start, n, initialSOC), nil
	}

	sol, err := o.solver().Solve(buildProblem(w, asset, initialSOC))
	if err != nil {
		day := w.Start.Format(time.DateOnly)
		// Keep the solver's sentinel in the chain next to ours.
		if errors.Is(err, lpsolve.ErrInfeasible) {
			return nil, model.OptimizationError("INFEASIBLE", fmt.Errorf("%w: %w", ErrInfeasible, err), "window %s", day)
		}
		return nil, model.OptimizationError("NOT_CONVERGED", fmt.Errorf("%w: %w", ErrNotConverged, err), "window %s", day)
	}

	s := extract(sol.X, w, asset, initialSOC)
	if err := s.Validate(asset, o.tolerance()); err != nil {
		return nil, model.OptimizationError("INVALID_SCHEDULE", ErrNotConverged, "window %s: %v", w.Start.Format(time.DateOnly), err)
	}
	return s, nil
}

func (o *Optimizer) solver() lpsolve.Solver {
	if o.Solver == nil {
		return lpsolve.Simplex{}
	}
	return o.Solver
}

func (o *Optimizer) tolerance() float64 {
	if o.Tolerance <= 0 {
		return 1e-6
	}
	return o.Tolerance
}

// buildProblem lays variables out as [charge(n) | discharge(n) | soc(n)].
func buildProblem(w Window, a model.StorageAsset, initialSOC float64) *lpsolve.Problem {
	n := len(w.Prices)
	q := w.DischargePrices
	if q == nil {
		q = w.Prices
	}
	ce, de := a.ChargeEfficiency, a.DischargeEfficiency

	obj := make([]float64, 3*n)
	upper := make([]float64, 3*n)
	eq := mat.NewDense(n, 3*n, nil)
	eqB := make([]float64, n)
	ineq := mat.NewDense(n, 3*n, nil)
	ineqB := make([]float64, n)

	for h := 0; h < n; h++ {
		c, d, s := h, n+h, 2*n+h
		obj[c] = w.Prices[h] / ce
		obj[d] = -q[h] * de
		upper[c], upper[d], upper[s] = a.PowerRatingMW, a.PowerRatingMW, a.EnergyCapacityMWh

		// soc[h] - soc[h-1] - ce*c[h] + d[h]/de = 0 (initial SOC on the first row)
		eq.Set(h, s, 1)
		eq.Set(h, c, -ce)
		eq.Set(h, d, 1/de)
		if h > 0 {
			eq.Set(h, s-1, -1)
		} else {
			eqB[h] = initialSOC
		}

		ineq.Set(h, c, 1)
		ineq.Set(h, d, 1)
		ineqB[h] = a.PowerRatingMW
	}

	return &lpsolve.Problem{
		Objective: obj,
		Eq:        &lpsolve.Constraints{A: eq, B: eqB},
		Ineq:      &lpsolve.Constraints{A: ineq, B: ineqB},
		Upper:     upper,
	}
}

// extract turns the LP solution into a schedule. Simultaneous charge and
// discharge is netted into a single action with the same SOC change, and the
// SOC trajectory is recomputed from the recursion so it never drifts.
func extract(x []float64, w Window, a model.StorageAsset, initialSOC float64) *model.DispatchSchedule {
	n := len(w.Prices)
	s := model.ZeroSchedule(w.Start, n, initialSOC)
	soc := initialSOC
	for h := 0; h < n; h++ {
		c := clip(x[h], 0, a.PowerRatingMW)
		d := clip(x[n+h], 0, a.PowerRatingMW)
		if c < epsMW {
			c = 0
		}
		if d < epsMW {
			d = 0
		}
		if c > 0 && d > 0 {
			if delta := c*a.ChargeEfficiency - d/a.DischargeEfficiency; delta >= 0 {
				c, d = delta/a.ChargeEfficiency, 0
			} else {
				c, d = 0, -delta*a.DischargeEfficiency
			}
			s.Repaired++
		}
		soc, c, d = step(soc, c, d, a)
		s.ChargeMW[h], s.DischargeMW[h], s.SOCMWh[h] = c, d, soc
	}
	s.Profit = s.ProfitAt(w.Prices, w.DischargePrices, a)
	return s
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
