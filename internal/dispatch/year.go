package dispatch

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"bess-impact/internal/model"
)

// SOCPolicy decides the state of charge each day starts from.
type SOCPolicy string

const (
	// SOCCarry starts each day at the previous day's final SOC. Days run in order.
	SOCCarry SOCPolicy = "carry"
	// SOCReset starts every day at the configured initial SOC. Days are independent.
	SOCReset SOCPolicy = "reset"
)

func (p SOCPolicy) Validate() error {
	switch p {
	case "", SOCCarry, SOCReset:
		return nil
	}
	return model.ConfigErrorf("SOC_POLICY", "unknown SOC policy %q (want carry or reset)", p)
}

// YearOptions configures OptimizeYear.
type YearOptions struct {
	InitialSOCMWh float64
	Policy        SOCPolicy
	// Workers bounds concurrent day solves under SOCReset. 0 means GOMAXPROCS.
	Workers  int
	FailFast bool

	Optimizer *Optimizer
	// OnDay is called as each day finishes; under SOCReset it may be called
	// from several goroutines.
	OnDay func(DayResult)
}

// DayResult is one day's outcome. A day with Err set is excluded: its
// schedule idles at the SOC it started with.
type DayResult struct {
	Day      time.Time
	From     int
	To       int
	Schedule *model.DispatchSchedule
	Err      error
}

func (d DayResult) Excluded() bool { return d.Err != nil }

// YearResult holds per-day results plus hour-aligned series over the whole range.
type YearResult struct {
	Days        []DayResult
	ChargeMW    []float64
	DischargeMW []float64
	SOCMWh      []float64
	Excluded    int
	// Profit is the sum of day objectives against the prices they were optimized on.
	Profit float64
}

// NetMW is discharge - charge per hour.
func (y *YearResult) NetMW() []float64 {
	out := make([]float64, len(y.ChargeMW))
	for h := range out {
		out[h] = y.DischargeMW[h] - y.ChargeMW[h]
	}
	return out
}

func (y *YearResult) ChargedMWh() float64 { return total(y.ChargeMW) }

func (y *YearResult) DischargedMWh() float64 { return total(y.DischargeMW) }

// Included is the number of days that were optimized successfully.
func (y *YearResult) Included() int { return len(y.Days) - y.Excluded }

// ProfitAt revalues every included day against another price series.
func (y *YearResult) ProfitAt(prices, dischargePrices []float64, a model.StorageAsset) float64 {
	sum := 0.0
	for _, d := range y.Days {
		if d.Excluded() {
			continue
		}
		var q []float64
		if dischargePrices != nil {
			q = dischargePrices[d.From:d.To]
		}
		sum += d.Schedule.ProfitAt(prices[d.From:d.To], q, a)
	}
	return sum
}

// ExcludedDays lists the days that failed to optimize.
func (y *YearResult) ExcludedDays() []time.Time {
	var out []time.Time
	for _, d := range y.Days {
		if d.Excluded() {
			out = append(out, d.Day)
		}
	}
	return out
}

// OptimizeYear solves every day in days against its slice of prices.
// Optimization failures are recorded per day and the run continues unless
// FailFast is set; data and configuration errors always abort.
func OptimizeYear(days []model.DayRange, prices, dischargePrices []float64, asset model.StorageAsset, opts YearOptions) (*YearResult, error) {
	if err := asset.Validate(); err != nil {
		return nil, err
	}
	if err := asset.ValidateSOC(opts.InitialSOCMWh); err != nil {
		return nil, err
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}
	if dischargePrices != nil && len(dischargePrices) != len(prices) {
		return nil, model.DataErrorf("LENGTH", "%d discharge prices for %d hours", len(dischargePrices), len(prices))
	}
	for _, d := range days {
		if d.From < 0 || d.To > len(prices) || d.From >= d.To {
			return nil, model.DataErrorf("DAY_RANGE", "day %s range [%d,%d) outside %d hours",
				d.Day.Format(time.DateOnly), d.From, d.To, len(prices))
		}
	}
	if opts.Optimizer == nil {
		opts.Optimizer = NewOptimizer()
	}

	var results []DayResult
	var err error
	if opts.Policy == SOCReset {
		results, err = solveIndependent(days, prices, dischargePrices, asset, opts)
	} else {
		results, err = solveSequential(days, prices, dischargePrices, asset, opts)
	}
	if err != nil {
		return nil, err
	}
	return assemble(results, len(prices)), nil
}

func solveDay(d model.DayRange, prices, dischargePrices []float64, asset model.StorageAsset, soc float64, o *Optimizer) DayResult {
	w := Window{Start: d.Day, Prices: prices[d.From:d.To]}
	if dischargePrices != nil {
		w.DischargePrices = dischargePrices[d.From:d.To]
	}
	res := DayResult{Day: d.Day, From: d.From, To: d.To}
	res.Schedule, res.Err = o.OptimizeWindow(w, asset, soc)
	if res.Err != nil {
		res.Schedule = model.ZeroSchedule(d.Day, d.Len(), soc)
	}
	return res
}

// recoverable reports whether a day failure may be skipped.
func recoverable(err error, failFast bool) bool {
	return !failFast && model.IsClass(err, model.ClassOptimization)
}

func solveSequential(days []model.DayRange, prices, dischargePrices []float64, asset model.StorageAsset, opts YearOptions) ([]DayResult, error) {
	results := make([]DayResult, len(days))
	soc := opts.InitialSOCMWh
	for i, d := range days {
		res := solveDay(d, prices, dischargePrices, asset, soc, opts.Optimizer)
		if res.Err != nil && !recoverable(res.Err, opts.FailFast) {
			return nil, fmt.Errorf("day %s: %w", d.Day.Format(time.DateOnly), res.Err)
		}
		results[i] = res
		soc = math.Max(0, math.Min(asset.EnergyCapacityMWh, res.Schedule.FinalSOCMWh()))
		if opts.OnDay != nil {
			opts.OnDay(res)
		}
	}
	return results, nil
}

// solveIndependent fans days out to a fixed pool of workers. Each result is
// written to its own index, so calendar order needs no sorting afterwards.
func solveIndependent(days []model.DayRange, prices, dischargePrices []float64, asset model.StorageAsset, opts YearOptions) ([]DayResult, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(days) {
		workers = len(days)
	}

	results := make([]DayResult, len(days))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = solveDay(days[i], prices, dischargePrices, asset, opts.InitialSOCMWh, opts.Optimizer)
				if opts.OnDay != nil {
					opts.OnDay(results[i])
				}
			}
		}()
	}
	for i := range days {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, res := range results {
		if res.Err != nil && !recoverable(res.Err, opts.FailFast) {
			return nil, fmt.Errorf("day %s: %w", res.Day.Format(time.DateOnly), res.Err)
		}
	}
	return results, nil
}

func assemble(results []DayResult, hours int) *YearResult {
	y := &YearResult{
		Days:        results,
		ChargeMW:    make([]float64, hours),
		DischargeMW: make([]float64, hours),
		SOCMWh:      make([]float64, hours),
	}
	for _, r := range results {
		copy(y.ChargeMW[r.From:r.To], r.Schedule.ChargeMW)
		copy(y.DischargeMW[r.From:r.To], r.Schedule.DischargeMW)
		copy(y.SOCMWh[r.From:r.To], r.Schedule.SOCMWh)
		if r.Excluded() {
			y.Excluded++
			continue
		}
		y.Profit += r.Schedule.Profit
	}
	return y
}

func total(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum
}
