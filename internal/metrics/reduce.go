// Package metrics reduces hourly price and dispatch series into KPIs for a
// calendar window, compares scenarios against their baseline, and ranks them.
package metrics

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"bess-impact/internal/model"
	"bess-impact/internal/stats"
)

// Options tunes Reduce and Compare. Zero values take defaults.
type Options struct {
	// Thresholds are price levels (EUR/MWh) to count hours below. Default {0}.
	Thresholds []float64
	// MinHours overrides MinWindowHours.
	MinHours int
}

func (o Options) withDefaults() Options {
	if o.Thresholds == nil {
		o.Thresholds = []float64{0}
	}
	if o.MinHours <= 0 {
		o.MinHours = MinWindowHours
	}
	return o
}

// Dispatch is a storage schedule aligned with a Series.
type Dispatch struct {
	ChargeMW    []float64
	DischargeMW []float64
	Asset       model.StorageAsset

	// TheoreticalPrices are the prices the schedule was optimized against.
	TheoreticalPrices []float64
	// Discharge valuations for export arbitrage; nil means the domestic price.
	TheoreticalDischargePrices []float64
	RealizedDischargePrices    []float64

	ExcludedDays []time.Time
}

func (d *Dispatch) validate(n int) error {
	if len(d.ChargeMW) != n || len(d.DischargeMW) != n || len(d.TheoreticalPrices) != n {
		return model.DataErrorf("LENGTH", "dispatch series do not cover %d hours", n)
	}
	for _, s := range [][]float64{d.TheoreticalDischargePrices, d.RealizedDischargePrices} {
		if s != nil && len(s) != n {
			return model.DataErrorf("LENGTH", "discharge price series does not cover %d hours", n)
		}
	}
	return nil
}

// profit over the selected hours: discharge revenue at q, minus grid charging cost at p.
func (d *Dispatch) profit(idx []int, prices, dischargePrices []float64) float64 {
	var total float64
	for _, h := range idx {
		q := prices[h]
		if dischargePrices != nil {
			q = dischargePrices[h]
		}
		total += q*d.DischargeMW[h]*d.Asset.DischargeEfficiency - prices[h]*d.ChargeMW[h]/d.Asset.ChargeEfficiency
	}
	return total
}

func (d *Dispatch) excludedIn(w Window) int {
	n := 0
	for _, day := range d.ExcludedDays {
		if w.Contains(day) {
			n++
		}
	}
	return n
}

// Series is an hourly price series, optionally with the dispatch that ran on it.
type Series struct {
	Times    []time.Time
	Prices   []float64
	Dispatch *Dispatch
}

func (s Series) validate() error {
	if len(s.Prices) != len(s.Times) {
		return model.DataErrorf("LENGTH", "%d prices for %d timestamps", len(s.Prices), len(s.Times))
	}
	if s.Dispatch != nil {
		return s.Dispatch.validate(len(s.Prices))
	}
	return nil
}

type ThresholdCount struct {
	Threshold float64 `json:"threshold"`
	Hours     int     `json:"hours"`
}

type MonthMean struct {
	Month string  `json:"month"` // YYYY-MM
	Mean  float64 `json:"mean"`
	Hours int     `json:"hours"`
}

// KPI is the reduction of one Series over one Window.
type KPI struct {
	Window  string `json:"window"`
	Hours   int    `json:"hours"`
	Skipped bool   `json:"skipped"`

	Mean   float64      `json:"mean"`
	Min    float64      `json:"min"`
	Max    float64      `json:"max"`
	Spread stats.Spread `json:"spread"`

	HoursBelow     []ThresholdCount `json:"hoursBelow"`
	Monthly        []MonthMean      `json:"monthly"`
	ArbitrageIndex float64          `json:"arbitrageIndex"`

	HasDispatch       bool    `json:"hasDispatch"`
	TheoreticalProfit float64 `json:"theoreticalProfit"`
	RealizedProfit    float64 `json:"realizedProfit"`
	ProfitGap         float64 `json:"profitGap"`
	ProfitGapPct      float64 `json:"profitGapPct"`
	CyclesPerDay      float64 `json:"cyclesPerDay"`
	ExcludedDays      int     `json:"excludedDays"`
}

// Reduce computes the KPI of s over w. With a dispatch attached, theoretical
// profit is valued at the dispatch's own prices and realized profit at
// s.Prices. A window with fewer than MinHours hours is returned Skipped.
func Reduce(s Series, w Window, opts Options) (KPI, error) {
	opts = opts.withDefaults()
	if err := s.validate(); err != nil {
		return KPI{}, err
	}
	idx := w.Indices(s.Times)
	k := KPI{Window: w.Name, Hours: len(idx)}
	if s.Dispatch != nil {
		k.HasDispatch = true
		k.ExcludedDays = s.Dispatch.excludedIn(w)
	}
	if len(idx) < opts.MinHours {
		k.Skipped = true
		return k, nil
	}

	prices := pick(s.Prices, idx)
	k.Mean = stat.Mean(prices, nil)
	k.Min = floats.Min(prices)
	k.Max = floats.Max(prices)
	k.Spread = stats.SpreadOf(prices)
	k.ArbitrageIndex = ArbitrageIndex(prices)
	for _, th := range opts.Thresholds {
		n := 0
		for _, p := range prices {
			if p < th {
				n++
			}
		}
		k.HoursBelow = append(k.HoursBelow, ThresholdCount{Threshold: th, Hours: n})
	}
	k.Monthly = monthlyMeans(s.Times, s.Prices, idx)

	if d := s.Dispatch; d != nil {
		k.TheoreticalProfit = d.profit(idx, d.TheoreticalPrices, d.TheoreticalDischargePrices)
		k.RealizedProfit = d.profit(idx, s.Prices, d.RealizedDischargePrices)
		k.ProfitGap = k.TheoreticalProfit - k.RealizedProfit
		if k.TheoreticalProfit != 0 {
			k.ProfitGapPct = 100 * k.ProfitGap / math.Abs(k.TheoreticalProfit)
		}
		k.CyclesPerDay = cyclesPerDay(d, s.Times, idx)
	}
	return k, nil
}

// ReduceAll reduces s over every standard window.
func ReduceAll(s Series, opts Options) ([]KPI, error) {
	var out []KPI
	for _, w := range Windows() {
		k, err := Reduce(s, w, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

func cyclesPerDay(d *Dispatch, times []time.Time, idx []int) float64 {
	days := distinctDays(times, idx)
	if days == 0 || d.Asset.EnergyCapacityMWh == 0 {
		return 0
	}
	return floats.Sum(pick(d.ChargeMW, idx)) / d.Asset.EnergyCapacityMWh / float64(days)
}

func monthlyMeans(times []time.Time, prices []float64, idx []int) []MonthMean {
	type acc struct {
		sum float64
		n   int
	}
	byMonth := make(map[string]*acc)
	for _, i := range idx {
		key := times[i].UTC().Format("2006-01")
		a, ok := byMonth[key]
		if !ok {
			a = &acc{}
			byMonth[key] = a
		}
		a.sum += prices[i]
		a.n++
	}
	out := make([]MonthMean, 0, len(byMonth))
	for m, a := range byMonth {
		out = append(out, MonthMean{Month: m, Mean: a.sum / float64(a.n), Hours: a.n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}
