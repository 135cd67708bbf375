package metrics

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"bess-impact/internal/model"
	"bess-impact/internal/stats"
)

// CompareInput pairs a pre-storage baseline with the simulated series.
type CompareInput struct {
	Times []time.Time
	// Base is the price series before storage; Sim after feedback (or equilibrium).
	Base []float64
	Sim  []float64
	// ResidualLoad is the pre-storage residual load; its negative part is surplus RE.
	ResidualLoad []float64
	Dispatch     *Dispatch
}

// ImpactKPI describes what storage did to prices in one window.
// Peak and trough hours are the baseline's top and bottom deciles.
type ImpactKPI struct {
	Window  string `json:"window"`
	Hours   int    `json:"hours"`
	Skipped bool   `json:"skipped"`

	AvgBase  float64 `json:"avgBase"`
	AvgSim   float64 `json:"avgSim"`
	AvgDelta float64 `json:"avgDelta"`

	PeakBase      float64 `json:"peakBase"`
	PeakSim       float64 `json:"peakSim"`
	PeakReduction float64 `json:"peakReduction"`

	TroughBase    float64 `json:"troughBase"`
	TroughSim     float64 `json:"troughSim"`
	FloorIncrease float64 `json:"floorIncrease"`

	RESavedMWh    float64 `json:"reSavedMwh"`
	ChargedMWh    float64 `json:"chargedMwh"`
	NetStorageMWh float64 `json:"netStorageMwh"`
	CyclesPerDay  float64 `json:"cyclesPerDay"`

	ArbitrageProfit float64 `json:"arbitrageProfit"`
	RealizedProfit  float64 `json:"realizedProfit"`
	ExcludedDays    int     `json:"excludedDays"`
}

func (in CompareInput) validate() error {
	n := len(in.Times)
	if len(in.Base) != n || len(in.Sim) != n {
		return model.DataErrorf("LENGTH", "compare series lengths differ: times=%d base=%d sim=%d", n, len(in.Base), len(in.Sim))
	}
	if in.ResidualLoad != nil && len(in.ResidualLoad) != n {
		return model.DataErrorf("LENGTH", "compare residual load has %d hours, want %d", len(in.ResidualLoad), n)
	}
	if in.Dispatch != nil {
		return in.Dispatch.validate(n)
	}
	return nil
}

// Compare computes the impact of storage on prices within w.
func Compare(in CompareInput, w Window, opts Options) (ImpactKPI, error) {
	opts = opts.withDefaults()
	if err := in.validate(); err != nil {
		return ImpactKPI{}, err
	}
	idx := w.Indices(in.Times)
	k := ImpactKPI{Window: w.Name, Hours: len(idx)}
	if in.Dispatch != nil {
		k.ExcludedDays = in.Dispatch.excludedIn(w)
	}
	if len(idx) < opts.MinHours {
		k.Skipped = true
		return k, nil
	}

	base := pick(in.Base, idx)
	sim := pick(in.Sim, idx)
	k.AvgBase = stat.Mean(base, nil)
	k.AvgSim = stat.Mean(sim, nil)
	k.AvgDelta = k.AvgSim - k.AvgBase

	q := stats.Percentiles(base, 0.10, 0.90)
	lo, hi := q[0], q[1]
	var peakBase, peakSim, troughBase, troughSim []float64
	for i, b := range base {
		if b >= hi {
			peakBase = append(peakBase, b)
			peakSim = append(peakSim, sim[i])
		}
		if b <= lo {
			troughBase = append(troughBase, b)
			troughSim = append(troughSim, sim[i])
		}
	}
	k.PeakBase, k.PeakSim = stat.Mean(peakBase, nil), stat.Mean(peakSim, nil)
	k.PeakReduction = k.PeakBase - k.PeakSim
	k.TroughBase, k.TroughSim = stat.Mean(troughBase, nil), stat.Mean(troughSim, nil)
	k.FloorIncrease = k.TroughSim - k.TroughBase

	if d := in.Dispatch; d != nil {
		charge := pick(d.ChargeMW, idx)
		k.ChargedMWh = floats.Sum(charge)
		k.NetStorageMWh = floats.Sum(pick(d.DischargeMW, idx)) - k.ChargedMWh
		if in.ResidualLoad != nil {
			for i, h := range idx {
				k.RESavedMWh += math.Min(charge[i], math.Max(0, -in.ResidualLoad[h]))
			}
		}
		k.CyclesPerDay = cyclesPerDay(d, in.Times, idx)
		k.ArbitrageProfit = d.profit(idx, d.TheoreticalPrices, d.TheoreticalDischargePrices)
		k.RealizedProfit = d.profit(idx, in.Sim, d.RealizedDischargePrices)
	}
	return k, nil
}

// CompareAll runs Compare over every standard window.
func CompareAll(in CompareInput, opts Options) ([]ImpactKPI, error) {
	var out []ImpactKPI
	for _, w := range Windows() {
		k, err := Compare(in, w, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}
