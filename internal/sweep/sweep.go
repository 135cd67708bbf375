package sweep

import (
	"fmt"
	"math"

	"bess-impact/internal/dispatch"
	"bess-impact/internal/meritorder"
	"bess-impact/internal/model"
	"bess-impact/internal/stats"
)

// Config is the capacity range and the storage shape used at every step.
type Config struct {
	StartMWh float64
	StepMWh  float64
	MaxMWh   float64

	// DurationHours fixes power = capacity / duration.
	DurationHours       float64
	RoundTripEfficiency float64

	// CycleCostPerMWh sets the saturation floor: a step is saturated once its
	// spread falls below CycleCostPerMWh / RoundTripEfficiency. 0 disables.
	CycleCostPerMWh float64

	Dispatch dispatch.YearOptions
}

func (c Config) Validate() error {
	switch {
	case c.StartMWh < 0 || c.StepMWh < 0 || c.MaxMWh < 0:
		return model.ConfigErrorf("SWEEP", "sweep capacities must be >= 0")
	case c.MaxMWh < c.StartMWh:
		return model.ConfigErrorf("SWEEP", "sweep max %.0f MWh is below start %.0f MWh", c.MaxMWh, c.StartMWh)
	case c.MaxMWh > c.StartMWh && c.StepMWh <= 0:
		return model.ConfigErrorf("SWEEP", "sweep step must be > 0")
	case c.DurationHours <= 0:
		return model.ConfigErrorf("SWEEP", "duration must be > 0 hours")
	case c.RoundTripEfficiency <= 0 || c.RoundTripEfficiency > 1:
		return model.ConfigErrorf("SWEEP", "round-trip efficiency must be in (0, 1]")
	case c.CycleCostPerMWh < 0:
		return model.ConfigErrorf("SWEEP", "cycle cost must be >= 0")
	}
	return c.Dispatch.Policy.Validate()
}

// Capacities lists start, start+step, ... up to max inclusive.
func (c Config) Capacities() []float64 {
	if c.StepMWh <= 0 {
		return []float64{c.StartMWh}
	}
	var out []float64
	for k := 0; ; k++ {
		v := c.StartMWh + float64(k)*c.StepMWh
		if v > c.MaxMWh+1e-9 {
			break
		}
		out = append(out, v)
	}
	return out
}

// Step is one capacity level. Series fields are hour-aligned with the state.
type Step struct {
	Index       int     `json:"index"`
	CapacityMWh float64 `json:"capacityMwh"`
	PowerMW     float64 `json:"powerMw"`

	Dispatch       *dispatch.YearResult `json:"-"`
	InputPrices    []float64            `json:"-"`
	AdjustedPrices []float64            `json:"-"`
	ResidualLoad   []float64            `json:"-"`

	Spread            stats.Spread `json:"spread"`
	PeakReduction     float64      `json:"peakReduction"`
	FloorIncrease     float64      `json:"floorIncrease"`
	SpreadDecayPct    float64      `json:"spreadDecayPct"`
	RESavedMWh        float64      `json:"reSavedMwh"`
	CyclesPerDay      float64      `json:"cyclesPerDay"`
	ChargedMWh        float64      `json:"chargedMwh"`
	DischargedMWh     float64      `json:"dischargedMwh"`
	NetExportMWh      float64      `json:"netExportMwh"`
	TheoreticalProfit float64      `json:"theoreticalProfit"`
	RealizedProfit    float64      `json:"realizedProfit"`
	Days              int          `json:"days"`
	ExcludedDays      int          `json:"excludedDays"`
	Saturated         bool         `json:"saturated"`

	// Err is set when the step could not run; its feedback was not applied.
	Err string `json:"error,omitempty"`
}

// Run executes every capacity level in order. Each step's input prices are
// the previous step's feedback-adjusted prices. The full range always runs;
// use MinimumSpread or FirstSaturated to read the result.
func Run(state MarketState, mo *meritorder.Model, cfg Config, progress func(Step)) ([]Step, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}
	if mo == nil {
		return nil, model.ConfigErrorf("SWEEP", "sweep needs a fitted merit-order model")
	}

	baseline := stats.SpreadOf(state.Prices)
	surplus := make([]float64, len(state.ResidualLoad))
	for i, rl := range state.ResidualLoad {
		surplus[i] = math.Max(0, -rl)
	}

	caps := cfg.Capacities()
	steps := make([]Step, 0, len(caps))
	cur := state
	for i, capMWh := range caps {
		step, next, err := runStep(cur, mo, capMWh, cfg)
		step.Index = i
		if err != nil {
			// Only solver failures are recorded per step; bad data aborts the sweep.
			if cfg.Dispatch.FailFast || !model.IsClass(err, model.ClassOptimization) {
				return nil, fmt.Errorf("sweep step %d (%.0f MWh): %w", i, capMWh, err)
			}
			step.Err = err.Error()
			steps = append(steps, step)
			if progress != nil {
				progress(step)
			}
			continue
		}
		summarize(&step, baseline, surplus, cfg)
		steps = append(steps, step)
		if progress != nil {
			progress(step)
		}
		cur = next
	}
	return steps, nil
}

func runStep(in MarketState, mo *meritorder.Model, capMWh float64, cfg Config) (Step, MarketState, error) {
	step := Step{CapacityMWh: capMWh, InputPrices: in.Prices}
	asset, err := model.NewStorageAsset(capMWh, cfg.DurationHours, cfg.RoundTripEfficiency)
	if err != nil {
		return step, in, err
	}
	step.PowerMW = asset.PowerRatingMW

	opts := cfg.Dispatch
	opts.InitialSOCMWh = math.Min(opts.InitialSOCMWh, asset.EnergyCapacityMWh)
	y, err := dispatch.OptimizeYear(in.Days, in.Prices, in.DischargePrices(), asset, opts)
	if err != nil {
		return step, in, err
	}
	out := Advance(in, mo, y.NetMW())

	step.Dispatch = y
	step.AdjustedPrices = out.Prices
	step.ResidualLoad = out.ResidualLoad
	step.TheoreticalProfit = y.Profit
	step.RealizedProfit = y.ProfitAt(out.Prices, out.DischargePrices(), asset)
	return step, out, nil
}

func summarize(s *Step, baseline stats.Spread, surplus []float64, cfg Config) {
	y := s.Dispatch
	s.Spread = stats.SpreadOf(s.AdjustedPrices)
	s.PeakReduction = baseline.P95 - s.Spread.P95
	s.FloorIncrease = s.Spread.P05 - baseline.P05
	if baseline.Spread != 0 {
		s.SpreadDecayPct = 100 * (baseline.Spread - s.Spread.Spread) / baseline.Spread
	}
	s.ChargedMWh = y.ChargedMWh()
	s.DischargedMWh = y.DischargedMWh()
	s.NetExportMWh = s.DischargedMWh - s.ChargedMWh
	for h, c := range y.ChargeMW {
		s.RESavedMWh += math.Min(c, surplus[h])
	}
	s.Days = len(y.Days)
	s.ExcludedDays = y.Excluded
	if included := y.Included(); included > 0 && s.CapacityMWh > 0 {
		s.CyclesPerDay = s.ChargedMWh / s.CapacityMWh / float64(included)
	}
	if cfg.CycleCostPerMWh > 0 {
		s.Saturated = s.Spread.Spread < cfg.CycleCostPerMWh/cfg.RoundTripEfficiency
	}
}

// MinimumSpread returns the index of the successful step with the lowest spread.
func MinimumSpread(steps []Step) (int, bool) {
	best := -1
	for i, s := range steps {
		if s.Err != "" {
			continue
		}
		if best < 0 || s.Spread.Spread < steps[best].Spread.Spread {
			best = i
		}
	}
	return best, best >= 0
}

// FirstSaturated returns the index of the first saturated step.
func FirstSaturated(steps []Step) (int, bool) {
	for i, s := range steps {
		if s.Err == "" && s.Saturated {
			return i, true
		}
	}
	return -1, false
}
