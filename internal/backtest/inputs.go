package backtest

import (
	"bess-impact/internal/config"
	"bess-impact/internal/metrics"
	"bess-impact/internal/model"
)

// InputsFromConfig maps a validated scenario config onto engine inputs.
func InputsFromConfig(c *config.ScenarioConfig, ds *model.Dataset) (Inputs, error) {
	asset, err := c.Asset()
	if err != nil {
		return Inputs{}, err
	}
	in := Inputs{
		Name:               c.Name,
		Dataset:            ds,
		Scenario:           c.ScenarioParameters(),
		StorageName:        c.StorageName,
		Asset:              asset,
		Dispatch:           c.YearOptions(),
		MeritOrder:         c.MeritOrderPolicy(),
		Metrics:            metrics.Options{Thresholds: c.PriceThresholds},
		BalanceToleranceMW: c.BalanceToleranceMW,
	}
	if c.SweepEnabled() {
		s := c.SweepConfig()
		in.Sweep = &s
	}
	if c.Equilibrium {
		eq, err := c.EquilibriumConfig()
		if err != nil {
			return Inputs{}, err
		}
		in.Equilibrium = &eq
	}
	if plant, ok := c.BaseloadPlant(); ok {
		in.Baseload = &plant
	}
	return in, nil
}

// Summarize is the ranking headline of a run made from c. Solar capacity is
// the target when set, otherwise the scaled base.
func Summarize(c *config.ScenarioConfig, r *Result) metrics.ScenarioSummary {
	s := r.Summary()
	s.SolarMW = c.SolarTargetMW
	if s.SolarMW == 0 {
		s.SolarMW = c.SolarBaseMW * r.Scenario.SolarFactor
	}
	return s
}
