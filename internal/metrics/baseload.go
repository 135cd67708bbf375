package metrics

import (
	"math"
	"time"

	"bess-impact/internal/model"
)

const hoursPerYear = 8760

// BaseloadPlant is an inflexible generator squeezed by solar: it can only
// run into the demand left after solar and other must-run output.
type BaseloadPlant struct {
	Name           string  `yaml:"name" json:"name"`
	NameplateMW    float64 `yaml:"nameplate_mw" json:"nameplateMw"`
	OtherMustRunMW float64 `yaml:"other_must_run_mw" json:"otherMustRunMw"`
	// FixedCostEUR is per year; it is prorated by the hours evaluated.
	FixedCostEUR       float64 `yaml:"fixed_cost_eur" json:"fixedCostEur"`
	VariableCostPerMWh float64 `yaml:"variable_cost_per_mwh" json:"variableCostPerMwh"`
}

// DefaultBaseloadPlant is a 2 GW nuclear unit pair with ~816 M EUR/year of
// fixed cost (staff, O&M, depreciation, funds) and ~7.3 EUR/MWh variable cost.
func DefaultBaseloadPlant() BaseloadPlant {
	return BaseloadPlant{
		Name:               "nuclear",
		NameplateMW:        2000,
		OtherMustRunMW:     300,
		FixedCostEUR:       815.7e6,
		VariableCostPerMWh: 7.26,
	}
}

func (p BaseloadPlant) Validate() error {
	switch {
	case p.NameplateMW <= 0:
		return model.ConfigErrorf("BASELOAD", "nameplate must be > 0 MW")
	case p.OtherMustRunMW < 0 || p.FixedCostEUR < 0 || p.VariableCostPerMWh < 0:
		return model.ConfigErrorf("BASELOAD", "must-run and costs must be >= 0")
	}
	return nil
}

type BaseloadInput struct {
	Times  []time.Time
	Demand []float64
	Solar  []float64
	Prices []float64
}

type BaseloadResult struct {
	Plant          string  `json:"plant"`
	Hours          int     `json:"hours"`
	CurtailedHours int     `json:"curtailedHours"`
	LostMWh        float64 `json:"lostMwh"`
	OutputMWh      float64 `json:"outputMwh"`
	CapacityFactor float64 `json:"capacityFactor"`
	RevenueEUR     float64 `json:"revenueEur"`
	CapturePrice   float64 `json:"capturePrice"`
	// FullCostPerMWh is zero when the plant produced nothing; see NoOutput.
	FullCostPerMWh float64 `json:"fullCostPerMwh"`
	ProfitEUR      float64 `json:"profitEur"`
	NoOutput       bool    `json:"noOutput"`
}

// BaseloadEconomics runs the plant over every hour: output is
// clamp(demand - solar - other must-run, 0, nameplate), and each hour below
// nameplate counts as curtailed.
func BaseloadEconomics(in BaseloadInput, plant BaseloadPlant) (BaseloadResult, error) {
	if err := plant.Validate(); err != nil {
		return BaseloadResult{}, err
	}
	n := len(in.Prices)
	if len(in.Demand) != n || len(in.Solar) != n {
		return BaseloadResult{}, model.DataErrorf("LENGTH", "baseload series lengths differ: demand=%d solar=%d prices=%d", len(in.Demand), len(in.Solar), n)
	}
	r := BaseloadResult{Plant: plant.Name, Hours: n}
	for h := 0; h < n; h++ {
		avail := in.Demand[h] - in.Solar[h] - plant.OtherMustRunMW
		out := math.Min(math.Max(avail, 0), plant.NameplateMW)
		if out < plant.NameplateMW {
			r.CurtailedHours++
			r.LostMWh += plant.NameplateMW - out
		}
		r.OutputMWh += out
		r.RevenueEUR += out * in.Prices[h]
	}
	if n > 0 {
		r.CapacityFactor = r.OutputMWh / (plant.NameplateMW * float64(n))
	}
	cost := plant.FixedCostEUR*float64(n)/hoursPerYear + plant.VariableCostPerMWh*r.OutputMWh
	r.ProfitEUR = r.RevenueEUR - cost
	if r.OutputMWh > 0 {
		r.CapturePrice = r.RevenueEUR / r.OutputMWh
		r.FullCostPerMWh = cost / r.OutputMWh
	} else {
		r.NoOutput = true
	}
	return r, nil
}
