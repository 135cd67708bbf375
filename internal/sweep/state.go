// Package sweep grows storage capacity step by step, feeding each step's
// dispatch back through the merit-order model before the next step runs.
package sweep

import (
	"math"
	"time"

	"bess-impact/internal/meritorder"
	"bess-impact/internal/model"
)

// MarketState is the price and residual-load picture one sweep step sees.
// It is passed in and returned explicitly; nothing is shared between steps.
type MarketState struct {
	Times        []time.Time
	Days         []model.DayRange
	Prices       []float64
	ResidualLoad []float64

	// ExportPrices, when set, is the best neighbor price per hour; discharge is
	// then valued at max(domestic, export).
	ExportPrices []float64
}

// StateFromDataset builds the initial state from a (scenario) dataset.
func StateFromDataset(ds *model.Dataset, exportPrices []float64) MarketState {
	return MarketState{
		Times:        ds.Times(),
		Days:         ds.Days(),
		Prices:       ds.Prices(),
		ResidualLoad: ds.ResidualLoads(),
		ExportPrices: exportPrices,
	}
}

func (s MarketState) Validate() error {
	n := len(s.Prices)
	switch {
	case n == 0:
		return model.DataErrorf("EMPTY_STATE", "sweep state has no hours")
	case len(s.ResidualLoad) != n || len(s.Times) != n:
		return model.DataErrorf("LENGTH", "sweep state lengths differ: prices=%d residual=%d times=%d", n, len(s.ResidualLoad), len(s.Times))
	case s.ExportPrices != nil && len(s.ExportPrices) != n:
		return model.DataErrorf("LENGTH", "sweep state has %d export prices for %d hours", len(s.ExportPrices), n)
	}
	for h := 0; h < n; h++ {
		if !finite(s.Prices[h]) || !finite(s.ResidualLoad[h]) || (s.ExportPrices != nil && !finite(s.ExportPrices[h])) {
			return model.DataErrorf("NON_FINITE", "sweep state hour %d (%s) is not finite", h, s.Times[h].Format(time.RFC3339))
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// DischargePrices is max(domestic, export) per hour, or nil without exports.
func (s MarketState) DischargePrices() []float64 {
	if s.ExportPrices == nil {
		return nil
	}
	out := make([]float64, len(s.Prices))
	for i, p := range s.Prices {
		out[i] = math.Max(p, s.ExportPrices[i])
	}
	return out
}

// Advance applies storage net power (positive = discharge) to the state.
// Discharge lowers the residual load the merit order faces and charging
// raises it; each price moves by the modeled change at its hour.
func Advance(s MarketState, mo *meritorder.Model, netMW []float64) MarketState {
	next := s
	next.Prices = make([]float64, len(s.Prices))
	next.ResidualLoad = make([]float64, len(s.ResidualLoad))
	for i := range s.Prices {
		rl := s.ResidualLoad[i]
		adj := rl - netMW[i]
		next.ResidualLoad[i] = adj
		next.Prices[i] = s.Prices[i] + mo.Delta(rl, adj)
	}
	return next
}
