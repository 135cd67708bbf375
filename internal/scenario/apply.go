// Package scenario derives a hypothetical grid from the historical dataset.
package scenario

import (
	"math"
	"sort"

	"bess-impact/internal/meritorder"
	"bess-impact/internal/model"
)

// Result is a transformed dataset plus what the transformation had to clamp.
type Result struct {
	Dataset     *model.Dataset
	SolarFactor float64
	Stack       model.SupplyStack

	// ClampedHours counts hours where the solar adjustment was limited to keep
	// residual load inside its historical range or to keep the hour balanced.
	ClampedHours int
	CurtailedMWh float64

	// Where added solar went, in MWh.
	DisplacedMWh   float64
	AddedExportMWh float64

	ResidualLoadMinMW float64
	ResidualLoadMaxMW float64

	// ExportPrices is the best neighbor price with export capacity per hour
	// (-Inf where none is known), and DischargePrices is max(domestic, export).
	// Both are nil unless export arbitrage is enabled.
	ExportPrices    []float64
	DischargePrices []float64
}

// displaceOrder is the order in which added solar backs out dispatchable output.
var displaceOrder = []model.Technology{model.TechGas, model.TechCoal, model.TechHydro, model.TechOther}

// Apply scales the solar trace, rebalances every hour and, when mo is not nil,
// re-prices each hour by the merit-order change in residual load.
// base is not modified.
func Apply(base *model.Dataset, p model.ScenarioParameters, mo *meritorder.Model) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if base == nil || len(base.Hours) == 0 {
		return nil, model.DataErrorf("EMPTY_DATASET", "scenario needs a non-empty dataset")
	}

	ds := base.Clone()
	if len(p.MaxExportMW) > 0 {
		ds.Meta.MaxExportMW = copyMap(p.MaxExportMW)
	}
	if len(p.MaxImportMW) > 0 {
		ds.Meta.MaxImportMW = copyMap(p.MaxImportMW)
	}

	res := &Result{
		Dataset:     ds,
		SolarFactor: p.SolarFactor(),
		Stack: model.SupplyStack{
			RegulatedCoalMW: p.CoalCapacityMW - p.CoalDeregulatedMW,
			MarketCoalMW:    p.CoalDeregulatedMW,
			GasMW:           p.GasCapacityMW,
		},
		ResidualLoadMinMW: math.Inf(1),
		ResidualLoadMaxMW: math.Inf(-1),
	}
	for _, h := range base.Hours {
		rl := h.ResidualLoadMW()
		res.ResidualLoadMinMW = math.Min(res.ResidualLoadMinMW, rl)
		res.ResidualLoadMaxMW = math.Max(res.ResidualLoadMaxMW, rl)
	}

	neighbors := ds.Neighbors()
	for i := range ds.Hours {
		h := &ds.Hours[i]
		rlBefore := h.ResidualLoadMW()
		if clamped := res.rescale(h, neighbors, ds.Meta.MaxExportMW); clamped {
			res.ClampedHours++
		}
		if mo != nil {
			h.Price += mo.Delta(rlBefore, h.ResidualLoadMW())
		}
	}

	if p.ExportArbitrage {
		res.ExportPrices = exportPrices(ds)
		res.DischargePrices = make([]float64, len(ds.Hours))
		for i, h := range ds.Hours {
			res.DischargePrices[i] = math.Max(h.Price, res.ExportPrices[i])
		}
	}
	return res, nil
}

// rescale applies the solar factor to one hour and rebalances it.
func (r *Result) rescale(h *model.HourRecord, neighbors []string, maxExport map[string]float64) bool {
	solar := h.Generation.Solar
	delta := solar*r.SolarFactor - solar
	rl := h.ResidualLoadMW()
	clamped := false

	if delta < 0 {
		// Less solar: keep residual load under the historical maximum and let
		// gas cover the gap.
		if room := r.ResidualLoadMaxMW - rl; -delta > room {
			delta = -math.Max(0, room)
			clamped = true
		}
		h.Generation.Solar += delta
		h.Generation.Gas -= delta
		return clamped
	}

	if room := rl - r.ResidualLoadMinMW; delta > room {
		r.CurtailedMWh += delta - math.Max(0, room)
		delta = math.Max(0, room)
		clamped = true
	}

	remaining := delta
	for _, tech := range displaceOrder {
		remaining -= displace(&h.Generation, tech, remaining)
	}
	r.DisplacedMWh += delta - remaining
	if remaining > 0 {
		exported := addExports(h, neighbors, maxExport, remaining)
		r.AddedExportMWh += exported
		remaining -= exported
	}
	if remaining > 1e-9 {
		r.CurtailedMWh += remaining
		delta -= remaining
		clamped = true
	}
	h.Generation.Solar += delta
	return clamped
}

// displace reduces one technology by up to mw and returns the reduction.
func displace(g *model.Generation, tech model.Technology, mw float64) float64 {
	if mw <= 0 {
		return 0
	}
	var field *float64
	switch tech {
	case model.TechGas:
		field = &g.Gas
	case model.TechCoal:
		field = &g.Coal
	case model.TechHydro:
		field = &g.Hydro
	case model.TechOther:
		field = &g.Other
	default:
		return 0
	}
	take := math.Min(math.Max(0, *field), mw)
	*field -= take
	return take
}

// addExports spreads mw over neighbors in proportion to their export headroom.
func addExports(h *model.HourRecord, neighbors []string, maxExport map[string]float64, mw float64) float64 {
	headroom := make(map[string]float64, len(neighbors))
	total := 0.0
	for _, nb := range neighbors {
		// flow is negative when exporting, so headroom = max - (-flow)
		if room := maxExport[nb] + h.Flows[nb]; room > 0 {
			headroom[nb] = room
			total += room
		}
	}
	if total <= 0 {
		return 0
	}
	take := math.Min(mw, total)
	if h.Flows == nil {
		h.Flows = map[string]float64{}
	}
	for _, nb := range neighbors {
		if room, ok := headroom[nb]; ok {
			h.Flows[nb] -= take * room / total
		}
	}
	return take
}

func exportPrices(ds *model.Dataset) []float64 {
	var exporters []string
	for nb, mw := range ds.Meta.MaxExportMW {
		if mw > 0 {
			exporters = append(exporters, nb)
		}
	}
	sort.Strings(exporters)

	out := make([]float64, len(ds.Hours))
	for i, h := range ds.Hours {
		best := math.Inf(-1)
		for _, nb := range exporters {
			if np, ok := h.NeighborPrices[nb]; ok && np > best {
				best = np
			}
		}
		out[i] = best
	}
	return out
}

func copyMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
