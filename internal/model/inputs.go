package model

// ScenarioParameters describes a hypothetical grid configuration applied to
// the historical dataset. A scenario is a pure function of the base dataset
// and these values.
type ScenarioParameters struct {
	Name string

	// Solar scaling: factor = SolarTargetMW / SolarBaseMW when both are set,
	// otherwise SolarScale (0 means unchanged).
	SolarBaseMW   float64
	SolarTargetMW float64
	SolarScale    float64

	// Supply stack. CoalDeregulatedMW moves that much coal from the regulated,
	// price-insensitive bucket into the market-dispatched stack.
	CoalCapacityMW    float64
	CoalDeregulatedMW float64
	GasCapacityMW     float64

	// Interconnector limits per neighbor; override dataset meta when set.
	MaxExportMW map[string]float64
	MaxImportMW map[string]float64

	// ExportArbitrage values discharge at max(domestic, neighbor) price.
	ExportArbitrage bool
}

// SolarFactor returns the multiplicative factor applied to the solar trace.
func (p ScenarioParameters) SolarFactor() float64 {
	if p.SolarBaseMW > 0 && p.SolarTargetMW > 0 {
		return p.SolarTargetMW / p.SolarBaseMW
	}
	if p.SolarScale > 0 {
		return p.SolarScale
	}
	return 1
}

// Validate rejects parameters that cannot describe a grid.
func (p ScenarioParameters) Validate() error {
	switch {
	case p.SolarBaseMW < 0 || p.SolarTargetMW < 0 || p.SolarScale < 0:
		return ConfigErrorf("SCENARIO", "solar parameters must be >= 0")
	case p.SolarTargetMW > 0 && p.SolarBaseMW == 0:
		return ConfigErrorf("SCENARIO", "solar_target_mw requires solar_base_mw > 0")
	case p.CoalCapacityMW < 0 || p.CoalDeregulatedMW < 0 || p.GasCapacityMW < 0:
		return ConfigErrorf("SCENARIO", "capacities must be >= 0")
	case p.CoalDeregulatedMW > p.CoalCapacityMW:
		return ConfigErrorf("SCENARIO", "coal_deregulated_mw %.0f exceeds coal_capacity_mw %.0f", p.CoalDeregulatedMW, p.CoalCapacityMW)
	}
	for nb, v := range p.MaxExportMW {
		if v < 0 {
			return ConfigErrorf("SCENARIO", "max export to %s must be >= 0", nb)
		}
	}
	for nb, v := range p.MaxImportMW {
		if v < 0 {
			return ConfigErrorf("SCENARIO", "max import from %s must be >= 0", nb)
		}
	}
	return nil
}

// SupplyStack is the dispatchable thermal stack after regulated/market reassignment.
type SupplyStack struct {
	RegulatedCoalMW float64
	MarketCoalMW    float64
	GasMW           float64
}

// CoalMW is the full coal fleet.
func (s SupplyStack) CoalMW() float64 { return s.RegulatedCoalMW + s.MarketCoalMW }
