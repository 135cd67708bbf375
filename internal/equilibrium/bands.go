// Package equilibrium re-prices a storage-saturated market under the
// assumption that thermal plants stop accepting prices below their full cost
// once storage has eroded the peak premium they used to recover it from.
//
// It is a coarse, configuration-driven approximation. No market is cleared:
// every hour is classified by residual-load band and repriced with fixed rules.
package equilibrium

import (
	"fmt"

	"bess-impact/internal/model"
)

// Tech is the technology assumed marginal in a residual-load band.
type Tech string

const (
	TechSurplus       Tech = "surplus"
	TechHydro         Tech = "hydro"
	TechRegulatedCoal Tech = "coal_regulated"
	TechMarketCoal    Tech = "coal_market"
	TechGas           Tech = "gas"
	TechScarcity      Tech = "scarcity"
)

// Thermal lists the technologies that carry a full-cost floor, cheapest first.
var Thermal = []Tech{TechRegulatedCoal, TechMarketCoal, TechGas}

func ParseTech(s string) (Tech, error) {
	switch t := Tech(s); t {
	case TechSurplus, TechHydro, TechRegulatedCoal, TechMarketCoal, TechGas, TechScarcity:
		return t, nil
	}
	return "", fmt.Errorf("unknown technology %q", s)
}

// Bands maps residual load to the marginal technology.
type Bands struct {
	HydroBandMW float64
	Stack       model.SupplyStack
}

// Classify returns the marginal technology at a residual load (MW).
//
//	< 0                        surplus
//	< HydroBandMW              hydro / must-run
//	< regulated coal           regulated coal
//	< regulated + market coal  market coal
//	< coal + gas               gas
//	otherwise                  scarcity
func (b Bands) Classify(rl float64) Tech {
	switch {
	case rl < 0:
		return TechSurplus
	case rl < b.HydroBandMW:
		return TechHydro
	case rl < b.Stack.RegulatedCoalMW:
		return TechRegulatedCoal
	case rl < b.Stack.CoalMW():
		return TechMarketCoal
	case rl < b.Stack.CoalMW()+b.Stack.GasMW:
		return TechGas
	}
	return TechScarcity
}

// ScarcityExcessMW is how far a residual load sits above the thermal stack.
func (b Bands) ScarcityExcessMW(rl float64) float64 {
	return rl - b.Stack.CoalMW() - b.Stack.GasMW
}
