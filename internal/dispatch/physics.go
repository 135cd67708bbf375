package dispatch

import (
	"math"

	"bess-impact/internal/model"
)

// step applies one hour of grid-side charge and discharge (MW over one hour)
// to soc. Power is clipped to the rating and then to the SOC headroom, so the
// returned soc always lies in [0, capacity].
func step(soc, charge, discharge float64, a model.StorageAsset) (nextSOC, c, d float64) {
	c = clip(charge, 0, a.PowerRatingMW)
	d = clip(discharge, 0, a.PowerRatingMW)
	if room := a.EnergyCapacityMWh - soc; c*a.ChargeEfficiency > room {
		c = math.Max(0, room/a.ChargeEfficiency)
	}
	if avail := soc + c*a.ChargeEfficiency; d/a.DischargeEfficiency > avail {
		d = math.Max(0, avail*a.DischargeEfficiency)
	}
	nextSOC = clip(soc+c*a.ChargeEfficiency-d/a.DischargeEfficiency, 0, a.EnergyCapacityMWh)
	return nextSOC, c, d
}
