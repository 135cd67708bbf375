package model

import (
	"fmt"
	"math"
	"time"
)

// DispatchSchedule is the hourly plan for one optimization window (a day).
// ChargeMW and DischargeMW are grid-side and non-negative; SOCMWh is the
// end-of-hour state of charge. Profit is the price-taker objective value.
type DispatchSchedule struct {
	Start         time.Time
	ChargeMW      []float64
	DischargeMW   []float64
	SOCMWh        []float64
	InitialSOCMWh float64
	Profit        float64

	// Repaired counts hours where simultaneous charge and discharge were netted.
	Repaired int
}

// ZeroSchedule is an idle schedule holding initialSOC for n hours.
func ZeroSchedule(start time.Time, n int, initialSOC float64) *DispatchSchedule {
	s := &DispatchSchedule{
		Start:         start,
		ChargeMW:      make([]float64, n),
		DischargeMW:   make([]float64, n),
		SOCMWh:        make([]float64, n),
		InitialSOCMWh: initialSOC,
	}
	for i := range s.SOCMWh {
		s.SOCMWh[i] = initialSOC
	}
	return s
}

func (s *DispatchSchedule) Hours() int { return len(s.ChargeMW) }

// NetMW returns discharge - charge per hour (positive = discharge).
func (s *DispatchSchedule) NetMW() []float64 {
	out := make([]float64, len(s.ChargeMW))
	for h := range out {
		out[h] = s.DischargeMW[h] - s.ChargeMW[h]
	}
	return out
}

// FinalSOCMWh is the state of charge after the last hour.
func (s *DispatchSchedule) FinalSOCMWh() float64 {
	if len(s.SOCMWh) == 0 {
		return s.InitialSOCMWh
	}
	return s.SOCMWh[len(s.SOCMWh)-1]
}

func (s *DispatchSchedule) ChargedMWh() float64 { return sum(s.ChargeMW) }

func (s *DispatchSchedule) DischargedMWh() float64 { return sum(s.DischargeMW) }

// ProfitAt values the schedule against a price series:
// sum(discharge*price*de - charge*price/ce). dischargePrices may be nil.
func (s *DispatchSchedule) ProfitAt(prices, dischargePrices []float64, a StorageAsset) float64 {
	if dischargePrices == nil {
		dischargePrices = prices
	}
	total := 0.0
	for h := range s.ChargeMW {
		total += s.DischargeMW[h]*dischargePrices[h]*a.DischargeEfficiency -
			s.ChargeMW[h]*prices[h]/a.ChargeEfficiency
	}
	return total
}

// Validate checks power bounds, SOC bounds, mutual exclusion and that the
// SOC trajectory follows soc[h] = soc[h-1] + c*ce - d/de.
func (s *DispatchSchedule) Validate(a StorageAsset, tol float64) error {
	n := len(s.ChargeMW)
	if len(s.DischargeMW) != n || len(s.SOCMWh) != n {
		return fmt.Errorf("schedule length mismatch: charge=%d discharge=%d soc=%d", n, len(s.DischargeMW), len(s.SOCMWh))
	}
	prev := s.InitialSOCMWh
	for h := 0; h < n; h++ {
		c, d, soc := s.ChargeMW[h], s.DischargeMW[h], s.SOCMWh[h]
		if c < -tol || c > a.PowerRatingMW+tol {
			return fmt.Errorf("hour %d: charge %.6f outside [0, %.6f]", h, c, a.PowerRatingMW)
		}
		if d < -tol || d > a.PowerRatingMW+tol {
			return fmt.Errorf("hour %d: discharge %.6f outside [0, %.6f]", h, d, a.PowerRatingMW)
		}
		if c > tol && d > tol {
			return fmt.Errorf("hour %d: simultaneous charge %.6f and discharge %.6f", h, c, d)
		}
		if soc < -tol || soc > a.EnergyCapacityMWh+tol {
			return fmt.Errorf("hour %d: SOC %.6f outside [0, %.6f]", h, soc, a.EnergyCapacityMWh)
		}
		want := prev + c*a.ChargeEfficiency - d/a.DischargeEfficiency
		if math.Abs(want-soc) > tol {
			return fmt.Errorf("hour %d: SOC %.6f does not follow recursion (want %.6f)", h, soc, want)
		}
		prev = soc
	}
	return nil
}

func sum(xs []float64) float64 {
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total
}
