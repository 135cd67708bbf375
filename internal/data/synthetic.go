package data

import (
	"math"
	"time"

	"bess-impact/internal/model"
)

// SyntheticOptions shapes a generated market. Zero fields take defaults.
type SyntheticOptions struct {
	Zone  string
	Start time.Time
	Days  int

	DemandBaseMW  float64
	DemandSwingMW float64
	SolarPeakMW   float64
	WindMW        float64
	NuclearMW     float64
	HydroMW       float64
	CoalMW        float64
	GasMW         float64
}

func (o SyntheticOptions) withDefaults() SyntheticOptions {
	if o.Zone == "" {
		o.Zone = "SYN"
	}
	if o.Start.IsZero() {
		o.Start = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if o.Days <= 0 {
		o.Days = 365
	}
	def := func(v *float64, d float64) {
		if *v == 0 {
			*v = d
		}
	}
	def(&o.DemandBaseMW, 4500)
	def(&o.DemandSwingMW, 1500)
	def(&o.SolarPeakMW, 4500)
	def(&o.WindMW, 800)
	def(&o.NuclearMW, 1400)
	def(&o.HydroMW, 300)
	def(&o.CoalMW, 2000)
	def(&o.GasMW, 1200)
	return o
}

// SyntheticPrice is the merit curve the generator prices hours with:
// continuous and non-decreasing in residual load.
func SyntheticPrice(rl float64) float64 {
	switch {
	case rl < 0:
		return math.Max(-80, 0.04*rl)
	case rl < 1500:
		return 10 + 0.04*rl
	case rl < 3000:
		return 70 + 0.03*(rl-1500)
	default:
		return 115 + 0.1*(rl-3000)
	}
}

// Synthetic generates a deterministic, balanced hourly market: daily demand
// and solar cycles with seasonal amplitude, slow wind swings, must-run
// nuclear, and a hydro/coal/gas/import stack covering the residual load.
// Surplus is exported to neighbor "ro".
func Synthetic(opts SyntheticOptions) *model.Dataset {
	o := opts.withDefaults()
	ds := &model.Dataset{
		Zone:     o.Zone,
		Currency: "EUR",
		Meta: model.Meta{
			MaxExportMW: map[string]float64{"ro": 1500, "bg": 600},
			MaxImportMW: map[string]float64{"ro": 1500, "bg": 600},
		},
		Hours: make([]model.HourRecord, 0, o.Days*24),
	}

	for i := 0; i < o.Days*24; i++ {
		t := o.Start.Add(time.Duration(i) * time.Hour)
		hod := float64(t.Hour())
		doy := float64(t.YearDay())
		season := 0.6 + 0.4*math.Cos(2*math.Pi*(doy-172)/365)

		demand := o.DemandBaseMW*(1+0.08*math.Cos(2*math.Pi*doy/365)) +
			o.DemandSwingMW*math.Max(0, math.Sin(math.Pi*(hod-5)/18))
		solar := o.SolarPeakMW * season * math.Max(0, math.Sin(math.Pi*(hod-6)/12))
		wind := o.WindMW * (0.5 + 0.3*math.Sin(2*math.Pi*float64(i)/(24*5)) + 0.15*math.Sin(float64(i)*0.37))
		g := model.Generation{Nuclear: o.NuclearMW, Solar: solar, Wind: wind}

		rl := demand - solar - wind - o.NuclearMW
		flow := 0.0
		if rl >= 0 {
			rest := rl
			g.Hydro = math.Min(rest, o.HydroMW)
			rest -= g.Hydro
			g.Coal = math.Min(rest, o.CoalMW)
			rest -= g.Coal
			g.Gas = math.Min(rest, o.GasMW)
			rest -= g.Gas
			flow = rest
		} else {
			flow = rl
		}

		price := SyntheticPrice(rl) + 3*math.Sin(float64(i)*0.7)
		ds.Hours = append(ds.Hours, model.HourRecord{
			Time:           t,
			DemandMW:       demand,
			Generation:     g,
			Flows:          map[string]float64{"ro": flow},
			Price:          price,
			NeighborPrices: map[string]float64{"ro": price + 5 + 5*math.Sin(float64(i)*0.11)},
		})
	}
	return ds
}
