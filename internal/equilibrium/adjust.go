package equilibrium

import (
	"math"

	"bess-impact/internal/model"
)

// Inputs are hour-aligned series. Baseline is the historical price, Saturated
// the price after storage feedback.
type Inputs struct {
	Baseline     []float64
	Saturated    []float64
	ResidualLoad []float64
	Solar        []float64
	Demand       []float64
}

func (in Inputs) validate() error {
	n := len(in.Saturated)
	if n == 0 {
		return model.DataErrorf("EMPTY_SERIES", "equilibrium inputs have no hours")
	}
	for name, s := range map[string][]float64{
		"baseline": in.Baseline, "residual load": in.ResidualLoad, "solar": in.Solar, "demand": in.Demand,
	} {
		if len(s) != n {
			return model.DataErrorf("LENGTH", "equilibrium %s has %d hours, want %d", name, len(s), n)
		}
	}
	return nil
}

// Config holds every floor, threshold and blend the adjustment uses.
type Config struct {
	// Floors is the full-cost floor (EUR/MWh) per thermal technology.
	Floors map[Tech]float64  `yaml:"floors" json:"floors"`
	Stack  model.SupplyStack `yaml:"-" json:"stack"`

	HydroBandMW  float64 `yaml:"hydro_band_mw" json:"hydroBandMw"`
	SolarShare   float64 `yaml:"solar_share" json:"solarShare"`
	TriggerShare float64 `yaml:"trigger_share" json:"triggerShare"`
	// Blend moves an eroded hour from its saturated price toward the floor;
	// 1 lands on the floor.
	Blend float64 `yaml:"blend" json:"blend"`

	PeakCoverage  float64 `yaml:"peak_coverage" json:"peakCoverage"`
	ScarcityCap   float64 `yaml:"scarcity_cap" json:"scarcityCap"`
	ScarcitySlope float64 `yaml:"scarcity_slope" json:"scarcitySlope"`
}

// DefaultConfig is calibrated on a coal/gas system with ~2 GW coal and
// ~1.2 GW gas.
func DefaultConfig() Config {
	return Config{
		Floors: map[Tech]float64{
			TechRegulatedCoal: 88,
			TechMarketCoal:    88,
			TechGas:           120,
		},
		Stack:         model.SupplyStack{RegulatedCoalMW: 1400, MarketCoalMW: 600, GasMW: 1200},
		HydroBandMW:   300,
		SolarShare:    0.25,
		TriggerShare:  0.5,
		Blend:         1,
		ScarcityCap:   400,
		ScarcitySlope: 0.15,
	}
}

func (c Config) Validate() error {
	for _, t := range Thermal {
		f, ok := c.Floors[t]
		if !ok {
			return model.ConfigErrorf("EQUILIBRIUM", "missing floor for %s", t)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return model.ConfigErrorf("EQUILIBRIUM", "floor for %s must be finite", t)
		}
	}
	switch {
	case c.HydroBandMW < 0:
		return model.ConfigErrorf("EQUILIBRIUM", "hydro band must be >= 0")
	case c.SolarShare < 0 || c.SolarShare > 1:
		return model.ConfigErrorf("EQUILIBRIUM", "solar share must be in [0, 1]")
	case c.TriggerShare < 0 || c.TriggerShare > 1:
		return model.ConfigErrorf("EQUILIBRIUM", "trigger share must be in [0, 1]")
	case c.Blend <= 0 || c.Blend > 1:
		return model.ConfigErrorf("EQUILIBRIUM", "blend must be in (0, 1]")
	case c.PeakCoverage < 0 || c.PeakCoverage > 1:
		return model.ConfigErrorf("EQUILIBRIUM", "peak coverage must be in [0, 1]")
	case c.ScarcityCap < 0 || c.ScarcitySlope < 0:
		return model.ConfigErrorf("EQUILIBRIUM", "scarcity cap and slope must be >= 0")
	case c.Stack.RegulatedCoalMW < 0 || c.Stack.MarketCoalMW < 0 || c.Stack.GasMW < 0:
		return model.ConfigErrorf("EQUILIBRIUM", "supply stack capacities must be >= 0")
	}
	return nil
}

func (c Config) bands() Bands {
	return Bands{HydroBandMW: c.HydroBandMW, Stack: c.Stack}
}

// TechReport describes one thermal technology's premium erosion.
type TechReport struct {
	Tech  Tech    `json:"tech"`
	Floor float64 `json:"floor"`
	// MarginalHours counts hours in the technology's band.
	MarginalHours int `json:"marginalHours"`
	// PeakHours are marginal hours whose baseline price exceeded the floor.
	PeakHours int `json:"peakHours"`
	// CappedHours are peak hours storage pushed to or below the floor.
	CappedHours   int     `json:"cappedHours"`
	CappedShare   float64 `json:"cappedShare"`
	Eroded        bool    `json:"eroded"`
	RepricedHours int     `json:"repricedHours"`
}

type Result struct {
	Prices        []float64    `json:"-"`
	Marginal      []Tech       `json:"-"`
	Techs         []TechReport `json:"techs"`
	SolarHours    int          `json:"solarHours"`
	ScarcityHours int          `json:"scarcityHours"`
	RepricedHours int          `json:"repricedHours"`
}

// Tech returns the report for t.
func (r *Result) Tech(t Tech) (TechReport, bool) {
	for _, rep := range r.Techs {
		if rep.Tech == t {
			return rep, true
		}
	}
	return TechReport{}, false
}

// Adjust reprices the saturated series.
//
// Solar hours (solar >= SolarShare*demand, or residual load inside the hydro
// band) keep their saturated price. In other hours, a thermal technology whose
// premium storage has eroded no longer sells below its floor, and scarcity
// hours are priced from the gas floor plus a premium that shrinks with peak
// coverage.
func Adjust(in Inputs, cfg Config) (*Result, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bands := cfg.bands()
	n := len(in.Saturated)

	res := &Result{
		Prices:   append([]float64(nil), in.Saturated...),
		Marginal: make([]Tech, n),
	}
	solar := make([]bool, n)
	for h := 0; h < n; h++ {
		res.Marginal[h] = bands.Classify(in.ResidualLoad[h])
		solar[h] = in.Solar[h] >= cfg.SolarShare*in.Demand[h] || in.ResidualLoad[h] < cfg.HydroBandMW
		if solar[h] {
			res.SolarHours++
		}
	}

	reports := make(map[Tech]*TechReport, len(Thermal))
	for _, t := range Thermal {
		reports[t] = &TechReport{Tech: t, Floor: cfg.Floors[t]}
	}
	for h, t := range res.Marginal {
		rep, ok := reports[t]
		if !ok {
			continue
		}
		rep.MarginalHours++
		if in.Baseline[h] > rep.Floor {
			rep.PeakHours++
			if in.Saturated[h] <= rep.Floor {
				rep.CappedHours++
			}
		}
	}
	for _, t := range Thermal {
		rep := reports[t]
		if rep.PeakHours == 0 {
			rep.Eroded = true
		} else {
			rep.CappedShare = float64(rep.CappedHours) / float64(rep.PeakHours)
			rep.Eroded = rep.CappedShare >= cfg.TriggerShare
		}
	}

	gasFloor := cfg.Floors[TechGas]
	for h, t := range res.Marginal {
		if solar[h] {
			continue
		}
		if t == TechScarcity {
			excess := bands.ScarcityExcessMW(in.ResidualLoad[h])
			premium := math.Min(cfg.ScarcityCap, cfg.ScarcitySlope*excess)
			res.Prices[h] = gasFloor + premium*(1-cfg.PeakCoverage)
			res.ScarcityHours++
			res.RepricedHours++
			continue
		}
		rep, ok := reports[t]
		if !ok || !rep.Eroded {
			continue
		}
		if sat := in.Saturated[h]; sat < rep.Floor {
			res.Prices[h] = sat + cfg.Blend*(rep.Floor-sat)
			rep.RepricedHours++
			res.RepricedHours++
		}
	}

	for _, t := range Thermal {
		res.Techs = append(res.Techs, *reports[t])
	}
	return res, nil
}
