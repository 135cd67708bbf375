package equilibrium

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bess-impact/internal/model"
)

func TestClassify(t *testing.T) {
	b := DefaultConfig().bands()
	tests := []struct {
		rl   float64
		want Tech
	}{
		{-500, TechSurplus},
		{0, TechHydro},
		{299, TechHydro},
		{300, TechRegulatedCoal},
		{1399, TechRegulatedCoal},
		{1400, TechMarketCoal},
		{1999, TechMarketCoal},
		{2000, TechGas},
		{3199, TechGas},
		{3200, TechScarcity},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Classify(tt.rl), "rl=%v", tt.rl)
	}
}

// hour helper: residual load, solar, demand, baseline, saturated.
type hour struct{ rl, solar, demand, base, sat float64 }

func inputs(hours []hour) Inputs {
	var in Inputs
	for _, h := range hours {
		in.ResidualLoad = append(in.ResidualLoad, h.rl)
		in.Solar = append(in.Solar, h.solar)
		in.Demand = append(in.Demand, h.demand)
		in.Baseline = append(in.Baseline, h.base)
		in.Saturated = append(in.Saturated, h.sat)
	}
	return in
}

func TestAdjustBimodal(t *testing.T) {
	in := inputs([]hour{
		{rl: -200, solar: 4000, demand: 4000, base: -5, sat: 2}, // solar surplus
		{rl: 800, solar: 1500, demand: 4000, base: 60, sat: 5},  // solar share above 0.25
		{rl: 1000, solar: 0, demand: 4000, base: 110, sat: 70},  // regulated coal, capped
		{rl: 1200, solar: 0, demand: 4000, base: 95, sat: 80},   // regulated coal, capped
		{rl: 1300, solar: 0, demand: 4000, base: 100, sat: 95},  // regulated coal, not capped
		{rl: 2500, solar: 0, demand: 5000, base: 150, sat: 130}, // gas, not capped
		{rl: 2600, solar: 0, demand: 5000, base: 100, sat: 100}, // gas, never above floor
		{rl: 4000, solar: 0, demand: 6000, base: 300, sat: 250}, // scarcity
	})
	res, err := Adjust(in, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, 2, res.SolarHours)
	// solar hours keep the near-zero saturated price
	assert.Equal(t, 2.0, res.Prices[0])
	assert.Equal(t, 5.0, res.Prices[1])

	coal, ok := res.Tech(TechRegulatedCoal)
	require.True(t, ok)
	assert.Equal(t, 3, coal.PeakHours)
	assert.Equal(t, 2, coal.CappedHours)
	assert.True(t, coal.Eroded)
	assert.Equal(t, 2, coal.RepricedHours)
	assert.Equal(t, 88.0, res.Prices[2])
	assert.Equal(t, 88.0, res.Prices[3])
	assert.Equal(t, 95.0, res.Prices[4])

	gas, _ := res.Tech(TechGas)
	assert.Equal(t, 1, gas.PeakHours)
	assert.False(t, gas.Eroded)
	assert.Equal(t, 130.0, res.Prices[5])
	assert.Equal(t, 100.0, res.Prices[6])

	market, _ := res.Tech(TechMarketCoal)
	assert.Zero(t, market.PeakHours)
	assert.True(t, market.Eroded)

	// 800 MW above the stack: min(400, 0.15*800) = 120 over the gas floor
	assert.InDelta(t, 240.0, res.Prices[7], 1e-9)
	assert.Equal(t, 1, res.ScarcityHours)
	assert.Equal(t, 3, res.RepricedHours)

	// the saturated input is untouched
	assert.Equal(t, 70.0, in.Saturated[2])
}

func TestAdjustBlendAndCoverage(t *testing.T) {
	in := inputs([]hour{
		{rl: 1000, solar: 0, demand: 4000, base: 110, sat: 70},
		{rl: 4000, solar: 0, demand: 6000, base: 300, sat: 250},
		{rl: 8000, solar: 0, demand: 9000, base: 500, sat: 450},
	})
	cfg := DefaultConfig()
	cfg.Blend = 0.5
	cfg.PeakCoverage = 0.5
	res, err := Adjust(in, cfg)
	require.NoError(t, err)
	assert.InDelta(t, 79.0, res.Prices[0], 1e-9)
	assert.InDelta(t, 180.0, res.Prices[1], 1e-9)
	// premium capped at 400, half eroded
	assert.InDelta(t, 320.0, res.Prices[2], 1e-9)
}

func TestAdjustTriggerShare(t *testing.T) {
	in := inputs([]hour{
		{rl: 1000, solar: 0, demand: 4000, base: 110, sat: 70},
		{rl: 1000, solar: 0, demand: 4000, base: 110, sat: 100},
		{rl: 1000, solar: 0, demand: 4000, base: 110, sat: 105},
	})
	cfg := DefaultConfig()
	res, err := Adjust(in, cfg)
	require.NoError(t, err)
	rep, _ := res.Tech(TechRegulatedCoal)
	assert.InDelta(t, 1.0/3, rep.CappedShare, 1e-9)
	assert.False(t, rep.Eroded)
	assert.Equal(t, 70.0, res.Prices[0])

	cfg.TriggerShare = 0.3
	res, err = Adjust(in, cfg)
	require.NoError(t, err)
	assert.Equal(t, 88.0, res.Prices[0])
}

func TestAdjustErrors(t *testing.T) {
	good := inputs([]hour{{rl: 1000, demand: 4000, base: 90, sat: 80}})

	_, err := Adjust(Inputs{}, DefaultConfig())
	assert.True(t, model.IsClass(err, model.ClassData))

	short := good
	short.Demand = nil
	_, err = Adjust(short, DefaultConfig())
	assert.True(t, model.IsClass(err, model.ClassData))

	cases := map[string]func(*Config){
		"missing floor": func(c *Config) { c.Floors = map[Tech]float64{TechGas: 120} },
		"blend":         func(c *Config) { c.Blend = 0 },
		"coverage":      func(c *Config) { c.PeakCoverage = 2 },
		"solar share":   func(c *Config) { c.SolarShare = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			_, err := Adjust(good, cfg)
			assert.True(t, model.IsClass(err, model.ClassConfig))
		})
	}
}

func TestParseTech(t *testing.T) {
	tech, err := ParseTech("gas")
	require.NoError(t, err)
	assert.Equal(t, TechGas, tech)
	_, err = ParseTech("fusion")
	assert.Error(t, err)
}
