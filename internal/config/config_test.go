package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bess-impact/internal/dispatch"
	"bess-impact/internal/equilibrium"
	"bess-impact/internal/model"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadWithStorageFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "storage/big.yaml", `
storage_name: big
capacity_mwh: 15000
duration_hours: 4
round_trip_efficiency: 0.9
cycle_cost_per_mwh: 10
`)
	path := writeFile(t, dir, "scenario.yaml", `
name: test
solar_base_mw: 5000
solar_target_mw: 10000
coal_capacity_mw: 2000
coal_deregulated_mw: 500
gas_capacity_mw: 1200
max_export_mw: {ro: 1500}
storage_file: storage/big.yaml
capacity_mwh: 8000
equilibrium: true
equilibrium_floors: {gas: 130}
`)
	c, err := Load(path)
	require.NoError(t, err)

	// scenario keys override the storage file
	assert.Equal(t, 8000.0, c.CapacityMWh)
	assert.Equal(t, "big", c.StorageName)
	assert.Equal(t, 0.9, c.RoundTripEfficiency)
	assert.Equal(t, 10.0, c.CycleCostPerMWh)

	assert.Equal(t, string(dispatch.SOCCarry), c.SOCPolicy)
	assert.Equal(t, 2.0, c.ScenarioParameters().SolarFactor())

	a, err := c.Asset()
	require.NoError(t, err)
	assert.InDelta(t, 2000.0, a.PowerRatingMW, 1e-9)

	eq, err := c.EquilibriumConfig()
	require.NoError(t, err)
	assert.Equal(t, 130.0, eq.Floors[equilibrium.TechGas])
	assert.Equal(t, 88.0, eq.Floors[equilibrium.TechRegulatedCoal])
	assert.Equal(t, 1500.0, eq.Stack.RegulatedCoalMW)
	assert.Equal(t, 500.0, eq.Stack.MarketCoalMW)
	assert.Equal(t, 300.0, eq.HydroBandMW)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"dereg above coal": "coal_capacity_mw: 100\ncoal_deregulated_mw: 200\ncapacity_mwh: 100\n",
		"bad policy":       "capacity_mwh: 100\nsoc_policy: weekly\n",
		"soc above cap":    "capacity_mwh: 100\ninitial_soc_mwh: 200\n",
		"rte":              "capacity_mwh: 100\nround_trip_efficiency: 1.5\n",
		"sweep range":      "capacity_mwh: 100\nsweep_start_mwh: 500\nsweep_step_mwh: 100\nsweep_max_mwh: 200\n",
		"unknown tech":     "capacity_mwh: 100\nequilibrium: true\nequilibrium_floors: {fusion: 10}\n",
		"merit mode":       "capacity_mwh: 100\nmerit_order_mode: spline\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "c.yaml", body)
			_, err := Load(path)
			require.Error(t, err)
			assert.True(t, model.IsClass(err, model.ClassConfig), "%v", err)
		})
	}
}

func TestLoadUncheckedMissingStorageFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "c.yaml", "storage_file: nope.yaml\n")
	_, err := LoadUnchecked(path)
	assert.Error(t, err)
}

func TestLoadBadYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "c.yaml", "name: [unterminated\n")
	_, err := LoadUnchecked(path)
	assert.True(t, model.IsClass(err, model.ClassConfig))
}

func TestMergeStorage(t *testing.T) {
	base := StorageConfig{StorageName: "a", CapacityMWh: 100, DurationHours: 2, RoundTripEfficiency: 0.8}
	out := MergeStorage(base, StorageConfig{CapacityMWh: 400, CycleCostPerMWh: 5})
	assert.Equal(t, StorageConfig{StorageName: "a", CapacityMWh: 400, DurationHours: 2, RoundTripEfficiency: 0.8, CycleCostPerMWh: 5}, out)
}

func TestMeritOrderPolicy(t *testing.T) {
	c := &ScenarioConfig{MeritOrderMode: "fixed", MeritOrderBreakpoints: []float64{0, 1500}, MeritOrderNegativeRegime: true}
	p := c.MeritOrderPolicy()
	assert.EqualValues(t, "fixed", p.Mode)
	assert.Equal(t, []float64{0, 1500}, p.Breakpoints)
	assert.True(t, p.AllowNegativeFirstSegment)
	assert.Equal(t, 24, p.MinSamples)
}

func TestBaseloadPlant(t *testing.T) {
	c := &ScenarioConfig{}
	_, ok := c.BaseloadPlant()
	assert.False(t, ok)

	c.BaseloadNameplateMW = 1000
	c.BaseloadVariableCost = 9
	p, ok := c.BaseloadPlant()
	require.True(t, ok)
	assert.Equal(t, 1000.0, p.NameplateMW)
	assert.Equal(t, 9.0, p.VariableCostPerMWh)
	assert.Equal(t, 300.0, p.OtherMustRunMW)
}

func TestSweepConfig(t *testing.T) {
	c := &ScenarioConfig{SweepStepMWh: 1000, SweepMaxMWh: 3000, SOCPolicy: "reset", Workers: 3}
	c.ApplyDefaults()
	require.True(t, c.SweepEnabled())
	s := c.SweepConfig()
	assert.Equal(t, []float64{0, 1000, 2000, 3000}, s.Capacities())
	assert.Equal(t, dispatch.SOCReset, s.Dispatch.Policy)
	assert.Equal(t, 4.0, s.DurationHours)
	require.NoError(t, s.Validate())
}

func TestExampleConfigLoads(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "configs", "bg-2030.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 15000.0, c.CapacityMWh)
	assert.True(t, c.ExportArbitrage)
	assert.Equal(t, []string{"bg_2024"}, c.Datasets)
	assert.Equal(t, 886.0, c.MaxExportMW["gr"])
}
