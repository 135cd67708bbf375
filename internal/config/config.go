package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"bess-impact/internal/dispatch"
	"bess-impact/internal/equilibrium"
	"bess-impact/internal/meritorder"
	"bess-impact/internal/metrics"
	"bess-impact/internal/model"
	"bess-impact/internal/sweep"

	"gopkg.in/yaml.v3"
)

// ScenarioConfig is the on-disk scenario shape (YAML). Keys are flat; only
// neighbors and technologies get maps.
type ScenarioConfig struct {
	Name string `yaml:"name"`
	// Datasets are dataset names (resolved by the caller) or file paths,
	// concatenated in order.
	Datasets []string `yaml:"datasets"`

	SolarBaseMW       float64            `yaml:"solar_base_mw"`
	SolarTargetMW     float64            `yaml:"solar_target_mw"`
	SolarScale        float64            `yaml:"solar_scale"`
	CoalCapacityMW    float64            `yaml:"coal_capacity_mw"`
	CoalDeregulatedMW float64            `yaml:"coal_deregulated_mw"`
	GasCapacityMW     float64            `yaml:"gas_capacity_mw"`
	MaxExportMW       map[string]float64 `yaml:"max_export_mw"`
	MaxImportMW       map[string]float64 `yaml:"max_import_mw"`
	ExportArbitrage   bool               `yaml:"export_arbitrage"`

	// Optional: load storage parameters from a separate YAML (e.g. storage/*.yaml).
	// Storage keys set here override the file.
	StorageFile   string `yaml:"storage_file"`
	StorageConfig `yaml:",inline"`

	SOCPolicy string `yaml:"soc_policy"`
	Workers   int    `yaml:"workers"`
	FailFast  bool   `yaml:"fail_fast"`

	MeritOrderMode           string    `yaml:"merit_order_mode"`
	MeritOrderSegments       int       `yaml:"merit_order_segments"`
	MeritOrderBreakpoints    []float64 `yaml:"merit_order_breakpoints"`
	MeritOrderMinSamples     int       `yaml:"merit_order_min_samples"`
	MeritOrderClipSigma      float64   `yaml:"merit_order_clip_sigma"`
	MeritOrderNoClip         bool      `yaml:"merit_order_no_clip"`
	MeritOrderIndependent    bool      `yaml:"merit_order_independent"`
	MeritOrderNegativeRegime bool      `yaml:"merit_order_negative_regime"`

	// Sweep runs when SweepMaxMWh > 0.
	SweepStartMWh float64 `yaml:"sweep_start_mwh"`
	SweepStepMWh  float64 `yaml:"sweep_step_mwh"`
	SweepMaxMWh   float64 `yaml:"sweep_max_mwh"`

	Equilibrium              bool               `yaml:"equilibrium"`
	EquilibriumFloors        map[string]float64 `yaml:"equilibrium_floors"`
	EquilibriumHydroBandMW   float64            `yaml:"equilibrium_hydro_band_mw"`
	EquilibriumSolarShare    float64            `yaml:"equilibrium_solar_share"`
	EquilibriumTriggerShare  float64            `yaml:"equilibrium_trigger_share"`
	EquilibriumBlend         float64            `yaml:"equilibrium_blend"`
	EquilibriumPeakCoverage  float64            `yaml:"equilibrium_peak_coverage"`
	EquilibriumScarcityCap   float64            `yaml:"equilibrium_scarcity_cap"`
	EquilibriumScarcitySlope float64            `yaml:"equilibrium_scarcity_slope"`

	// Baseload economics run when BaseloadNameplateMW > 0.
	BaseloadName         string  `yaml:"baseload_name"`
	BaseloadNameplateMW  float64 `yaml:"baseload_nameplate_mw"`
	BaseloadMustRunMW    float64 `yaml:"baseload_must_run_mw"`
	BaseloadFixedCostEUR float64 `yaml:"baseload_fixed_cost_eur"`
	BaseloadVariableCost float64 `yaml:"baseload_variable_cost_per_mwh"`

	PriceThresholds    []float64 `yaml:"price_thresholds"`
	BalanceToleranceMW float64   `yaml:"balance_tolerance_mw"`
}

// StorageConfig is the storage asset as written in YAML. Power follows from
// capacity and duration; efficiency is split evenly between charge and discharge.
type StorageConfig struct {
	StorageName         string  `yaml:"storage_name"`
	CapacityMWh         float64 `yaml:"capacity_mwh"`
	DurationHours       float64 `yaml:"duration_hours"`
	RoundTripEfficiency float64 `yaml:"round_trip_efficiency"`
	InitialSOCMWh       float64 `yaml:"initial_soc_mwh"`
	CycleCostPerMWh     float64 `yaml:"cycle_cost_per_mwh"`
}

const (
	DefaultDurationHours       = 4
	DefaultRoundTripEfficiency = 0.875
	DefaultBalanceToleranceMW  = 50
)

func Load(path string) (*ScenarioConfig, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked loads and merges config, but does not validate it.
// Useful for debugging/printing partial configs.
func LoadUnchecked(path string) (*ScenarioConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c ScenarioConfig
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, model.ConfigErrorf("YAML", "parse %s: %v", path, err)
	}
	if c.StorageFile != "" {
		storagePath := c.StorageFile
		if !filepath.IsAbs(storagePath) {
			// Relative to the config file first, then to cwd.
			cand := filepath.Join(filepath.Dir(path), storagePath)
			if _, err := os.Stat(cand); err == nil {
				storagePath = cand
			}
		}
		loaded, err := LoadStorageFile(storagePath)
		if err != nil {
			return nil, err
		}
		c.StorageConfig = MergeStorage(loaded, c.StorageConfig)
	}
	return &c, nil
}

// ApplyDefaults fills unset storage, policy and equilibrium fields.
func (c *ScenarioConfig) ApplyDefaults() {
	if c.DurationHours == 0 {
		c.DurationHours = DefaultDurationHours
	}
	if c.RoundTripEfficiency == 0 {
		c.RoundTripEfficiency = DefaultRoundTripEfficiency
	}
	if c.SOCPolicy == "" {
		c.SOCPolicy = string(dispatch.SOCCarry)
	}
	if c.BalanceToleranceMW == 0 {
		c.BalanceToleranceMW = DefaultBalanceToleranceMW
	}
	eq := equilibrium.DefaultConfig()
	if c.EquilibriumHydroBandMW == 0 {
		c.EquilibriumHydroBandMW = eq.HydroBandMW
	}
	if c.EquilibriumSolarShare == 0 {
		c.EquilibriumSolarShare = eq.SolarShare
	}
	if c.EquilibriumTriggerShare == 0 {
		c.EquilibriumTriggerShare = eq.TriggerShare
	}
	if c.EquilibriumBlend == 0 {
		c.EquilibriumBlend = eq.Blend
	}
	if c.EquilibriumScarcityCap == 0 {
		c.EquilibriumScarcityCap = eq.ScarcityCap
	}
	if c.EquilibriumScarcitySlope == 0 {
		c.EquilibriumScarcitySlope = eq.ScarcitySlope
	}
	if c.EquilibriumFloors == nil {
		c.EquilibriumFloors = make(map[string]float64, len(eq.Floors))
	}
	for t, f := range eq.Floors {
		if _, ok := c.EquilibriumFloors[string(t)]; !ok {
			c.EquilibriumFloors[string(t)] = f
		}
	}
}

// Validate checks every section by building the value the core consumes.
func (c *ScenarioConfig) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := c.ScenarioParameters().Validate(); err != nil {
		return err
	}
	asset, err := c.Asset()
	if err != nil {
		return fmt.Errorf("storage config invalid: %w", err)
	}
	if err := asset.ValidateSOC(c.InitialSOCMWh); err != nil {
		return err
	}
	if c.CycleCostPerMWh < 0 {
		return model.ConfigErrorf("STORAGE", "cycle_cost_per_mwh must be >= 0")
	}
	if err := dispatch.SOCPolicy(c.SOCPolicy).Validate(); err != nil {
		return err
	}
	if c.Workers < 0 {
		return model.ConfigErrorf("WORKERS", "workers must be >= 0")
	}
	if err := c.MeritOrderPolicy().Validate(); err != nil {
		return err
	}
	if c.SweepEnabled() {
		if err := c.SweepConfig().Validate(); err != nil {
			return err
		}
	}
	if c.Equilibrium {
		eq, err := c.EquilibriumConfig()
		if err != nil {
			return err
		}
		if err := eq.Validate(); err != nil {
			return err
		}
	}
	if plant, ok := c.BaseloadPlant(); ok {
		if err := plant.Validate(); err != nil {
			return err
		}
	}
	if c.BalanceToleranceMW < 0 {
		return model.ConfigErrorf("BALANCE", "balance_tolerance_mw must be >= 0")
	}
	return nil
}

func (c *ScenarioConfig) ScenarioParameters() model.ScenarioParameters {
	return model.ScenarioParameters{
		Name:              c.Name,
		SolarBaseMW:       c.SolarBaseMW,
		SolarTargetMW:     c.SolarTargetMW,
		SolarScale:        c.SolarScale,
		CoalCapacityMW:    c.CoalCapacityMW,
		CoalDeregulatedMW: c.CoalDeregulatedMW,
		GasCapacityMW:     c.GasCapacityMW,
		MaxExportMW:       c.MaxExportMW,
		MaxImportMW:       c.MaxImportMW,
		ExportArbitrage:   c.ExportArbitrage,
	}
}

func (s StorageConfig) Asset() (model.StorageAsset, error) {
	return model.NewStorageAsset(s.CapacityMWh, s.DurationHours, s.RoundTripEfficiency)
}

func (c *ScenarioConfig) YearOptions() dispatch.YearOptions {
	return dispatch.YearOptions{
		InitialSOCMWh: c.InitialSOCMWh,
		Policy:        dispatch.SOCPolicy(c.SOCPolicy),
		Workers:       c.Workers,
		FailFast:      c.FailFast,
	}
}

func (c *ScenarioConfig) MeritOrderPolicy() meritorder.Policy {
	p := meritorder.DefaultPolicy()
	if c.MeritOrderMode != "" {
		p.Mode = meritorder.BreakpointMode(c.MeritOrderMode)
	}
	if c.MeritOrderSegments > 0 {
		p.Segments = c.MeritOrderSegments
	}
	if len(c.MeritOrderBreakpoints) > 0 {
		p.Breakpoints = c.MeritOrderBreakpoints
	}
	if c.MeritOrderMinSamples > 0 {
		p.MinSamples = c.MeritOrderMinSamples
	}
	if c.MeritOrderClipSigma > 0 {
		p.ClipSigma = c.MeritOrderClipSigma
	}
	p.NoClip = c.MeritOrderNoClip
	p.Independent = c.MeritOrderIndependent
	p.AllowNegativeFirstSegment = c.MeritOrderNegativeRegime
	return p
}

func (c *ScenarioConfig) SweepEnabled() bool { return c.SweepMaxMWh > 0 }

func (c *ScenarioConfig) SweepConfig() sweep.Config {
	return sweep.Config{
		StartMWh:            c.SweepStartMWh,
		StepMWh:             c.SweepStepMWh,
		MaxMWh:              c.SweepMaxMWh,
		DurationHours:       c.DurationHours,
		RoundTripEfficiency: c.RoundTripEfficiency,
		CycleCostPerMWh:     c.CycleCostPerMWh,
		Dispatch: dispatch.YearOptions{
			Policy:   dispatch.SOCPolicy(c.SOCPolicy),
			Workers:  c.Workers,
			FailFast: c.FailFast,
		},
	}
}

// EquilibriumConfig converts the flat keys; the supply stack comes from the
// scenario's coal and gas capacities.
func (c *ScenarioConfig) EquilibriumConfig() (equilibrium.Config, error) {
	floors := make(map[equilibrium.Tech]float64, len(c.EquilibriumFloors))
	for name, f := range c.EquilibriumFloors {
		t, err := equilibrium.ParseTech(name)
		if err != nil {
			return equilibrium.Config{}, model.ConfigErrorf("EQUILIBRIUM", "equilibrium_floors: %v", err)
		}
		floors[t] = f
	}
	return equilibrium.Config{
		Floors: floors,
		Stack: model.SupplyStack{
			RegulatedCoalMW: c.CoalCapacityMW - c.CoalDeregulatedMW,
			MarketCoalMW:    c.CoalDeregulatedMW,
			GasMW:           c.GasCapacityMW,
		},
		HydroBandMW:   c.EquilibriumHydroBandMW,
		SolarShare:    c.EquilibriumSolarShare,
		TriggerShare:  c.EquilibriumTriggerShare,
		Blend:         c.EquilibriumBlend,
		PeakCoverage:  c.EquilibriumPeakCoverage,
		ScarcityCap:   c.EquilibriumScarcityCap,
		ScarcitySlope: c.EquilibriumScarcitySlope,
	}, nil
}

// BaseloadPlant returns the configured plant, if any. Unset costs fall back
// to the default plant's.
func (c *ScenarioConfig) BaseloadPlant() (metrics.BaseloadPlant, bool) {
	if c.BaseloadNameplateMW <= 0 {
		return metrics.BaseloadPlant{}, false
	}
	p := metrics.DefaultBaseloadPlant()
	p.NameplateMW = c.BaseloadNameplateMW
	if c.BaseloadName != "" {
		p.Name = c.BaseloadName
	}
	if c.BaseloadMustRunMW != 0 {
		p.OtherMustRunMW = c.BaseloadMustRunMW
	}
	if c.BaseloadFixedCostEUR != 0 {
		p.FixedCostEUR = c.BaseloadFixedCostEUR
	}
	if c.BaseloadVariableCost != 0 {
		p.VariableCostPerMWh = c.BaseloadVariableCost
	}
	return p, true
}

// LoadStorageFile reads a storage YAML holding StorageConfig keys at top level.
func LoadStorageFile(path string) (StorageConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return StorageConfig{}, err
	}
	var s StorageConfig
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return StorageConfig{}, model.ConfigErrorf("YAML", "parse %s: %v", path, err)
	}
	return s, nil
}

// MergeStorage overlays non-zero fields from override onto base.
// This is used when loading a storage file and then applying overrides from the scenario.
func MergeStorage(base, override StorageConfig) StorageConfig {
	out := base
	if override.StorageName != "" {
		out.StorageName = override.StorageName
	}
	if override.CapacityMWh != 0 {
		out.CapacityMWh = override.CapacityMWh
	}
	if override.DurationHours != 0 {
		out.DurationHours = override.DurationHours
	}
	if override.RoundTripEfficiency != 0 {
		out.RoundTripEfficiency = override.RoundTripEfficiency
	}
	if override.InitialSOCMWh != 0 {
		out.InitialSOCMWh = override.InitialSOCMWh
	}
	if override.CycleCostPerMWh != 0 {
		out.CycleCostPerMWh = override.CycleCostPerMWh
	}
	return out
}
