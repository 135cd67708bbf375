package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"bess-impact/internal/backtest"
	"bess-impact/internal/config"
	"bess-impact/internal/data"
	"bess-impact/internal/equilibrium"
	"bess-impact/internal/meritorder"
	"bess-impact/internal/model"
	"bess-impact/internal/sweep"
)

// Demo:
// - Generate a synthetic summer market (or load a dataset with --data)
// - Fit its merit order and add solar
// - Dispatch a storage fleet, feed it back into prices and show a few hours
func main() {
	dataPath := flag.String("data", "", "Optional dataset JSON (default: synthetic)")
	days := flag.Int("days", 28, "Synthetic days to generate")
	capacity := flag.Float64("mwh", 3000, "Storage capacity in MWh")
	solarScale := flag.Float64("solar-scale", 1.5, "Solar multiplier")
	n := flag.Int("n", 24, "Number of ledger hours to print")
	saveData := flag.String("save-data", "", "Optional path to write the synthetic dataset")
	outCSV := flag.String("out", "", "Optional path to write ledger CSV (e.g. results/ledger.csv)")
	flag.Parse()

	var ds *model.Dataset
	if *dataPath != "" {
		var err error
		ds, err = data.LoadHourlyJSON(*dataPath)
		if err != nil {
			panic(err)
		}
	} else {
		ds = data.Synthetic(data.SyntheticOptions{Days: *days, Start: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)})
		if *saveData != "" {
			if err := data.SaveHourlyJSON(*saveData, ds); err != nil {
				panic(err)
			}
			fmt.Printf("Wrote dataset: %s\n", *saveData)
		}
	}

	asset, err := model.NewStorageAsset(*capacity, config.DefaultDurationHours, config.DefaultRoundTripEfficiency)
	if err != nil {
		panic(err)
	}
	eq := equilibrium.DefaultConfig()
	in := backtest.Inputs{
		Name:    "demo",
		Dataset: ds,
		Scenario: model.ScenarioParameters{
			SolarScale:        *solarScale,
			CoalCapacityMW:    2000,
			CoalDeregulatedMW: 600,
			GasCapacityMW:     1200,
		},
		StorageName: fmt.Sprintf("%.0f MWh / %dh", *capacity, config.DefaultDurationHours),
		Asset:       asset,
		MeritOrder:  meritorder.DefaultPolicy(),
		Sweep: &sweep.Config{
			StartMWh:            0,
			StepMWh:             *capacity / 2,
			MaxMWh:              2 * *capacity,
			DurationHours:       config.DefaultDurationHours,
			RoundTripEfficiency: config.DefaultRoundTripEfficiency,
		},
		Equilibrium: &eq,
	}

	engine := backtest.New(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	result, err := engine.Run(in)
	if err != nil {
		panic(err)
	}

	mo := result.MeritOrder
	fmt.Printf("Loaded %d hours for %s (%s)\n", len(ds.Hours), ds.Zone, ds.Currency)
	fmt.Printf("Merit order: %d segments, R2=%.3f\n", len(mo.Segments), mo.R2)
	fmt.Printf("Storage=%s  solar x%.2f\n\n", result.StorageName, result.Scenario.SolarFactor)

	for i := 0; i < min(*n, len(result.Ledger)); i++ {
		r := result.Ledger[i]
		fmt.Printf(
			"%s rl=%8.0f  price=%7.2f->%7.2f  action=%-11s  c=%6.0f d=%6.0f  soc=%6.0f->%6.0f  pnl=%9.0f  cum=%10.0f\n",
			r.TimeUTC.Format("2006-01-02 15:04"),
			r.ResidualLoadMW,
			r.ScenarioPrice,
			r.AdjustedPrice,
			string(r.Action),
			r.ChargeMW,
			r.DischargeMW,
			r.SOCStartMWh,
			r.SOCEndMWh,
			r.PNL,
			r.CumPNL,
		)
	}

	fmt.Printf("\nSweep:\n")
	for _, s := range result.Sweep {
		fmt.Printf("  %6.0f MWh  spread=%7.2f  realized=%10.0f  saturated=%v\n", s.CapacityMWh, s.Spread.Spread, s.RealizedProfit, s.Saturated)
	}

	if *outCSV != "" {
		if err := os.MkdirAll(filepath.Dir(*outCSV), 0o755); err != nil {
			panic(err)
		}
		if err := backtest.WriteLedgerCSV(*outCSV, result.Ledger); err != nil {
			panic(err)
		}
		fmt.Printf("\nWrote CSV: %s\n", *outCSV)
	}

	fmt.Printf("\nDone. Theoretical=%.0f  Realized=%.0f  Equilibrium=%.0f %s\n",
		result.TheoreticalProfit, result.RealizedProfit, result.EquilibriumProfit, result.Currency)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
