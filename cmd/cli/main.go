package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/cheggaaa/pb.v1"

	"bess-impact/internal/backtest"
	"bess-impact/internal/config"
	"bess-impact/internal/data"
	"bess-impact/internal/dispatch"
	"bess-impact/internal/meritorder"
	"bess-impact/internal/metrics"
	"bess-impact/internal/model"
	"bess-impact/internal/repository"
	"bess-impact/internal/sweep"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:], false)
	case "sweep":
		cmdRun(os.Args[2:], true)
	case "fit":
		cmdFit(os.Args[2:])
	case "compare":
		cmdCompare(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("usage:")
	fmt.Println("  bess-impact run --config configs/bg-2030.yaml --data-dir data --out results")
	fmt.Println("  bess-impact sweep --config configs/bg-2030.yaml --set sweep_max_mwh=20000")
	fmt.Println("  bess-impact fit --data data/bg_2024.json --segments 3")
	fmt.Println("  bess-impact compare --config a.yaml,b.yaml")
	fmt.Println("")
	fmt.Println("notes:")
	fmt.Println("  - run writes ledger.csv (action=CHARGING/IDLE/DISCHARGING per hour) and kpis.csv")
	fmt.Println("  - sweep also writes sweep.csv; --set key=value overrides any config key")
	fmt.Println("  - compare ranks scenarios by how much storage cannibalizes its own profit")
}

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

func fail(err error) {
	if class, ok := model.ClassOf(err); ok {
		fmt.Fprintf(os.Stderr, "[%s] %v\n", class, err)
	} else {
		fmt.Fprintf(os.Stderr, "[Error] %v\n", err)
	}
	os.Exit(1)
}

// loadScenario loads a config file, applies --set overrides, then defaults and validation.
func loadScenario(path string, sets []string) *config.ScenarioConfig {
	cfg, err := config.LoadUnchecked(path)
	if err != nil {
		fail(err)
	}
	overrides, err := config.ParseOverrides(sets)
	if err != nil {
		fail(err)
	}
	if err := config.ApplyOverrides(cfg, overrides); err != nil {
		fail(err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		fail(err)
	}
	return cfg
}

// datasetPaths resolves dataset names against dataDir. Entries that are
// already paths to files are used as they are.
func datasetPaths(names []string, dataDir string) []string {
	paths := make([]string, 0, len(names))
	for _, n := range names {
		if info, err := os.Stat(n); err == nil && !info.IsDir() {
			paths = append(paths, n)
			continue
		}
		if !strings.HasSuffix(n, ".json") {
			n += ".json"
		}
		paths = append(paths, filepath.Join(dataDir, n))
	}
	return paths
}

func cmdRun(args []string, sweepOnly bool) {
	name := "run"
	if sweepOnly {
		name = "sweep"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to scenario YAML")
	dataDir := fs.String("data-dir", "data", "Directory holding dataset JSON files")
	outDir := fs.String("out", "results", "Output directory for CSVs")
	dbPath := fs.String("db", "", "Optional: SQLite file to save the run into")
	verbose := fs.Bool("v", false, "Log pipeline stages")
	var sets stringList
	fs.Var(&sets, "set", "Override a config key (key=value), repeatable")
	_ = fs.Parse(args)

	if *cfgPath == "" {
		fmt.Println("--config is required")
		os.Exit(2)
	}
	cfg := loadScenario(*cfgPath, sets)
	if sweepOnly && !cfg.SweepEnabled() {
		fmt.Println("sweep needs sweep_max_mwh > 0 (use --set sweep_max_mwh=...)")
		os.Exit(2)
	}

	ds, err := data.LoadHourlyFiles(datasetPaths(cfg.Datasets, *dataDir)...)
	if err != nil {
		fail(err)
	}
	in, err := backtest.InputsFromConfig(cfg, ds)
	if err != nil {
		fail(err)
	}
	fmt.Printf("[Data] %s: %d hours, %d days\n", ds.Zone, len(ds.Hours), len(ds.Days()))

	logLevel := slog.LevelWarn
	if *verbose {
		logLevel = slog.LevelInfo
	}
	engine := backtest.New(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	dayBar := pb.StartNew(len(ds.Days()))
	dayBar.ShowTimeLeft = false
	dayBar.Prefix("dispatch ")
	engine.OnDay = func(dispatch.DayResult) { dayBar.Increment() }

	var sweepBar *pb.ProgressBar
	if in.Sweep != nil {
		engine.OnSweepStep = func(s sweep.Step) {
			if sweepBar == nil {
				dayBar.Finish()
				sweepBar = pb.StartNew(len(in.Sweep.Capacities()))
				sweepBar.Prefix("sweep ")
			}
			sweepBar.Increment()
		}
	}

	res, err := engine.Run(in)
	if err != nil {
		fail(err)
	}
	if sweepBar != nil {
		sweepBar.FinishPrint(fmt.Sprintf("[Sweep] %d steps", len(res.Sweep)))
	} else {
		dayBar.FinishPrint(fmt.Sprintf("[Dispatch] %d days, %d excluded", len(res.Dispatch.Days), res.Dispatch.Excluded))
	}

	// ensure output dir exists
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fail(err)
	}
	write := func(file string, fn func(string) error) {
		path := filepath.Join(*outDir, file)
		if err := fn(path); err != nil {
			fail(err)
		}
		fmt.Printf("[Output] %s\n", path)
	}
	if !sweepOnly {
		write("ledger.csv", func(p string) error { return backtest.WriteLedgerCSV(p, res.Ledger) })
		write("kpis.csv", func(p string) error { return backtest.WriteKPICSV(p, "adjusted", res.KPIs) })
		write("kpis_historical.csv", func(p string) error { return backtest.WriteKPICSV(p, "historical", res.HistoricalKPIs) })
		if res.EquilibriumKPIs != nil {
			write("kpis_equilibrium.csv", func(p string) error { return backtest.WriteKPICSV(p, "equilibrium", res.EquilibriumKPIs) })
		}
	}
	if res.Sweep != nil {
		write("sweep.csv", func(p string) error { return backtest.WriteSweepCSV(p, res.Sweep) })
	}

	if *dbPath != "" {
		repo, err := repository.New(*dbPath)
		if err != nil {
			fail(err)
		}
		defer repo.Close()
		if err := repo.SaveRun(res); err != nil {
			fail(err)
		}
		fmt.Printf("[Saved] run %s in %s\n", res.RunID, *dbPath)
	}

	printSummary(cfg, res)
	if sweepOnly || res.Sweep != nil {
		printSweep(res)
	}
}

func printSummary(cfg *config.ScenarioConfig, res *backtest.Result) {
	sum := backtest.Summarize(cfg, res)
	fmt.Printf("\n[Run] %s  id=%s  storage=%.0f MWh (%s)  soc=%s\n", res.Name, res.RunID, res.Asset.EnergyCapacityMWh, res.StorageName, res.SOCPolicy)
	fmt.Printf("[MeritOrder] %d segments  R2=%.3f (global %.3f)  clipped=%d\n", len(res.MeritOrder.Segments), res.MeritOrder.R2, res.MeritOrder.GlobalR2, res.MeritOrder.Clipped)
	fmt.Printf("[Profit] theoretical=%.0f  realized=%.0f  gap=%.1f%%", res.TheoreticalProfit, res.RealizedProfit, sum.CannibalizationPct())
	if res.Equilibrium != nil {
		fmt.Printf("  equilibrium=%.0f", res.EquilibriumProfit)
	}
	fmt.Println()
	if n := len(res.ExcludedDays); n > 0 {
		fmt.Printf("[Warning] %d days excluded from dispatch\n", n)
	}

	fmt.Printf("\n%-11s %-6s %-9s %-9s %-9s %-9s %-9s\n", "window", "hours", "mean", "p05", "p95", "spread", "arb.idx")
	for _, k := range res.KPIs {
		if k.Skipped {
			fmt.Printf("%-11s %-6d (skipped)\n", k.Window, k.Hours)
			continue
		}
		fmt.Printf("%-11s %-6d %-9.2f %-9.2f %-9.2f %-9.2f %-9.0f\n", k.Window, k.Hours, k.Mean, k.Spread.P05, k.Spread.P95, k.Spread.Spread, k.ArbitrageIndex)
	}

	for _, b := range res.Baseload {
		fmt.Printf("[Baseload] %-11s cf=%.1f%%  capture=%.2f  cost=%.2f  profit=%.0f\n", b.Series, 100*b.CapacityFactor, b.CapturePrice, b.FullCostPerMWh, b.ProfitEUR)
	}
}

func printSweep(res *backtest.Result) {
	fmt.Printf("\n%-4s %-10s %-9s %-9s %-9s %-12s %-12s %-4s\n", "step", "mwh", "spread", "cycles", "re.saved", "theoretical", "realized", "sat")
	for _, s := range res.Sweep {
		if s.Err != "" {
			fmt.Printf("%-4d %-10.0f failed: %s\n", s.Index, s.CapacityMWh, s.Err)
			continue
		}
		sat := ""
		if s.Saturated {
			sat = "yes"
		}
		fmt.Printf("%-4d %-10.0f %-9.2f %-9.2f %-9.0f %-12.0f %-12.0f %-4s\n", s.Index, s.CapacityMWh, s.Spread.Spread, s.CyclesPerDay, s.RESavedMWh, s.TheoreticalProfit, s.RealizedProfit, sat)
	}
	if res.SweepMinimum >= 0 {
		fmt.Printf("[Sweep] minimum spread at step %d\n", res.SweepMinimum)
	}
	if res.SweepSaturated >= 0 {
		fmt.Printf("[Sweep] saturated from step %d\n", res.SweepSaturated)
	}
}

func cmdFit(args []string) {
	fs := flag.NewFlagSet("fit", flag.ExitOnError)
	dataPaths := fs.String("data", "", "Comma-separated dataset JSON paths, concatenated in order")
	mode := fs.String("mode", "quantile", "Breakpoint mode: quantile, fixed or search")
	segments := fs.Int("segments", 3, "Number of segments (quantile, search)")
	breakpoints := fs.String("breakpoints", "", "Comma-separated residual load breakpoints in MW (fixed)")
	noClip := fs.Bool("no-clip", false, "Keep price outliers")
	_ = fs.Parse(args)

	if *dataPaths == "" {
		fmt.Println("--data is required")
		os.Exit(2)
	}
	ds, err := data.LoadHourlyFiles(splitPaths(*dataPaths)...)
	if err != nil {
		fail(err)
	}
	if err := ds.Validate(config.DefaultBalanceToleranceMW); err != nil {
		fail(err)
	}

	cfg := &config.ScenarioConfig{
		MeritOrderMode:     *mode,
		MeritOrderSegments: *segments,
		MeritOrderNoClip:   *noClip,
	}
	if *breakpoints != "" {
		overrides, err := config.ParseOverrides([]string{"merit_order_breakpoints=[" + *breakpoints + "]"})
		if err != nil {
			fail(err)
		}
		if err := config.ApplyOverrides(cfg, overrides); err != nil {
			fail(err)
		}
	}
	m, err := meritorder.FitDataset(ds, cfg.MeritOrderPolicy())
	if err != nil {
		fail(err)
	}

	fmt.Printf("[Fit] %s: %d samples, %d clipped, R2=%.3f (single line %.3f)\n", ds.Zone, m.Samples, m.Clipped, m.R2, m.GlobalR2)
	fmt.Printf("%-4s %-10s %-10s %-9s %-10s %-6s %-8s\n", "seg", "from", "to", "slope", "intercept", "r2", "samples")
	for i, s := range m.Segments {
		clamped := ""
		if s.SlopeClamped {
			clamped = " (clamped)"
		}
		fmt.Printf("%-4d %-10.0f %-10.0f %-9.4f %-10.2f %-6.3f %-8d%s\n", i, s.From, s.To, s.Slope, s.Intercept, s.R2, s.Samples, clamped)
	}
	for j, jump := range m.Discontinuities {
		if jump != 0 {
			fmt.Printf("[Warning] jump of %.2f at %.0f MW\n", jump, m.Breakpoints[j])
		}
	}
}

func cmdCompare(args []string) {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	cfgPaths := fs.String("config", "", "Comma-separated scenario YAML paths")
	dataDir := fs.String("data-dir", "data", "Directory holding dataset JSON files")
	var sets stringList
	fs.Var(&sets, "set", "Override a config key in every scenario (key=value), repeatable")
	_ = fs.Parse(args)

	paths := splitPaths(*cfgPaths)
	if len(paths) == 0 {
		fmt.Println("--config is required")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	bar := pb.StartNew(len(paths))
	bar.ShowTimeLeft = false
	summaries := make([]metrics.ScenarioSummary, 0, len(paths))
	for _, p := range paths {
		cfg := loadScenario(p, sets)
		if cfg.Name == "" {
			cfg.Name = strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		}
		ds, err := data.LoadHourlyFiles(datasetPaths(cfg.Datasets, *dataDir)...)
		if err != nil {
			fail(err)
		}
		in, err := backtest.InputsFromConfig(cfg, ds)
		if err != nil {
			fail(err)
		}
		// Ranking needs only the main dispatch.
		in.Sweep = nil
		res, err := backtest.New(logger).Run(in)
		if err != nil {
			fail(fmt.Errorf("%s: %w", p, err))
		}
		summaries = append(summaries, backtest.Summarize(cfg, res))
		bar.Increment()
	}
	bar.FinishPrint(fmt.Sprintf("[Compare] %d scenarios", len(summaries)))

	ranked := metrics.Rank(summaries)
	fmt.Printf("%-4s %-20s %-9s %-10s %-12s %-12s %-8s %-8s\n", "rank", "scenario", "solar.mw", "storage", "theoretical", "realized", "gap%", "spread")
	for _, r := range ranked {
		fmt.Printf("%-4d %-20s %-9.0f %-10.0f %-12.0f %-12.0f %-8.1f %-8.2f\n",
			r.Rank, r.Name, r.SolarMW, r.StorageMWh, r.TheoreticalProfit, r.RealizedProfit, r.GapPct, r.Spread)
	}
}

func splitPaths(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
