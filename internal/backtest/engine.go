package backtest

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bess-impact/internal/config"
	"bess-impact/internal/dispatch"
	"bess-impact/internal/equilibrium"
	"bess-impact/internal/meritorder"
	"bess-impact/internal/metrics"
	"bess-impact/internal/model"
	"bess-impact/internal/scenario"
	"bess-impact/internal/sweep"
)

// Inputs is everything one impact run needs. Optional stages are nil when off.
type Inputs struct {
	Name        string
	Dataset     *model.Dataset
	Scenario    model.ScenarioParameters
	StorageName string
	Asset       model.StorageAsset
	Dispatch    dispatch.YearOptions
	MeritOrder  meritorder.Policy

	Sweep       *sweep.Config
	Equilibrium *equilibrium.Config
	Baseload    *metrics.BaseloadPlant

	Metrics            metrics.Options
	BalanceToleranceMW float64
}

type Engine struct {
	Optimizer *dispatch.Optimizer
	Logger    *slog.Logger

	// OnSweepStep is called after each sweep step.
	OnSweepStep func(sweep.Step)
	// OnDay is called as each day of the main dispatch finishes.
	OnDay func(dispatch.DayResult)
}

func New(logger *slog.Logger) *Engine {
	return &Engine{Optimizer: dispatch.NewOptimizer(), Logger: logger}
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// Run executes the pipeline: fit the merit order on the historical data,
// derive the scenario, dispatch storage over the year, feed its net output
// back into prices, then run the optional sweep, equilibrium and baseload
// stages and reduce everything into KPIs and an hourly ledger.
func (e *Engine) Run(in Inputs) (*Result, error) {
	log := e.logger()
	if in.Dataset == nil {
		return nil, model.DataErrorf("EMPTY_DATASET", "no dataset")
	}
	tol := in.BalanceToleranceMW
	if tol == 0 {
		tol = config.DefaultBalanceToleranceMW
	}
	if err := in.Dataset.Validate(tol); err != nil {
		return nil, err
	}
	if err := in.Asset.Validate(); err != nil {
		return nil, err
	}
	if err := in.Asset.ValidateSOC(in.Dispatch.InitialSOCMWh); err != nil {
		return nil, err
	}
	if err := in.Dispatch.Policy.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	res := &Result{
		RunID:       uuid.NewString(),
		Name:        in.Name,
		CreatedAt:   started.UTC(),
		Zone:        in.Dataset.Zone,
		Currency:    in.Dataset.Currency,
		StorageName: in.StorageName,
		Asset:       in.Asset,
		SOCPolicy:   in.Dispatch.Policy,
	}
	if res.SOCPolicy == "" {
		res.SOCPolicy = dispatch.SOCCarry
	}
	log = log.With("run", res.RunID, "zone", res.Zone)

	mo, err := meritorder.FitDataset(in.Dataset, in.MeritOrder)
	if err != nil {
		return nil, err
	}
	res.MeritOrder = mo
	log.Info("merit order fitted", "segments", len(mo.Segments), "r2", mo.R2, "clipped", mo.Clipped)

	sc, err := scenario.Apply(in.Dataset, in.Scenario, mo)
	if err != nil {
		return nil, fmt.Errorf("apply scenario: %w", err)
	}
	res.Scenario = summarizeScenario(sc)
	log.Info("scenario applied", "solar_factor", sc.SolarFactor, "clamped_hours", sc.ClampedHours, "curtailed_mwh", sc.CurtailedMWh)

	state := sweep.StateFromDataset(sc.Dataset, sc.ExportPrices)
	res.Times = state.Times
	res.HistoricalPrices = in.Dataset.Prices()
	res.ScenarioPrices = state.Prices
	res.ResidualLoad = state.ResidualLoad

	opts := in.Dispatch
	if opts.Optimizer == nil {
		opts.Optimizer = e.Optimizer
	}
	if opts.OnDay == nil {
		opts.OnDay = e.OnDay
	}
	y, err := dispatch.OptimizeYear(state.Days, state.Prices, state.DischargePrices(), in.Asset, opts)
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}
	adjusted := sweep.Advance(state, mo, y.NetMW())
	res.Dispatch = y
	res.AdjustedPrices = adjusted.Prices
	res.TheoreticalProfit = y.Profit
	res.RealizedProfit = y.ProfitAt(adjusted.Prices, adjusted.DischargePrices(), in.Asset)
	res.ExcludedDays = y.ExcludedDays()
	if y.Excluded > 0 {
		log.Warn("days excluded from dispatch", "count", y.Excluded)
	}
	log.Info("dispatch done", "days", len(y.Days), "theoretical_profit", res.TheoreticalProfit, "realized_profit", res.RealizedProfit)

	if in.Sweep != nil {
		steps, err := sweep.Run(state, mo, *in.Sweep, e.OnSweepStep)
		if err != nil {
			return nil, fmt.Errorf("sweep: %w", err)
		}
		res.Sweep = steps
		res.SweepMinimum, _ = sweep.MinimumSpread(steps)
		res.SweepSaturated, _ = sweep.FirstSaturated(steps)
		log.Info("sweep done", "steps", len(steps), "min_spread_step", res.SweepMinimum, "saturated_step", res.SweepSaturated)
	}

	if in.Equilibrium != nil {
		cfg := *in.Equilibrium
		if cfg.Stack == (model.SupplyStack{}) {
			cfg.Stack = sc.Stack
		}
		eq, err := equilibrium.Adjust(equilibrium.Inputs{
			Baseline:     res.HistoricalPrices,
			Saturated:    adjusted.Prices,
			ResidualLoad: state.ResidualLoad,
			Solar:        sc.Dataset.Solar(),
			Demand:       sc.Dataset.Demand(),
		}, cfg)
		if err != nil {
			return nil, fmt.Errorf("equilibrium: %w", err)
		}
		res.Equilibrium = eq
		res.EquilibriumPrices = eq.Prices
		log.Info("equilibrium adjusted", "repriced_hours", eq.RepricedHours, "solar_hours", eq.SolarHours)
	}

	if err := e.reduce(res, in, state, adjusted, sc); err != nil {
		return nil, err
	}
	res.Ledger = BuildLedger(res, state.DischargePrices(), adjusted.DischargePrices())
	res.Elapsed = time.Since(started)
	log.Info("run finished", "elapsed", res.Elapsed)
	return res, nil
}

func (e *Engine) reduce(res *Result, in Inputs, state, adjusted sweep.MarketState, sc *scenario.Result) error {
	y := res.Dispatch
	disp := func(realizedDischarge []float64) *metrics.Dispatch {
		return &metrics.Dispatch{
			ChargeMW:                   y.ChargeMW,
			DischargeMW:                y.DischargeMW,
			Asset:                      in.Asset,
			TheoreticalPrices:          state.Prices,
			TheoreticalDischargePrices: state.DischargePrices(),
			RealizedDischargePrices:    realizedDischarge,
			ExcludedDays:               res.ExcludedDays,
		}
	}

	var err error
	res.HistoricalKPIs, err = metrics.ReduceAll(metrics.Series{Times: res.Times, Prices: res.HistoricalPrices}, in.Metrics)
	if err != nil {
		return err
	}
	res.KPIs, err = metrics.ReduceAll(metrics.Series{Times: res.Times, Prices: adjusted.Prices, Dispatch: disp(adjusted.DischargePrices())}, in.Metrics)
	if err != nil {
		return err
	}
	res.Impact, err = metrics.CompareAll(metrics.CompareInput{
		Times:        res.Times,
		Base:         state.Prices,
		Sim:          adjusted.Prices,
		ResidualLoad: state.ResidualLoad,
		Dispatch:     disp(adjusted.DischargePrices()),
	}, in.Metrics)
	if err != nil {
		return err
	}

	series := []namedSeries{
		{"scenario", state.Prices},
		{"adjusted", adjusted.Prices},
	}
	if res.Equilibrium != nil {
		eqState := adjusted
		eqState.Prices = res.EquilibriumPrices
		res.EquilibriumKPIs, err = metrics.ReduceAll(metrics.Series{Times: res.Times, Prices: res.EquilibriumPrices, Dispatch: disp(eqState.DischargePrices())}, in.Metrics)
		if err != nil {
			return err
		}
		res.EquilibriumProfit = y.ProfitAt(res.EquilibriumPrices, eqState.DischargePrices(), in.Asset)
		series = append(series, namedSeries{"equilibrium", res.EquilibriumPrices})
	}

	if in.Baseload != nil {
		demand, solar := sc.Dataset.Demand(), sc.Dataset.Solar()
		for _, s := range series {
			b, err := metrics.BaseloadEconomics(metrics.BaseloadInput{Times: res.Times, Demand: demand, Solar: solar, Prices: s.prices}, *in.Baseload)
			if err != nil {
				return err
			}
			res.Baseload = append(res.Baseload, BaseloadReport{Series: s.name, BaseloadResult: b})
		}
	}
	return nil
}

type namedSeries struct {
	name   string
	prices []float64
}

func summarizeScenario(sc *scenario.Result) ScenarioSummary {
	return ScenarioSummary{
		SolarFactor:       sc.SolarFactor,
		Stack:             sc.Stack,
		ClampedHours:      sc.ClampedHours,
		CurtailedMWh:      sc.CurtailedMWh,
		DisplacedMWh:      sc.DisplacedMWh,
		AddedExportMWh:    sc.AddedExportMWh,
		ResidualLoadMinMW: sc.ResidualLoadMinMW,
		ResidualLoadMaxMW: sc.ResidualLoadMaxMW,
		ExportArbitrage:   sc.ExportPrices != nil,
	}
}
