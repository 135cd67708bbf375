package backtest

import (
	"time"

	"bess-impact/internal/dispatch"
	"bess-impact/internal/equilibrium"
	"bess-impact/internal/meritorder"
	"bess-impact/internal/metrics"
	"bess-impact/internal/model"
	"bess-impact/internal/sweep"
)

// LedgerRow is one hour of the main dispatch.
// This is the primary artifact for "what happened" in a run.
type LedgerRow struct {
	Index   int       `json:"index"`
	TimeUTC time.Time `json:"time"`

	ResidualLoadMW float64 `json:"residualLoadMw"`

	HistoricalPrice float64 `json:"historicalPrice"`
	ScenarioPrice   float64 `json:"scenarioPrice"`
	// DischargePrice is the valuation used by the optimizer (export arbitrage).
	DischargePrice   float64 `json:"dischargePrice"`
	AdjustedPrice    float64 `json:"adjustedPrice"`
	EquilibriumPrice float64 `json:"equilibriumPrice,omitempty"`

	Action      model.Action `json:"action"`
	ChargeMW    float64      `json:"chargeMw"`
	DischargeMW float64      `json:"dischargeMw"`

	SOCStartMWh float64 `json:"socStartMwh"`
	SOCEndMWh   float64 `json:"socEndMwh"`

	// PNL is valued at the feedback-adjusted price; TheoreticalPNL at the
	// price the schedule was optimized against.
	TheoreticalPNL float64 `json:"theoreticalPnl"`
	PNL            float64 `json:"pnl"`
	CumPNL         float64 `json:"cumPnl"`

	Excluded bool `json:"excluded"`
}

type ScenarioSummary struct {
	SolarFactor       float64           `json:"solarFactor"`
	Stack             model.SupplyStack `json:"stack"`
	ClampedHours      int               `json:"clampedHours"`
	CurtailedMWh      float64           `json:"curtailedMwh"`
	DisplacedMWh      float64           `json:"displacedMwh"`
	AddedExportMWh    float64           `json:"addedExportMwh"`
	ResidualLoadMinMW float64           `json:"residualLoadMinMw"`
	ResidualLoadMaxMW float64           `json:"residualLoadMaxMw"`
	ExportArbitrage   bool              `json:"exportArbitrage"`
}

// BaseloadReport is baseload economics against one price series.
type BaseloadReport struct {
	Series string `json:"series"`
	metrics.BaseloadResult
}

type Result struct {
	RunID       string             `json:"runId"`
	Name        string             `json:"name"`
	CreatedAt   time.Time          `json:"createdAt"`
	Elapsed     time.Duration      `json:"elapsed"`
	Zone        string             `json:"zone"`
	Currency    string             `json:"currency"`
	StorageName string             `json:"storageName"`
	Asset       model.StorageAsset `json:"asset"`
	SOCPolicy   dispatch.SOCPolicy `json:"socPolicy"`

	MeritOrder *meritorder.Model `json:"meritOrder"`
	Scenario   ScenarioSummary   `json:"scenario"`

	Times            []time.Time          `json:"-"`
	HistoricalPrices []float64            `json:"-"`
	ScenarioPrices   []float64            `json:"-"`
	AdjustedPrices   []float64            `json:"-"`
	ResidualLoad     []float64            `json:"-"`
	Dispatch         *dispatch.YearResult `json:"-"`

	TheoreticalProfit float64 `json:"theoreticalProfit"`
	RealizedProfit    float64 `json:"realizedProfit"`
	// EquilibriumProfit values the same schedules at equilibrium prices.
	EquilibriumProfit float64     `json:"equilibriumProfit,omitempty"`
	ExcludedDays      []time.Time `json:"excludedDays"`

	HistoricalKPIs []metrics.KPI       `json:"historicalKpis"`
	KPIs           []metrics.KPI       `json:"kpis"`
	Impact         []metrics.ImpactKPI `json:"impact"`

	Equilibrium       *equilibrium.Result `json:"equilibrium,omitempty"`
	EquilibriumPrices []float64           `json:"-"`
	EquilibriumKPIs   []metrics.KPI       `json:"equilibriumKpis,omitempty"`

	Sweep          []sweep.Step `json:"sweep,omitempty"`
	SweepMinimum   int          `json:"sweepMinimum"`
	SweepSaturated int          `json:"sweepSaturated"`

	Baseload []BaseloadReport `json:"baseload,omitempty"`

	Ledger []LedgerRow `json:"-"`
}

// Summary is the ranking headline of the run.
func (r *Result) Summary() metrics.ScenarioSummary {
	s := metrics.ScenarioSummary{
		Name:              r.Name,
		StorageMWh:        r.Asset.EnergyCapacityMWh,
		TheoreticalProfit: r.TheoreticalProfit,
		RealizedProfit:    r.RealizedProfit,
		ExcludedDays:      len(r.ExcludedDays),
	}
	if len(r.KPIs) > 0 {
		s.Spread = r.KPIs[0].Spread.Spread
	}
	return s
}

// BuildLedger lays the main dispatch out hour by hour.
func BuildLedger(r *Result, dischargePrices, realizedDischargePrices []float64) []LedgerRow {
	y := r.Dispatch
	if y == nil {
		return nil
	}
	a := r.Asset
	rows := make([]LedgerRow, len(r.Times))
	cum := 0.0
	for _, day := range y.Days {
		soc := day.Schedule.InitialSOCMWh
		for h := day.From; h < day.To; h++ {
			c, d := y.ChargeMW[h], y.DischargeMW[h]
			q, rq := r.ScenarioPrices[h], r.AdjustedPrices[h]
			if dischargePrices != nil {
				q = dischargePrices[h]
			}
			if realizedDischargePrices != nil {
				rq = realizedDischargePrices[h]
			}
			pnl := rq*d*a.DischargeEfficiency - r.AdjustedPrices[h]*c/a.ChargeEfficiency
			cum += pnl
			row := LedgerRow{
				Index:           h,
				TimeUTC:         r.Times[h],
				ResidualLoadMW:  r.ResidualLoad[h],
				HistoricalPrice: r.HistoricalPrices[h],
				ScenarioPrice:   r.ScenarioPrices[h],
				DischargePrice:  q,
				AdjustedPrice:   r.AdjustedPrices[h],
				Action:          model.ActionFromNetMW(d - c),
				ChargeMW:        c,
				DischargeMW:     d,
				SOCStartMWh:     soc,
				SOCEndMWh:       y.SOCMWh[h],
				TheoreticalPNL:  q*d*a.DischargeEfficiency - r.ScenarioPrices[h]*c/a.ChargeEfficiency,
				PNL:             pnl,
				CumPNL:          cum,
				Excluded:        day.Excluded(),
			}
			if r.EquilibriumPrices != nil {
				row.EquilibriumPrice = r.EquilibriumPrices[h]
			}
			rows[h] = row
			soc = y.SOCMWh[h]
		}
	}
	return rows
}
