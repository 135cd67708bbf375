package backtest

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"bess-impact/internal/metrics"
	"bess-impact/internal/sweep"
)

func WriteLedgerCSV(path string, ledger []LedgerRow) error {
	return writeFile(path, func(w io.Writer) error { return WriteLedger(w, ledger) })
}

// WriteLedger writes the hourly ledger. Money columns are rounded to cents.
func WriteLedger(out io.Writer, ledger []LedgerRow) error {
	w := csv.NewWriter(out)
	header := []string{
		"index",
		"time_utc",
		"residual_load_mw",
		"historical_price",
		"scenario_price",
		"discharge_price",
		"adjusted_price",
		"equilibrium_price",
		"action",
		"charge_mw",
		"discharge_mw",
		"soc_start_mwh",
		"soc_end_mwh",
		"theoretical_pnl",
		"pnl",
		"cum_pnl",
		"excluded",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range ledger {
		row := []string{
			strconv.Itoa(r.Index),
			fmtTime(r.TimeUTC),
			fmtFloat(r.ResidualLoadMW),
			fmtFloat(r.HistoricalPrice),
			fmtFloat(r.ScenarioPrice),
			fmtFloat(r.DischargePrice),
			fmtFloat(r.AdjustedPrice),
			fmtFloat(r.EquilibriumPrice),
			string(r.Action),
			fmtFloat(r.ChargeMW),
			fmtFloat(r.DischargeMW),
			fmtFloat(r.SOCStartMWh),
			fmtFloat(r.SOCEndMWh),
			fmtMoney(r.TheoreticalPNL),
			fmtMoney(r.PNL),
			fmtMoney(r.CumPNL),
			strconv.FormatBool(r.Excluded),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func WriteSweepCSV(path string, steps []sweep.Step) error {
	return writeFile(path, func(w io.Writer) error { return WriteSweep(w, steps) })
}

func WriteSweep(out io.Writer, steps []sweep.Step) error {
	w := csv.NewWriter(out)
	header := []string{
		"step",
		"capacity_mwh",
		"power_mw",
		"p05",
		"p95",
		"spread",
		"spread_decay_pct",
		"peak_reduction",
		"floor_increase",
		"re_saved_mwh",
		"cycles_per_day",
		"net_export_mwh",
		"theoretical_profit",
		"realized_profit",
		"excluded_days",
		"saturated",
		"error",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, s := range steps {
		row := []string{
			strconv.Itoa(s.Index),
			fmtFloat(s.CapacityMWh),
			fmtFloat(s.PowerMW),
			fmtFloat(s.Spread.P05),
			fmtFloat(s.Spread.P95),
			fmtFloat(s.Spread.Spread),
			fmtFloat(s.SpreadDecayPct),
			fmtFloat(s.PeakReduction),
			fmtFloat(s.FloorIncrease),
			fmtFloat(s.RESavedMWh),
			fmtFloat(s.CyclesPerDay),
			fmtFloat(s.NetExportMWh),
			fmtMoney(s.TheoreticalProfit),
			fmtMoney(s.RealizedProfit),
			strconv.Itoa(s.ExcludedDays),
			strconv.FormatBool(s.Saturated),
			s.Err,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func WriteKPICSV(path string, series string, kpis []metrics.KPI) error {
	return writeFile(path, func(w io.Writer) error { return WriteKPIs(w, series, kpis) })
}

// WriteKPIs writes one row per window. Skipped windows keep their row with
// empty statistics so the excluded-day count is always present.
func WriteKPIs(out io.Writer, series string, kpis []metrics.KPI) error {
	w := csv.NewWriter(out)
	header := []string{
		"series",
		"window",
		"hours",
		"skipped",
		"mean",
		"min",
		"max",
		"p05",
		"p95",
		"spread",
		"arbitrage_index",
		"theoretical_profit",
		"realized_profit",
		"profit_gap",
		"profit_gap_pct",
		"cycles_per_day",
		"excluded_days",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, k := range kpis {
		row := []string{series, k.Window, strconv.Itoa(k.Hours), strconv.FormatBool(k.Skipped)}
		if k.Skipped {
			row = append(row, "", "", "", "", "", "", "", "", "", "", "", "")
		} else {
			row = append(row,
				fmtFloat(k.Mean),
				fmtFloat(k.Min),
				fmtFloat(k.Max),
				fmtFloat(k.Spread.P05),
				fmtFloat(k.Spread.P95),
				fmtFloat(k.Spread.Spread),
				fmtMoney(k.ArbitrageIndex),
				fmtMoney(k.TheoreticalProfit),
				fmtMoney(k.RealizedProfit),
				fmtMoney(k.ProfitGap),
				fmtFloat(k.ProfitGapPct),
				fmtFloat(k.CyclesPerDay),
			)
		}
		row = append(row, strconv.Itoa(k.ExcludedDays))
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}

func fmtMoney(x float64) string {
	return decimal.NewFromFloat(x).StringFixed(2)
}
