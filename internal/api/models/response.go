package models

import (
	"time"

	"github.com/shopspring/decimal"

	"bess-impact/internal/backtest"
	"bess-impact/internal/meritorder"
	"bess-impact/internal/metrics"
	"bess-impact/internal/sweep"
)

// RunResponse represents the response from a run
type RunResponse struct {
	ID      string               `json:"id"`
	Status  string               `json:"status"`
	Saved   bool                 `json:"saved"`
	Summary RunSummary           `json:"summary"`
	Result  *backtest.Result     `json:"result"`
	Ledger  []backtest.LedgerRow `json:"ledger,omitempty"`
}

// RunSummary is the headline of a run. Money is rounded to cents.
type RunSummary struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Zone               string          `json:"zone"`
	CreatedAt          time.Time       `json:"created_at"`
	StorageMWh         float64         `json:"storage_mwh"`
	SOCPolicy          string          `json:"soc_policy"`
	TheoreticalProfit  decimal.Decimal `json:"theoretical_profit"`
	RealizedProfit     decimal.Decimal `json:"realized_profit"`
	EquilibriumProfit  decimal.Decimal `json:"equilibrium_profit"`
	CannibalizationPct float64         `json:"cannibalization_pct"`
	Spread             float64         `json:"spread"`
	ExcludedDays       int             `json:"excluded_days"`
	SweepSteps         int             `json:"sweep_steps"`
}

// ListRunsResponse represents the stored runs, newest first
type ListRunsResponse struct {
	Runs []RunSummary `json:"runs"`
}

// SweepResponse is the stored sweep of one run.
type SweepResponse struct {
	ID    string       `json:"id"`
	Steps []SweepPoint `json:"steps"`
}

type SweepPoint struct {
	Index             int             `json:"index"`
	CapacityMWh       float64         `json:"capacity_mwh"`
	PowerMW           float64         `json:"power_mw"`
	Spread            float64         `json:"spread"`
	PeakReduction     float64         `json:"peak_reduction"`
	FloorIncrease     float64         `json:"floor_increase"`
	RESavedMWh        float64         `json:"re_saved_mwh"`
	CyclesPerDay      float64         `json:"cycles_per_day"`
	TheoreticalProfit decimal.Decimal `json:"theoretical_profit"`
	RealizedProfit    decimal.Decimal `json:"realized_profit"`
	ExcludedDays      int             `json:"excluded_days"`
	Saturated         bool            `json:"saturated"`
	Error             string          `json:"error,omitempty"`
}

// CompareResponse represents the response from a comparison
type CompareResponse struct {
	Rankings []metrics.RankedScenario `json:"rankings"`
	Failed   []VariationError         `json:"failed,omitempty"`
}

// VariationError reports a variation that could not run.
type VariationError struct {
	Name  string      `json:"name"`
	Error ErrorDetail `json:"error"`
}

// FitResponse is a fitted merit order.
type FitResponse struct {
	Zone  string            `json:"zone"`
	Hours int               `json:"hours"`
	Model *meritorder.Model `json:"model"`
}

// StorageInfo represents information about a storage preset
type StorageInfo struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	File  string       `json:"file"`
	Specs StorageSpecs `json:"specs"`
}

// StorageSpecs contains storage specifications
type StorageSpecs struct {
	CapacityMWh         float64 `json:"capacity_mwh"`
	DurationHours       float64 `json:"duration_hours"`
	PowerMW             float64 `json:"power_mw"`
	RoundTripEfficiency float64 `json:"round_trip_efficiency"`
}

// PolicyInfo represents one selectable policy (SOC policy or breakpoint mode)
type PolicyInfo struct {
	Name        string          `json:"name"`
	Kind        string          `json:"kind"` // "soc_policy", "merit_order_mode"
	Description string          `json:"description"`
	Parameters  []ParameterInfo `json:"parameters,omitempty"`
}

// ParameterInfo describes a policy parameter
type ParameterInfo struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"` // "float", "int", "bool", "list"
	Description string      `json:"description"`
	Default     interface{} `json:"default,omitempty"`
}

// StreamEnvelope wraps every websocket message with a type discriminator.
type StreamEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

const (
	StreamSweepStep = "sweep_step"
	StreamComplete  = "run_complete"
	StreamError     = "error"
)

// SweepPointFrom converts a sweep step for the API.
func SweepPointFrom(s sweep.Step) SweepPoint {
	return SweepPoint{
		Index:             s.Index,
		CapacityMWh:       s.CapacityMWh,
		PowerMW:           s.PowerMW,
		Spread:            s.Spread.Spread,
		PeakReduction:     s.PeakReduction,
		FloorIncrease:     s.FloorIncrease,
		RESavedMWh:        s.RESavedMWh,
		CyclesPerDay:      s.CyclesPerDay,
		TheoreticalProfit: Money(s.TheoreticalProfit),
		RealizedProfit:    Money(s.RealizedProfit),
		ExcludedDays:      s.ExcludedDays,
		Saturated:         s.Saturated,
		Error:             s.Err,
	}
}

// Money rounds a currency amount to cents.
func Money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
