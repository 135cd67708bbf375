package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"bess-impact/internal/backtest"
	"bess-impact/internal/sweep"
)

// StoredRun is one engine run persisted to SQLite. The full result and the
// hourly ledger are kept as blobs for the API to serve back unchanged.
type StoredRun struct {
	ID                string `gorm:"primaryKey"`
	Name              string `gorm:"index"`
	Zone              string
	CreatedAt         time.Time
	StorageName       string
	StorageMWh        float64
	SOCPolicy         string
	TheoreticalProfit float64
	RealizedProfit    float64
	EquilibriumProfit float64
	Spread            float64
	ExcludedDays      int
	SweepSteps        int

	ResultJSON []byte
	LedgerJSON []byte
}

// StoredSweepStep is one sweep step of a run, queryable without the blob.
type StoredSweepStep struct {
	ID                uint   `gorm:"primaryKey"`
	RunID             string `gorm:"index"`
	StepIndex         int
	CapacityMWh       float64
	PowerMW           float64
	Spread            float64
	PeakReduction     float64
	FloorIncrease     float64
	RESavedMWh        float64
	CyclesPerDay      float64
	TheoreticalProfit float64
	RealizedProfit    float64
	ExcludedDays      int
	Saturated         bool
	Error             string
}

func newStoredRun(res *backtest.Result) (StoredRun, error) {
	body, err := json.Marshal(res)
	if err != nil {
		return StoredRun{}, fmt.Errorf("encode result: %w", err)
	}
	ledger, err := json.Marshal(res.Ledger)
	if err != nil {
		return StoredRun{}, fmt.Errorf("encode ledger: %w", err)
	}
	sum := res.Summary()
	return StoredRun{
		ID:                res.RunID,
		Name:              res.Name,
		Zone:              res.Zone,
		CreatedAt:         res.CreatedAt,
		StorageName:       res.StorageName,
		StorageMWh:        res.Asset.EnergyCapacityMWh,
		SOCPolicy:         string(res.SOCPolicy),
		TheoreticalProfit: res.TheoreticalProfit,
		RealizedProfit:    res.RealizedProfit,
		EquilibriumProfit: res.EquilibriumProfit,
		Spread:            sum.Spread,
		ExcludedDays:      len(res.ExcludedDays),
		SweepSteps:        len(res.Sweep),
		ResultJSON:        body,
		LedgerJSON:        ledger,
	}, nil
}

func newStoredSweepStep(runID string, s sweep.Step) StoredSweepStep {
	return StoredSweepStep{
		RunID:             runID,
		StepIndex:         s.Index,
		CapacityMWh:       s.CapacityMWh,
		PowerMW:           s.PowerMW,
		Spread:            s.Spread.Spread,
		PeakReduction:     s.PeakReduction,
		FloorIncrease:     s.FloorIncrease,
		RESavedMWh:        s.RESavedMWh,
		CyclesPerDay:      s.CyclesPerDay,
		TheoreticalProfit: s.TheoreticalProfit,
		RealizedProfit:    s.RealizedProfit,
		ExcludedDays:      s.ExcludedDays,
		Saturated:         s.Saturated,
		Error:             s.Err,
	}
}
