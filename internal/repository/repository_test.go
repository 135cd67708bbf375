package repository

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bess-impact/internal/backtest"
	"bess-impact/internal/model"
	"bess-impact/internal/sweep"
)

func newRepo(t *testing.T) *Repository {
	t.Helper()
	r, err := New(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func fakeResult(name string, created time.Time) *backtest.Result {
	return &backtest.Result{
		RunID:             uuid.NewString(),
		Name:              name,
		Zone:              "SYN",
		CreatedAt:         created,
		Asset:             model.StorageAsset{EnergyCapacityMWh: 1000, PowerRatingMW: 250, ChargeEfficiency: 0.9, DischargeEfficiency: 0.9},
		TheoreticalProfit: 5000,
		RealizedProfit:    4200,
		ExcludedDays:      []time.Time{created},
		Sweep: []sweep.Step{
			{Index: 1, CapacityMWh: 2000, RealizedProfit: 3000},
			{Index: 0, CapacityMWh: 1000, RealizedProfit: 4000, Saturated: true},
		},
		Ledger: []backtest.LedgerRow{
			{Index: 0, TimeUTC: created, Action: model.ActionCharging, ChargeMW: 250, PNL: -1250, CumPNL: -1250},
			{Index: 1, TimeUTC: created.Add(time.Hour), Action: model.ActionDischarging, DischargeMW: 250, PNL: 2000, CumPNL: 750},
		},
	}
}

func TestSaveAndGetRun(t *testing.T) {
	r := newRepo(t)
	res := fakeResult("a", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, r.SaveRun(res))

	got, err := r.GetRun(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)
	assert.Equal(t, 1000.0, got.StorageMWh)
	assert.Equal(t, 800.0, got.TheoreticalProfit-got.RealizedProfit)
	assert.Equal(t, 1, got.ExcludedDays)
	assert.Equal(t, 2, got.SweepSteps)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(got.ResultJSON, &decoded))
	assert.Equal(t, res.RunID, decoded["runId"])

	ledger, err := r.GetLedger(res.RunID)
	require.NoError(t, err)
	require.Len(t, ledger, 2)
	assert.Equal(t, model.ActionDischarging, ledger[1].Action)
	assert.Equal(t, 750.0, ledger[1].CumPNL)
	assert.True(t, ledger[0].TimeUTC.Equal(res.Ledger[0].TimeUTC))

	steps, err := r.SweepSteps(res.RunID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, 0, steps[0].StepIndex)
	assert.True(t, steps[0].Saturated)
	assert.Equal(t, 2000.0, steps[1].CapacityMWh)
}

func TestGetRunNotFound(t *testing.T) {
	r := newRepo(t)
	_, err := r.GetRun("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.GetLedger("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.DeleteRun("missing"), ErrNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	r := newRepo(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"old", "mid", "new"} {
		require.NoError(t, r.SaveRun(fakeResult(name, base.Add(time.Duration(i)*time.Hour))))
	}
	runs, err := r.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].Name)
	assert.Equal(t, "mid", runs[1].Name)
	assert.Empty(t, runs[0].ResultJSON)
}

func TestDeleteRun(t *testing.T) {
	r := newRepo(t)
	res := fakeResult("gone", time.Now().UTC())
	require.NoError(t, r.SaveRun(res))
	require.NoError(t, r.DeleteRun(res.RunID))

	_, err := r.GetRun(res.RunID)
	assert.ErrorIs(t, err, ErrNotFound)
	steps, err := r.SweepSteps(res.RunID)
	require.NoError(t, err)
	assert.Empty(t, steps)
}
