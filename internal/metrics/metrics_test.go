package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bess-impact/internal/model"
)

func hourly(start time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * time.Hour)
	}
	return out
}

var jan1 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestWindows(t *testing.T) {
	assert.True(t, FullYear.Contains(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, HighSolar.Contains(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)))
	assert.False(t, HighSolar.Contains(time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, HighWind.Contains(time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)))
	assert.True(t, Shoulder.Contains(time.Date(2025, 10, 31, 23, 0, 0, 0, time.UTC)))

	// every month belongs to exactly one seasonal window
	for m := time.January; m <= time.December; m++ {
		ts := time.Date(2025, m, 10, 0, 0, 0, 0, time.UTC)
		n := 0
		for _, w := range Windows()[1:] {
			if w.Contains(ts) {
				n++
			}
		}
		assert.Equal(t, 1, n, m.String())
	}

	w, err := ParseWindow("high_wind")
	require.NoError(t, err)
	assert.Equal(t, HighWind.Name, w.Name)
	_, err = ParseWindow("monsoon")
	assert.Error(t, err)
}

func TestReducePrices(t *testing.T) {
	times := hourly(jan1, 24*59) // January and February
	prices := make([]float64, len(times))
	for i := range prices {
		prices[i] = float64(i%24) - 4 // -4..19
	}
	kpis, err := ReduceAll(Series{Times: times, Prices: prices}, Options{Thresholds: []float64{0, 10}})
	require.NoError(t, err)
	require.Len(t, kpis, 4)

	full := kpis[0]
	assert.False(t, full.Skipped)
	assert.Equal(t, len(times), full.Hours)
	assert.InDelta(t, 7.5, full.Mean, 1e-9)
	assert.Equal(t, -4.0, full.Min)
	assert.Equal(t, 19.0, full.Max)
	assert.Equal(t, []ThresholdCount{{0, 4 * 59}, {10, 14 * 59}}, full.HoursBelow)
	require.Len(t, full.Monthly, 2)
	assert.Equal(t, "2025-01", full.Monthly[0].Month)
	assert.Equal(t, 31*24, full.Monthly[0].Hours)
	assert.Greater(t, full.ArbitrageIndex, 0.0)
	assert.False(t, full.HasDispatch)

	assert.Equal(t, full.Hours, kpis[2].Hours, "high wind covers Jan-Feb")
	assert.True(t, kpis[1].Skipped, "no summer hours")
	assert.True(t, kpis[3].Skipped)
}

func TestReduceDispatchProfit(t *testing.T) {
	times := hourly(jan1, 24*5)
	theo := make([]float64, len(times))
	real := make([]float64, len(times))
	charge := make([]float64, len(times))
	discharge := make([]float64, len(times))
	for i := range times {
		theo[i], real[i] = 50, 50
		switch i % 24 {
		case 2:
			theo[i], real[i] = 10, 20
			charge[i] = 1
		case 20:
			theo[i], real[i] = 100, 90
			discharge[i] = 1
		}
	}
	d := &Dispatch{
		ChargeMW:          charge,
		DischargeMW:       discharge,
		Asset:             model.StorageAsset{EnergyCapacityMWh: 1, PowerRatingMW: 1, ChargeEfficiency: 1, DischargeEfficiency: 1},
		TheoreticalPrices: theo,
		ExcludedDays:      []time.Time{jan1.AddDate(0, 0, 3)},
	}
	k, err := Reduce(Series{Times: times, Prices: real, Dispatch: d}, FullYear, Options{MinHours: 1})
	require.NoError(t, err)
	assert.True(t, k.HasDispatch)
	assert.InDelta(t, 5*90.0, k.TheoreticalProfit, 1e-9)
	assert.InDelta(t, 5*70.0, k.RealizedProfit, 1e-9)
	assert.InDelta(t, 100.0, k.ProfitGap, 1e-9)
	assert.InDelta(t, 100*100.0/450, k.ProfitGapPct, 1e-9)
	assert.InDelta(t, 1.0, k.CyclesPerDay, 1e-9)
	assert.Equal(t, 1, k.ExcludedDays)

	// excluded days are reported even for a skipped window
	k, err = Reduce(Series{Times: times, Prices: real, Dispatch: d}, FullYear, Options{MinHours: 1000})
	require.NoError(t, err)
	assert.True(t, k.Skipped)
	assert.Equal(t, 1, k.ExcludedDays)
}

func TestReduceLengthMismatch(t *testing.T) {
	_, err := Reduce(Series{Times: hourly(jan1, 3), Prices: []float64{1}}, FullYear, Options{})
	assert.True(t, model.IsClass(err, model.ClassData))
}

func TestArbitrageIndex(t *testing.T) {
	assert.InDelta(t, 75.0, ArbitrageIndex([]float64{10, 50, 5, 40}), 1e-9)
	assert.Zero(t, ArbitrageIndex([]float64{50, 40, 30}))
	assert.Zero(t, ArbitrageIndex(nil))
	// paid to charge, then sells
	assert.InDelta(t, 30.0, ArbitrageIndex([]float64{-10, 20}), 1e-9)
}

func TestCompare(t *testing.T) {
	times := hourly(jan1, 200)
	base := make([]float64, 200)
	sim := make([]float64, 200)
	rl := make([]float64, 200)
	charge := make([]float64, 200)
	for i := range base {
		base[i] = float64(i % 100)
		sim[i] = base[i]
		rl[i] = 1000
		switch {
		case base[i] >= 90:
			sim[i] -= 10
		case base[i] <= 9:
			sim[i] += 5
			rl[i] = -50
			charge[i] = 100
		}
	}
	d := &Dispatch{
		ChargeMW:          charge,
		DischargeMW:       make([]float64, 200),
		Asset:             model.StorageAsset{EnergyCapacityMWh: 400, PowerRatingMW: 100, ChargeEfficiency: 1, DischargeEfficiency: 1},
		TheoreticalPrices: base,
	}
	k, err := Compare(CompareInput{Times: times, Base: base, Sim: sim, ResidualLoad: rl, Dispatch: d}, FullYear, Options{})
	require.NoError(t, err)
	assert.InDelta(t, 94.5, k.PeakBase, 1e-9)
	assert.InDelta(t, 10.0, k.PeakReduction, 1e-9)
	assert.InDelta(t, 4.5, k.TroughBase, 1e-9)
	assert.InDelta(t, 5.0, k.FloorIncrease, 1e-9)
	assert.InDelta(t, -0.5, k.AvgDelta, 1e-9)
	// only the 50 MW surplus per charging hour counts as saved
	assert.InDelta(t, 20*50.0, k.RESavedMWh, 1e-9)
	assert.InDelta(t, 2000.0, k.ChargedMWh, 1e-9)
	assert.InDelta(t, -2000.0, k.NetStorageMWh, 1e-9)
	assert.Less(t, k.RealizedProfit, k.ArbitrageProfit)

	_, err = Compare(CompareInput{Times: times, Base: base, Sim: sim[:10]}, FullYear, Options{})
	assert.True(t, model.IsClass(err, model.ClassData))
}

func TestBaseloadEconomics(t *testing.T) {
	plant := BaseloadPlant{Name: "nuc", NameplateMW: 2000, OtherMustRunMW: 300, FixedCostEUR: 8760 * 1000, VariableCostPerMWh: 5}
	in := BaseloadInput{
		Demand: []float64{3000, 3000, 200},
		Solar:  []float64{0, 2000, 0},
		Prices: []float64{60, 10, -5},
	}
	r, err := BaseloadEconomics(in, plant)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Hours)
	assert.Equal(t, 2, r.CurtailedHours)
	assert.InDelta(t, 1300+2000.0, r.LostMWh, 1e-9)
	assert.InDelta(t, 2700.0, r.OutputMWh, 1e-9)
	assert.InDelta(t, 2700.0/6000, r.CapacityFactor, 1e-9)
	assert.InDelta(t, 2000*60+700*10.0, r.RevenueEUR, 1e-9)
	assert.InDelta(t, r.RevenueEUR/2700, r.CapturePrice, 1e-9)
	cost := 3000.0 + 5*2700
	assert.InDelta(t, cost/2700, r.FullCostPerMWh, 1e-9)
	assert.InDelta(t, r.RevenueEUR-cost, r.ProfitEUR, 1e-9)

	r, err = BaseloadEconomics(BaseloadInput{Demand: []float64{100}, Solar: []float64{0}, Prices: []float64{50}}, plant)
	require.NoError(t, err)
	assert.True(t, r.NoOutput)
	assert.Zero(t, r.FullCostPerMWh)

	_, err = BaseloadEconomics(in, BaseloadPlant{})
	assert.True(t, model.IsClass(err, model.ClassConfig))
	_, err = BaseloadEconomics(BaseloadInput{Prices: []float64{1}}, plant)
	assert.True(t, model.IsClass(err, model.ClassData))
}

func TestRank(t *testing.T) {
	ranked := Rank([]ScenarioSummary{
		{Name: "b", TheoreticalProfit: 100, RealizedProfit: 80, ExcludedDays: 2},
		{Name: "a", TheoreticalProfit: 100, RealizedProfit: 50},
		{Name: "c", TheoreticalProfit: 200, RealizedProfit: 160},
		{Name: "idle"},
	})
	require.Len(t, ranked, 4)
	assert.Equal(t, "a", ranked[0].Name)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.InDelta(t, 50.0, ranked[0].GapPct, 1e-9)
	// b and c tie at 20%; name order breaks it
	assert.Equal(t, "b", ranked[1].Name)
	assert.Equal(t, 2, ranked[1].ExcludedDays)
	assert.Zero(t, ranked[0].ExcludedDays)
	assert.Equal(t, "c", ranked[2].Name)
	assert.InDelta(t, 40.0, ranked[2].Gap, 1e-9)
	assert.Equal(t, "idle", ranked[3].Name)
	assert.Equal(t, 4, ranked[3].Rank)
}
