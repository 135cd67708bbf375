package metrics

import "math"

// ArbitrageIndex is the perfect-foresight profit of a canonical storage unit
// over an hourly price series: 1 MW, 1 MWh, lossless, starting empty, and
// choosing {charge, idle, discharge} at full power each hour. It does not
// depend on any configured asset, so it compares price shapes across
// scenarios and windows.
func ArbitrageIndex(prices []float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	negInf := math.Inf(-1)
	// state 0 = empty, 1 = full
	dp := [2]float64{0, negInf}
	for _, p := range prices {
		var next [2]float64
		next[0] = math.Max(dp[0], dp[1]+p) // idle or discharge
		next[1] = math.Max(dp[1], dp[0]-p) // idle or charge
		dp = next
	}
	return math.Max(dp[0], dp[1])
}
