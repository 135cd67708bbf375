package metrics

import "sort"

// ScenarioSummary is the headline of one scenario run.
type ScenarioSummary struct {
	Name              string  `json:"name"`
	SolarMW           float64 `json:"solarMw"`
	StorageMWh        float64 `json:"storageMwh"`
	TheoreticalProfit float64 `json:"theoreticalProfit"`
	RealizedProfit    float64 `json:"realizedProfit"`
	Spread            float64 `json:"spread"`
	// ExcludedDays qualifies both profits: days without a dispatch add nothing.
	ExcludedDays int `json:"excludedDays"`
}

// CannibalizationGap is the profit storage loses to its own price impact.
func (s ScenarioSummary) CannibalizationGap() float64 {
	return s.TheoreticalProfit - s.RealizedProfit
}

// CannibalizationPct is the gap as a share of theoretical profit, in percent.
func (s ScenarioSummary) CannibalizationPct() float64 {
	if s.TheoreticalProfit == 0 {
		return 0
	}
	return 100 * s.CannibalizationGap() / s.TheoreticalProfit
}

type RankedScenario struct {
	ScenarioSummary
	Rank   int     `json:"rank"`
	Gap    float64 `json:"gap"`
	GapPct float64 `json:"gapPct"`
}

// Rank orders scenarios by cannibalization percentage, worst first. Ties keep
// name order so output is stable.
func Rank(scenarios []ScenarioSummary) []RankedScenario {
	out := make([]RankedScenario, 0, len(scenarios))
	for _, s := range scenarios {
		out = append(out, RankedScenario{ScenarioSummary: s, Gap: s.CannibalizationGap(), GapPct: s.CannibalizationPct()})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].GapPct != out[j].GapPct {
			return out[i].GapPct > out[j].GapPct
		}
		return out[i].Name < out[j].Name
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
