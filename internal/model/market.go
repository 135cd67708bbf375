package model

import (
	"math"
	"sort"
	"time"
)

// Technology names a generation source. Values are stable; they key
// configuration maps (cost floors) and CSV columns.
type Technology string

const (
	TechNuclear Technology = "nuclear"
	TechCoal    Technology = "coal"
	TechGas     Technology = "gas"
	TechHydro   Technology = "hydro"
	TechWind    Technology = "wind"
	TechSolar   Technology = "solar"
	TechOther   Technology = "other"
)

// Generation is hourly output by source, in MW.
type Generation struct {
	Nuclear float64 `json:"nuclear"`
	Coal    float64 `json:"coal"`
	Gas     float64 `json:"gas"`
	Hydro   float64 `json:"hydro"`
	Wind    float64 `json:"wind"`
	Solar   float64 `json:"solar"`
	Other   float64 `json:"other"`
}

func (g Generation) Total() float64 {
	return g.Nuclear + g.Coal + g.Gas + g.Hydro + g.Wind + g.Solar + g.Other
}

// Get returns the output for one technology, 0 for unknown names.
func (g Generation) Get(t Technology) float64 {
	switch t {
	case TechNuclear:
		return g.Nuclear
	case TechCoal:
		return g.Coal
	case TechGas:
		return g.Gas
	case TechHydro:
		return g.Hydro
	case TechWind:
		return g.Wind
	case TechSolar:
		return g.Solar
	case TechOther:
		return g.Other
	}
	return 0
}

// HourRecord is one hour of market data.
// Units: MW for demand, generation and flows; EUR/MWh for prices.
// Flows are keyed by neighbor; positive = import into this market.
type HourRecord struct {
	Time           time.Time
	DemandMW       float64
	Generation     Generation
	Flows          map[string]float64
	Price          float64
	NeighborPrices map[string]float64
}

// NetImportsMW sums cross-border flows (imports minus exports).
func (h HourRecord) NetImportsMW() float64 {
	sum := 0.0
	for _, v := range h.Flows {
		sum += v
	}
	return sum
}

// ResidualLoadMW is demand minus solar, wind and must-run nuclear.
func (h HourRecord) ResidualLoadMW() float64 {
	return h.DemandMW - h.Generation.Solar - h.Generation.Wind - h.Generation.Nuclear
}

// BalanceGapMW is generation + net imports - demand. Zero for a balanced hour.
func (h HourRecord) BalanceGapMW() float64 {
	return h.Generation.Total() + h.NetImportsMW() - h.DemandMW
}

func (h HourRecord) clone() HourRecord {
	out := h
	out.Flows = copyMap(h.Flows)
	out.NeighborPrices = copyMap(h.NeighborPrices)
	return out
}

// Meta holds interconnector capacities per neighbor, in MW.
type Meta struct {
	MaxExportMW map[string]float64
	MaxImportMW map[string]float64
}

// Dataset is an ordered, hourly, UTC series for one market zone.
// Treat it as read-only: transformations return a Clone.
type Dataset struct {
	Zone     string
	Currency string
	Meta     Meta
	Hours    []HourRecord
}

// DayRange is a half-open [From, To) index range covering one UTC calendar day.
type DayRange struct {
	Day  time.Time
	From int
	To   int
}

func (d DayRange) Len() int { return d.To - d.From }

// Validate checks the dataset invariants: non-empty, UTC hour-aligned,
// contiguous, finite values and generation + net imports = demand within tolMW.
func (d *Dataset) Validate(tolMW float64) error {
	if d == nil || len(d.Hours) == 0 {
		return DataErrorf("EMPTY_DATASET", "dataset has no hours")
	}
	for i, h := range d.Hours {
		if h.Time.Location() != time.UTC {
			return DataErrorf("TIMEZONE", "hour %d (%s) is not in UTC", i, h.Time.Format(time.RFC3339))
		}
		if !h.Time.Equal(h.Time.Truncate(time.Hour)) {
			return DataErrorf("RESOLUTION", "hour %d (%s) is not hour-aligned", i, h.Time.Format(time.RFC3339))
		}
		if i > 0 {
			prev := d.Hours[i-1].Time
			if step := h.Time.Sub(prev); step != time.Hour {
				return DataErrorf("GAP", "non-contiguous hours between %s and %s (step %s)",
					prev.Format(time.RFC3339), h.Time.Format(time.RFC3339), step)
			}
		}
		if !finite(h.DemandMW, h.Price, h.Generation.Total()) {
			return DataErrorf("NON_FINITE", "hour %s has a non-finite value", h.Time.Format(time.RFC3339))
		}
		if gap := h.BalanceGapMW(); math.Abs(gap) > tolMW {
			return DataErrorf("BALANCE", "hour %s out of balance by %.3f MW (tolerance %.3f)",
				h.Time.Format(time.RFC3339), gap, tolMW)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{
		Zone:     d.Zone,
		Currency: d.Currency,
		Meta: Meta{
			MaxExportMW: copyMap(d.Meta.MaxExportMW),
			MaxImportMW: copyMap(d.Meta.MaxImportMW),
		},
		Hours: make([]HourRecord, len(d.Hours)),
	}
	for i, h := range d.Hours {
		out.Hours[i] = h.clone()
	}
	return out
}

func (d *Dataset) Times() []time.Time {
	out := make([]time.Time, len(d.Hours))
	for i, h := range d.Hours {
		out[i] = h.Time
	}
	return out
}

func (d *Dataset) Prices() []float64 {
	return d.column(func(h HourRecord) float64 { return h.Price })
}

func (d *Dataset) ResidualLoads() []float64 {
	return d.column(HourRecord.ResidualLoadMW)
}

func (d *Dataset) Solar() []float64 {
	return d.column(func(h HourRecord) float64 { return h.Generation.Solar })
}

func (d *Dataset) Demand() []float64 {
	return d.column(func(h HourRecord) float64 { return h.DemandMW })
}

func (d *Dataset) column(f func(HourRecord) float64) []float64 {
	out := make([]float64, len(d.Hours))
	for i, h := range d.Hours {
		out[i] = f(h)
	}
	return out
}

// Neighbors returns every neighbor named in flows or meta, sorted.
func (d *Dataset) Neighbors() []string {
	seen := map[string]bool{}
	for k := range d.Meta.MaxExportMW {
		seen[k] = true
	}
	for k := range d.Meta.MaxImportMW {
		seen[k] = true
	}
	for _, h := range d.Hours {
		for k := range h.Flows {
			seen[k] = true
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Days splits the hours into UTC calendar days, in order.
func (d *Dataset) Days() []DayRange {
	return SplitDays(d.Times())
}

// SplitDays groups chronologically sorted times into UTC calendar days.
func SplitDays(times []time.Time) []DayRange {
	var out []DayRange
	for i, t := range times {
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		if len(out) == 0 || !out[len(out)-1].Day.Equal(day) {
			out = append(out, DayRange{Day: day, From: i, To: i + 1})
			continue
		}
		out[len(out)-1].To = i + 1
	}
	return out
}

func copyMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
