package data

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"bess-impact/internal/model"
)

// Accepted timestamp layouts. All are converted to UTC.
var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04Z07:00", "2006-01-02T15:04:05"}

type hourJSON struct {
	T              string             `json:"t"`
	Demand         float64            `json:"demand"`
	Price          float64            `json:"price"`
	Nuclear        float64            `json:"nuclear"`
	Coal           float64            `json:"coal"`
	Gas            float64            `json:"gas"`
	Hydro          float64            `json:"hydro"`
	Wind           float64            `json:"wind"`
	Solar          float64            `json:"solar"`
	Biomass        float64            `json:"biomass,omitempty"`
	Other          float64            `json:"other,omitempty"`
	Flows          map[string]float64 `json:"flows,omitempty"`
	NeighborPrices map[string]float64 `json:"neighborPrices,omitempty"`
}

type unitsJSON struct {
	Power string `json:"power"`
	Price string `json:"price"`
}

type metaJSON struct {
	MaxExport map[string]float64 `json:"maxExport,omitempty"`
	MaxImport map[string]float64 `json:"maxImport,omitempty"`
}

type datasetJSON struct {
	Zone     string     `json:"zone"`
	Currency string     `json:"currency"`
	Units    *unitsJSON `json:"units,omitempty"`
	Meta     metaJSON   `json:"meta"`
	Hours    []hourJSON `json:"hours"`
}

// LoadHourlyJSON reads one hourly dataset file. Units, when declared, must be
// MW and <currency>/MWh; anything else is a data error.
func LoadHourlyJSON(path string) (*model.Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	var doc datasetJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, model.DataErrorf("PARSE", "decode %s: %v", path, err)
	}
	if doc.Currency == "" {
		doc.Currency = "EUR"
	}
	if u := doc.Units; u != nil {
		if u.Power != "" && !strings.EqualFold(u.Power, "MW") {
			return nil, model.DataErrorf("UNITS", "%s: power unit %q, want MW", path, u.Power)
		}
		if want := doc.Currency + "/MWh"; u.Price != "" && !strings.EqualFold(u.Price, want) {
			return nil, model.DataErrorf("UNITS", "%s: price unit %q, want %s", path, u.Price, want)
		}
	}

	ds := &model.Dataset{
		Zone:     doc.Zone,
		Currency: doc.Currency,
		Meta:     model.Meta{MaxExportMW: doc.Meta.MaxExport, MaxImportMW: doc.Meta.MaxImport},
		Hours:    make([]model.HourRecord, 0, len(doc.Hours)),
	}
	for i, h := range doc.Hours {
		t, err := parseTime(h.T)
		if err != nil {
			return nil, model.DataErrorf("TIMESTAMP", "%s hour %d: %v", path, i, err)
		}
		ds.Hours = append(ds.Hours, model.HourRecord{
			Time:     t,
			DemandMW: h.Demand,
			Generation: model.Generation{
				Nuclear: h.Nuclear,
				Coal:    h.Coal,
				Gas:     h.Gas,
				Hydro:   h.Hydro,
				Wind:    h.Wind,
				Solar:   h.Solar,
				Other:   h.Other + h.Biomass,
			},
			Flows:          h.Flows,
			Price:          h.Price,
			NeighborPrices: h.NeighborPrices,
		})
	}
	return ds, nil
}

// LoadHourlyFiles concatenates yearly files in the given order. Zone and
// currency must agree; contiguity is checked later by Dataset.Validate.
func LoadHourlyFiles(paths ...string) (*model.Dataset, error) {
	if len(paths) == 0 {
		return nil, model.DataErrorf("EMPTY_DATASET", "no dataset files given")
	}
	parts := make([]*model.Dataset, 0, len(paths))
	for _, p := range paths {
		ds, err := LoadHourlyJSON(p)
		if err != nil {
			return nil, err
		}
		parts = append(parts, ds)
	}
	return Concat(parts...)
}

// Concat joins datasets into a new one without modifying the inputs.
func Concat(parts ...*model.Dataset) (*model.Dataset, error) {
	if len(parts) == 0 {
		return nil, model.DataErrorf("EMPTY_DATASET", "no datasets given")
	}
	first := parts[0]
	out := &model.Dataset{Zone: first.Zone, Currency: first.Currency}
	for i, ds := range parts {
		if ds.Zone != out.Zone || ds.Currency != out.Currency {
			return nil, model.DataErrorf("MISMATCH", "dataset %d is %s/%s, expected %s/%s", i, ds.Zone, ds.Currency, out.Zone, out.Currency)
		}
		out.Hours = append(out.Hours, ds.Hours...)
		out.Meta.MaxExportMW = mergeMax(out.Meta.MaxExportMW, ds.Meta.MaxExportMW)
		out.Meta.MaxImportMW = mergeMax(out.Meta.MaxImportMW, ds.Meta.MaxImportMW)
	}
	return out, nil
}

// SaveHourlyJSON writes ds in the format LoadHourlyJSON reads.
func SaveHourlyJSON(path string, ds *model.Dataset) error {
	doc := datasetJSON{
		Zone:     ds.Zone,
		Currency: ds.Currency,
		Units:    &unitsJSON{Power: "MW", Price: ds.Currency + "/MWh"},
		Meta:     metaJSON{MaxExport: ds.Meta.MaxExportMW, MaxImport: ds.Meta.MaxImportMW},
		Hours:    make([]hourJSON, len(ds.Hours)),
	}
	for i, h := range ds.Hours {
		g := h.Generation
		doc.Hours[i] = hourJSON{
			T:              h.Time.UTC().Format(time.RFC3339),
			Demand:         h.DemandMW,
			Price:          h.Price,
			Nuclear:        g.Nuclear,
			Coal:           g.Coal,
			Gas:            g.Gas,
			Hydro:          g.Hydro,
			Wind:           g.Wind,
			Solar:          g.Solar,
			Other:          g.Other,
			Flows:          h.Flows,
			NeighborPrices: h.NeighborPrices,
		}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func mergeMax(a, b map[string]float64) map[string]float64 {
	if a == nil {
		a = map[string]float64{}
	}
	for k, v := range b {
		if v > a[k] {
			a[k] = v
		}
	}
	return a
}
