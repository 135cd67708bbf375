package models

// RunRequest is the body of POST /api/v1/runs. Config holds scenario keys
// exactly as in the YAML file (solar_target_mw, capacity_mwh, ...).
type RunRequest struct {
	Config  map[string]any `json:"config" binding:"required"`
	Options RunOptions     `json:"options,omitempty"`
}

// RunOptions contains optional run parameters
type RunOptions struct {
	IncludeLedger bool `json:"include_ledger,omitempty"`
	// DryRun skips saving the run.
	DryRun bool `json:"dry_run,omitempty"`
}

// CompareRequest runs every variation on top of the base config and ranks
// them by cannibalization.
type CompareRequest struct {
	BaseConfig map[string]any `json:"base_config" binding:"required"`
	Variations []Variation    `json:"variations" binding:"required,min=1"`
}

// Variation defines a variation to test
type Variation struct {
	Name   string         `json:"name" binding:"required"`
	Config map[string]any `json:"config"`
}

// FitRequest fits the merit order on the named datasets. Config may carry
// merit_order_* keys.
type FitRequest struct {
	Datasets []string       `json:"datasets" binding:"required,min=1"`
	Config   map[string]any `json:"config,omitempty"`
}

// ListRunsQuery is the query of GET /api/v1/runs.
type ListRunsQuery struct {
	Limit int `form:"limit,omitempty"` // default: 20
}

// LedgerQuery is the query of GET /api/v1/runs/:id/ledger.
type LedgerQuery struct {
	Format string `form:"format,omitempty"` // "json" (default) or "csv"
}
