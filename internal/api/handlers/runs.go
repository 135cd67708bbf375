package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"bess-impact/internal/api/middleware"
	"bess-impact/internal/api/models"
	"bess-impact/internal/backtest"
	"bess-impact/internal/config"
	"bess-impact/internal/metrics"
	"bess-impact/internal/repository"
	"bess-impact/internal/sweep"
)

const defaultRunLimit = 20

// RunHandler handles run-related requests
type RunHandler struct {
	scenarios *Scenarios
	repo      *repository.Repository
	logger    *slog.Logger
}

// NewRunHandler creates a new run handler
func NewRunHandler(scenarios *Scenarios, repo *repository.Repository, logger *slog.Logger) *RunHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunHandler{scenarios: scenarios, repo: repo, logger: logger}
}

// execute builds the scenario and runs the engine. Each call gets its own
// engine; only the dataset cache is shared.
func (h *RunHandler) execute(overrides map[string]any, onStep func(sweep.Step)) (*config.ScenarioConfig, *backtest.Result, error) {
	c, ds, err := h.scenarios.Build(overrides)
	if err != nil {
		return nil, nil, err
	}
	in, err := backtest.InputsFromConfig(c, ds)
	if err != nil {
		return nil, nil, err
	}
	engine := backtest.New(h.logger)
	engine.OnSweepStep = onStep
	res, err := engine.Run(in)
	if err != nil {
		return nil, nil, err
	}
	return c, res, nil
}

func (h *RunHandler) save(res *backtest.Result, dryRun bool) (bool, error) {
	if dryRun {
		return false, nil
	}
	if err := h.repo.SaveRun(res); err != nil {
		return false, fmt.Errorf("save run: %w", err)
	}
	return true, nil
}

// RunScenario handles POST /api/v1/runs
func (h *RunHandler) RunScenario(c *gin.Context) {
	var req models.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.BadRequest(c, "INVALID_REQUEST", err)
		return
	}

	_, res, err := h.execute(req.Config, nil)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	saved, err := h.save(res, req.Options.DryRun)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	response := models.RunResponse{
		ID:      res.RunID,
		Status:  "completed",
		Saved:   saved,
		Summary: summaryFromResult(res),
		Result:  res,
	}
	if req.Options.IncludeLedger {
		response.Ledger = res.Ledger
	}
	c.JSON(http.StatusOK, response)
}

// ListRuns handles GET /api/v1/runs
func (h *RunHandler) ListRuns(c *gin.Context) {
	var q models.ListRunsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.BadRequest(c, "INVALID_REQUEST", err)
		return
	}
	if q.Limit <= 0 {
		q.Limit = defaultRunLimit
	}
	runs, err := h.repo.ListRuns(q.Limit)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	out := make([]models.RunSummary, len(runs))
	for i, r := range runs {
		out[i] = summaryFromStored(r)
	}
	c.JSON(http.StatusOK, models.ListRunsResponse{Runs: out})
}

// GetRun handles GET /api/v1/runs/:id and returns the stored result as saved.
func (h *RunHandler) GetRun(c *gin.Context) {
	run, err := h.repo.GetRun(c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", run.ResultJSON)
}

// GetLedger handles GET /api/v1/runs/:id/ledger?format=json|csv
func (h *RunHandler) GetLedger(c *gin.Context) {
	var q models.LedgerQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.BadRequest(c, "INVALID_REQUEST", err)
		return
	}
	if q.Format != "" && q.Format != "json" && q.Format != "csv" {
		middleware.BadRequest(c, "INVALID_FORMAT", fmt.Errorf("format must be json or csv, got %q", q.Format))
		return
	}

	id := c.Param("id")
	rows, err := h.repo.GetLedger(id)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	if q.Format == "csv" {
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=ledger-%s.csv", id))
		c.Status(http.StatusOK)
		if err := backtest.WriteLedger(c.Writer, rows); err != nil {
			h.logger.Error("write ledger csv", "run", id, "error", err)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "ledger": rows})
}

// GetSweep handles GET /api/v1/runs/:id/sweep
func (h *RunHandler) GetSweep(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.repo.GetRun(id); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	steps, err := h.repo.SweepSteps(id)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	points := make([]models.SweepPoint, len(steps))
	for i, s := range steps {
		points[i] = models.SweepPoint{
			Index:             s.StepIndex,
			CapacityMWh:       s.CapacityMWh,
			PowerMW:           s.PowerMW,
			Spread:            s.Spread,
			PeakReduction:     s.PeakReduction,
			FloorIncrease:     s.FloorIncrease,
			RESavedMWh:        s.RESavedMWh,
			CyclesPerDay:      s.CyclesPerDay,
			TheoreticalProfit: models.Money(s.TheoreticalProfit),
			RealizedProfit:    models.Money(s.RealizedProfit),
			ExcludedDays:      s.ExcludedDays,
			Saturated:         s.Saturated,
			Error:             s.Error,
		}
	}
	c.JSON(http.StatusOK, models.SweepResponse{ID: id, Steps: points})
}

// DeleteRun handles DELETE /api/v1/runs/:id
func (h *RunHandler) DeleteRun(c *gin.Context) {
	if err := h.repo.DeleteRun(c.Param("id")); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Compare handles POST /api/v1/compare. Variations that fail are reported
// next to the ranking instead of failing the request.
func (h *RunHandler) Compare(c *gin.Context) {
	var req models.CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.BadRequest(c, "INVALID_REQUEST", err)
		return
	}

	summaries := make([]metrics.ScenarioSummary, 0, len(req.Variations))
	var failed []models.VariationError
	for _, variation := range req.Variations {
		merged := mergeConfig(req.BaseConfig, variation.Config)
		merged["name"] = variation.Name

		cfg, res, err := h.execute(merged, nil)
		if err != nil {
			h.logger.Warn("compare variation failed", "variation", variation.Name, "error", err)
			failed = append(failed, models.VariationError{Name: variation.Name, Error: middleware.Detail(err)})
			continue
		}
		summaries = append(summaries, backtest.Summarize(cfg, res))
	}

	c.JSON(http.StatusOK, models.CompareResponse{
		Rankings: metrics.Rank(summaries),
		Failed:   failed,
	})
}

func summaryFromResult(res *backtest.Result) models.RunSummary {
	sum := res.Summary()
	return models.RunSummary{
		ID:                 res.RunID,
		Name:               res.Name,
		Zone:               res.Zone,
		CreatedAt:          res.CreatedAt,
		StorageMWh:         res.Asset.EnergyCapacityMWh,
		SOCPolicy:          string(res.SOCPolicy),
		TheoreticalProfit:  models.Money(res.TheoreticalProfit),
		RealizedProfit:     models.Money(res.RealizedProfit),
		EquilibriumProfit:  models.Money(res.EquilibriumProfit),
		CannibalizationPct: sum.CannibalizationPct(),
		Spread:             sum.Spread,
		ExcludedDays:       len(res.ExcludedDays),
		SweepSteps:         len(res.Sweep),
	}
}

func summaryFromStored(r repository.StoredRun) models.RunSummary {
	sum := metrics.ScenarioSummary{TheoreticalProfit: r.TheoreticalProfit, RealizedProfit: r.RealizedProfit}
	return models.RunSummary{
		ID:                 r.ID,
		Name:               r.Name,
		Zone:               r.Zone,
		CreatedAt:          r.CreatedAt,
		StorageMWh:         r.StorageMWh,
		SOCPolicy:          r.SOCPolicy,
		TheoreticalProfit:  models.Money(r.TheoreticalProfit),
		RealizedProfit:     models.Money(r.RealizedProfit),
		EquilibriumProfit:  models.Money(r.EquilibriumProfit),
		CannibalizationPct: sum.CannibalizationPct(),
		Spread:             r.Spread,
		ExcludedDays:       r.ExcludedDays,
		SweepSteps:         r.SweepSteps,
	}
}
