package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bess-impact/internal/api/middleware"
	"bess-impact/internal/api/models"
	"bess-impact/internal/config"
	"bess-impact/internal/data"
	"bess-impact/internal/meritorder"
)

// MeritOrderHandler fits merit orders without running a scenario.
type MeritOrderHandler struct {
	catalog *data.Catalog
}

func NewMeritOrderHandler(catalog *data.Catalog) *MeritOrderHandler {
	return &MeritOrderHandler{catalog: catalog}
}

// Fit handles POST /api/v1/merit-order/fit
func (h *MeritOrderHandler) Fit(c *gin.Context) {
	var req models.FitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.BadRequest(c, "INVALID_REQUEST", err)
		return
	}

	cfg := &config.ScenarioConfig{}
	if err := config.ApplyOverrides(cfg, req.Config); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	cfg.ApplyDefaults()
	policy := cfg.MeritOrderPolicy()
	if err := policy.Validate(); err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	ds, err := h.catalog.LoadAll(req.Datasets)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	if err := ds.Validate(cfg.BalanceToleranceMW); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	m, err := meritorder.FitDataset(ds, policy)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.FitResponse{Zone: ds.Zone, Hours: len(ds.Hours), Model: m})
}
