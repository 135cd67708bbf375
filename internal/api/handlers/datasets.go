package handlers

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"

	"bess-impact/internal/api/middleware"
	"bess-impact/internal/data"
)

// DatasetHandler lists the hourly datasets in the data directory.
type DatasetHandler struct {
	catalog *data.Catalog
}

func NewDatasetHandler(catalog *data.Catalog) *DatasetHandler {
	return &DatasetHandler{catalog: catalog}
}

// ListDatasets handles GET /api/v1/datasets
func (h *DatasetHandler) ListDatasets(c *gin.Context) {
	datasets, err := h.catalog.List()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		middleware.AbortWithError(c, err)
		return
	}
	if datasets == nil {
		datasets = []data.DatasetInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"datasets": datasets, "count": len(datasets)})
}
