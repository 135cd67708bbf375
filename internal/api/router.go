// Package api serves scenario runs over HTTP.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"bess-impact/internal/api/handlers"
	"bess-impact/internal/api/middleware"
	"bess-impact/internal/data"
	"bess-impact/internal/repository"
)

type Options struct {
	Catalog        *data.Catalog
	Repo           *repository.Repository
	StorageDir     string
	Logger         *slog.Logger
	AllowedOrigins []string
}

func NewRouter(o Options) *gin.Engine {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	router := gin.New()

	// Apply middleware
	router.Use(middleware.CORS(o.AllowedOrigins...))
	router.Use(middleware.Logger(o.Logger))
	router.Use(middleware.ErrorHandler())

	// Initialize handlers
	scenarios := &handlers.Scenarios{Catalog: o.Catalog, StorageDir: o.StorageDir}
	runHandler := handlers.NewRunHandler(scenarios, o.Repo, o.Logger)
	storageHandler := handlers.NewStorageHandler(o.StorageDir, o.Logger)
	datasetHandler := handlers.NewDatasetHandler(o.Catalog)
	meritOrderHandler := handlers.NewMeritOrderHandler(o.Catalog)

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API routes
	v1 := router.Group("/api/v1")
	{
		v1.POST("/runs", runHandler.RunScenario)
		v1.GET("/runs", runHandler.ListRuns)
		v1.GET("/runs/:id", runHandler.GetRun)
		v1.GET("/runs/:id/ledger", runHandler.GetLedger)
		v1.GET("/runs/:id/sweep", runHandler.GetSweep)
		v1.DELETE("/runs/:id", runHandler.DeleteRun)
		v1.POST("/compare", runHandler.Compare)
		v1.GET("/stream/runs", runHandler.Stream)

		v1.POST("/merit-order/fit", meritOrderHandler.Fit)

		v1.GET("/storage", storageHandler.ListStorage)
		v1.GET("/policies", handlers.ListPolicies)
		v1.GET("/datasets", datasetHandler.ListDatasets)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "Not found"}})
	})
	return router
}
