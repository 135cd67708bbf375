package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"bess-impact/internal/api"
	"bess-impact/internal/data"
	"bess-impact/internal/repository"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Get configuration from environment
	port := getenv("API_PORT", "8080")
	dataDir := getenv("DATA_DIR", "./data")
	storageDir := getenv("STORAGE_DIR", "./configs/storage")
	dbPath := getenv("DB_PATH", "./bess-impact.db")
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		gin.SetMode(mode)
	}
	var origins []string
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		origins = strings.Split(v, ",")
	}

	catalog := data.NewCatalog(dataDir, 30*time.Minute)
	defer catalog.Close()

	repo, err := repository.New(dbPath)
	if err != nil {
		logger.Error("open run store", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	router := api.NewRouter(api.Options{
		Catalog:        catalog,
		Repo:           repo,
		StorageDir:     storageDir,
		Logger:         logger,
		AllowedOrigins: origins,
	})

	// Start server
	addr := fmt.Sprintf(":%s", port)
	logger.Info("starting API server", "addr", addr, "data_dir", dataDir, "storage_dir", storageDir, "db", dbPath)
	if err := router.Run(addr); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
