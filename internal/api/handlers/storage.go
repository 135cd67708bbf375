package handlers

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"bess-impact/internal/api/middleware"
	"bess-impact/internal/api/models"
	"bess-impact/internal/config"
)

// StorageHandler lists storage presets (storage YAML files in one directory).
type StorageHandler struct {
	storageDir string
	logger     *slog.Logger
}

// NewStorageHandler creates a new storage handler
func NewStorageHandler(dir string, logger *slog.Logger) *StorageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	// Convert to absolute path for reliability
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	logger.Info("storage presets", "dir", dir)
	return &StorageHandler{storageDir: dir, logger: logger}
}

// ListStorage handles GET /api/v1/storage
func (h *StorageHandler) ListStorage(c *gin.Context) {
	presets := []models.StorageInfo{}

	entries, err := os.ReadDir(h.storageDir)
	if errors.Is(err, fs.ErrNotExist) {
		h.logger.Warn("storage directory does not exist", "dir", h.storageDir)
		c.JSON(http.StatusOK, gin.H{"storage": presets})
		return
	}
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(h.storageDir, entry.Name())
		info, err := loadStorageInfo(path, entry.Name())
		if err != nil {
			h.logger.Warn("skipping storage preset", "file", path, "error", err)
			continue
		}
		presets = append(presets, info)
	}

	c.JSON(http.StatusOK, gin.H{"storage": presets})
}

func loadStorageInfo(path, filename string) (models.StorageInfo, error) {
	s, err := config.LoadStorageFile(path)
	if err != nil {
		return models.StorageInfo{}, err
	}
	// "15gwh.yaml" -> "15gwh", the id accepted by storage_file
	id := strings.TrimSuffix(filename, ".yaml")
	name := s.StorageName
	if name == "" {
		name = id
	}
	duration := s.DurationHours
	if duration == 0 {
		duration = config.DefaultDurationHours
	}
	rte := s.RoundTripEfficiency
	if rte == 0 {
		rte = config.DefaultRoundTripEfficiency
	}
	return models.StorageInfo{
		ID:   id,
		Name: name,
		File: path,
		Specs: models.StorageSpecs{
			CapacityMWh:         s.CapacityMWh,
			DurationHours:       duration,
			PowerMW:             s.CapacityMWh / duration,
			RoundTripEfficiency: rte,
		},
	}, nil
}
