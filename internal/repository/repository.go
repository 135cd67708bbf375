// Package repository stores run results in a local SQLite database.
package repository

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"bess-impact/internal/backtest"
)

var ErrNotFound = errors.New("run not found")

type Repository struct {
	db *gorm.DB
}

func New(path string) (*Repository, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Migrate the schema
	err = db.AutoMigrate(&StoredRun{}, &StoredSweepStep{})
	if err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRun stores the run and its sweep steps in one transaction.
func (r *Repository) SaveRun(res *backtest.Result) error {
	run, err := newStoredRun(res)
	if err != nil {
		return err
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return fmt.Errorf("save run %s: %w", run.ID, err)
		}
		if len(res.Sweep) == 0 {
			return nil
		}
		steps := make([]StoredSweepStep, len(res.Sweep))
		for i, s := range res.Sweep {
			steps[i] = newStoredSweepStep(run.ID, s)
		}
		if err := tx.Create(&steps).Error; err != nil {
			return fmt.Errorf("save sweep steps for %s: %w", run.ID, err)
		}
		return nil
	})
}

func (r *Repository) GetRun(id string) (StoredRun, error) {
	var run StoredRun
	result := r.db.Where("id = ?", id).First(&run)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return StoredRun{}, ErrNotFound
	}
	return run, result.Error
}

// GetLedger decodes the stored hourly ledger of a run.
func (r *Repository) GetLedger(id string) ([]backtest.LedgerRow, error) {
	run, err := r.GetRun(id)
	if err != nil {
		return nil, err
	}
	var rows []backtest.LedgerRow
	if err := json.Unmarshal(run.LedgerJSON, &rows); err != nil {
		return nil, fmt.Errorf("decode ledger of %s: %w", id, err)
	}
	return rows, nil
}

// ListRuns returns the newest runs first, without their blobs.
func (r *Repository) ListRuns(limit int) ([]StoredRun, error) {
	var runs []StoredRun
	result := r.db.Omit("result_json", "ledger_json").Order("created_at desc").Limit(limit).Find(&runs)
	if result.Error != nil {
		return nil, result.Error
	}
	return runs, nil
}

func (r *Repository) SweepSteps(runID string) ([]StoredSweepStep, error) {
	var steps []StoredSweepStep
	result := r.db.Where("run_id = ?", runID).Order("step_index asc").Find(&steps)
	if result.Error != nil {
		return nil, result.Error
	}
	return steps, nil
}

func (r *Repository) DeleteRun(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", id).Delete(&StoredSweepStep{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&StoredRun{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
