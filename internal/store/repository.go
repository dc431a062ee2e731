package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/JohnPlummer/essay-marker/marker"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

const defaultListLimit = 50

// Open connects to the sqlite database at path and migrates the run tables.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open run database %s: %w", path, err)
	}

	if err := db.AutoMigrate(&RunRecord{}, &ResultRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate run database: %w", err)
	}
	return db, nil
}

// RunRepository keeps the history of marking runs.
type RunRepository interface {
	Save(ctx context.Context, run *marker.Run) error
	List(ctx context.Context, limit int) ([]RunRecord, error)
	Get(ctx context.Context, id string) (*RunRecord, error)
}

type runRepository struct {
	db *gorm.DB
}

// NewRunRepository constructs the repository implementation.
func NewRunRepository(db *gorm.DB) RunRepository {
	return &runRepository{db: db}
}

// Save stores run and its per-essay outcomes, replacing any earlier record
// with the same ID.
func (r *runRepository) Save(ctx context.Context, run *marker.Run) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("cannot save run: %w", marker.ErrEmptyInput)
	}

	record := NewRunRecord(run)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", record.ID).Delete(&ResultRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", record.ID).Delete(&RunRecord{}).Error; err != nil {
			return err
		}
		return tx.Create(&record).Error
	})
}

// List returns the most recent runs first, without their per-essay results.
func (r *runRepository) List(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	var runs []RunRecord
	if err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *runRepository) Get(ctx context.Context, id string) (*RunRecord, error) {
	var run RunRecord
	err := r.db.WithContext(ctx).
		Preload("Results", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}
