package main

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"gorm.io/gorm"

	"github.com/JohnPlummer/essay-marker/internal/config"
	"github.com/JohnPlummer/essay-marker/internal/store"
	"github.com/JohnPlummer/essay-marker/marker"
)

// newMarker builds the generator stack and a marker writing to the
// configured output directory.
func newMarker(ctx context.Context, cfg config.Config, fsys afero.Fs) (*marker.Marker, *marker.InstrumentedGenerator, error) {
	mcfg := cfg.MarkerConfig()
	gen, err := marker.NewGenerator(ctx, mcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create generator: %w", err)
	}
	return marker.NewMarker(gen, marker.NewFeedbackStore(fsys, mcfg.OutputDir), mcfg), gen, nil
}

// openRuns opens the run history database.
func openRuns(cfg config.Config) (store.RunRepository, *gorm.DB, error) {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return store.NewRunRepository(db), db, nil
}

func closeDB(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
