package database

import (
	"fmt"
	"os"

	"bodega-go/internal/bodega"
	"bodega-go/internal/config"
)

// NewDatabaseFromConfig opens the inventory database described by cfg.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, clock bodega.Clock) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		return NewSQLiteDatabase(cfg.Path(), clock)
	case "memory":
		return NewSQLiteDatabase(":memory:", clock)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
