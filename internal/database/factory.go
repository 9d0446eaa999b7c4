package database

import (
	"fmt"
	"os"
	"path/filepath"

	"mindcare-go/internal/config"
)

// NewDatabaseFromConfig creates a SQLiteDatabase based on the database config type.
// The sqlite type stores one file per device under DataDir.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, deviceID string) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if deviceID == "" {
			return nil, fmt.Errorf("device id required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, deviceID+".db")), nil
	case "memory":
		return NewSQLiteDatabase(":memory:"), nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
