package database

import (
	"context"
	"fmt"

	"github.com/postcraft/edge/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newSQLite(ctx context.Context, config models.DatabaseConfig) (*DB, error) {
	if config.FilePath == "" {
		return nil, fmt.Errorf("file_path is required for SQLite")
	}

	// every connection to :memory: is a separate database
	if config.FilePath == ":memory:" {
		config.MaxOpenConns = 1
	}

	gormDB, err := gorm.Open(sqlite.Open(config.FilePath), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	db := &DB{
		DB:         gormDB,
		config:     config,
		driverName: "sqlite3",
	}

	db.setConnectionPool()

	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping SQLite: %w", err)
	}

	return db, nil
}
