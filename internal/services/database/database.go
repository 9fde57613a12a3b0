// Package database opens the gorm connection that backs scheduled posts and billing state.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/postcraft/edge/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type DB struct {
	*gorm.DB
	config     models.DatabaseConfig
	driverName string
}

func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the connection, bounded by ctx
func (db *DB) Ping(ctx context.Context) error {
	if db.DB == nil {
		return fmt.Errorf("database not connected")
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (db *DB) DriverName() string {
	return db.driverName
}

// Migrate creates or updates the tables the edge reads and writes
func (db *DB) Migrate() error {
	err := db.AutoMigrate(
		&models.ScheduledPost{},
		&models.SocialAccount{},
		&models.Subscription{},
		&models.WebhookEvent{},
	)
	if err != nil {
		return fmt.Errorf("auto-migrate %s: %w", db.driverName, err)
	}
	fiberlog.Infof("database schema migrated (%s)", db.driverName)
	return nil
}

func (db *DB) setConnectionPool() {
	if db.DB == nil {
		return
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		return
	}

	if db.config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(db.config.MaxOpenConns)
	}
	if db.config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(db.config.MaxIdleConns)
	}
	if db.config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(db.config.ConnMaxLifetime) * time.Second)
	}
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}
}

// New opens and pings the configured database, migrating it when asked
func New(ctx context.Context, config models.DatabaseConfig) (*DB, error) {
	var (
		db  *DB
		err error
	)
	switch config.Type {
	case models.PostgreSQL:
		db, err = newPostgreSQL(ctx, config)
	case models.MySQL:
		db, err = newMySQL(ctx, config)
	case models.SQLite:
		db, err = newSQLite(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if config.AutoMigrate {
		if err := db.Migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}
