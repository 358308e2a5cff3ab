package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Wikid82/warden/internal/models"
)

// Open bootstraps a SQLite database using the provided filesystem path and
// migrates the engine's collections.
func Open(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql handle: %w", err)
	}
	// sqlite serialises writers; one connection also keeps ":memory:" databases coherent.
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every table the engine reads or writes.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.AccessAttempt{},
		&models.SecurityEvent{},
		&models.SecurityRule{},
		&models.BlockedIP{},
		&models.User{},
		&models.AlertProvider{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
