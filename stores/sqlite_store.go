package stores

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewSQLiteStore opens a GormRemote backed by a SQLite file.
func NewSQLiteStore(config *StoreConfig) (*GormRemote, error) {
	if config.Type != "sqlite" {
		return nil, fmt.Errorf("invalid store type for SQLite store: %s", config.Type)
	}

	db, err := gorm.Open(sqlite.Open(config.Connection), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite database: %w", err)
	}
	return newGormRemote(db, config)
}

// NewSQLiteStoreSimple creates a SQLite store with just a file path
func NewSQLiteStoreSimple(dbPath string) (*GormRemote, error) {
	return NewSQLiteStore(NewStoreConfig("sqlite", dbPath))
}
