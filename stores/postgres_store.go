package stores

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewPostgresStore opens a GormRemote backed by PostgreSQL.
func NewPostgresStore(config *StoreConfig) (*GormRemote, error) {
	if config.Type != "postgres" {
		return nil, fmt.Errorf("invalid store type for PostgreSQL store: %s", config.Type)
	}

	db, err := gorm.Open(postgres.Open(config.Connection), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}
	return newGormRemote(db, config)
}

// NewPostgresStoreSimple creates a PostgreSQL store with just a DSN
func NewPostgresStoreSimple(dsn string) (*GormRemote, error) {
	return NewPostgresStore(NewStoreConfig("postgres", dsn))
}
