package stores

import (
	"fmt"
)

// NewRemote creates a remote store based on the configuration. A nil store
// with a nil error means sync is disabled.
func NewRemote(config *StoreConfig) (RemoteStore, error) {
	var (
		store *GormRemote
		err   error
	)
	switch config.Type {
	case "sqlite":
		store, err = NewSQLiteStore(config)
	case "postgres":
		store, err = NewPostgresStore(config)
	case "memory":
		return NewMemoryRemote(), nil
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewCache opens the local cache. An empty path gives an in-memory cache.
func NewCache(path string) (Cache, error) {
	if path == "" {
		return NewMemoryCache(), nil
	}
	cache, err := NewBoltCache(path)
	if err != nil {
		return nil, err
	}
	return cache, nil
}

// NewPostgresStoreDefault creates a PostgreSQL store from discrete settings.
func NewPostgresStoreDefault(host, user, password, dbname string, port int) (*GormRemote, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)
	return NewPostgresStoreSimple(dsn)
}
