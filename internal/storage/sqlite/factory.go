package sqlite

import (
	"fmt"

	"catalog-importer/internal/storage"
)

type Factory struct{}

func (f *Factory) Create(config storage.StorageConfig) (storage.Store, error) {
	sqliteConfig, ok := config.(*Config)
	if !ok {
		return nil, fmt.Errorf("invalid config type for SQLite storage")
	}

	return NewAdapter(sqliteConfig)
}

func (f *Factory) GetType() string {
	return StoreType
}

func init() {
	storage.Register(StoreType, &Factory{})
}
