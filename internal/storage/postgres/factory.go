package postgres

import (
	"fmt"

	"catalog-importer/internal/storage"
)

type Factory struct{}

func (f *Factory) Create(config storage.StorageConfig) (storage.Store, error) {
	pgConfig, ok := config.(*Config)
	if !ok {
		return nil, fmt.Errorf("invalid config type for PostgreSQL storage")
	}

	return NewAdapter(pgConfig)
}

func (f *Factory) GetType() string {
	return StoreType
}

func init() {
	storage.Register(StoreType, &Factory{})
}
