package storage

import (
	"context"
	"fmt"

	"catalog-importer/internal/common/errors"
)

// Open creates a store of the given type through the default registry and
// verifies it is reachable. Any failure is a connection error, which aborts
// a run before a single record is touched.
func Open(ctx context.Context, storeType string, config StorageConfig) (Store, error) {
	if config == nil {
		return nil, errors.ConfigError(fmt.Sprintf("no configuration for store type %s", storeType))
	}
	if config.GetType() != storeType {
		return nil, errors.ConfigError(fmt.Sprintf("config type %s does not match store type %s", config.GetType(), storeType))
	}

	store, err := Create(storeType, config)
	if err != nil {
		if errors.IsType(err, errors.ErrTypeConfig) {
			return nil, err
		}
		return nil, errors.ConnectionError(fmt.Sprintf("failed to open %s store", storeType), err)
	}

	if err := store.Health(ctx); err != nil {
		_ = store.Close()
		return nil, errors.ConnectionError(fmt.Sprintf("%s store health check failed", storeType), err)
	}

	return store, nil
}
