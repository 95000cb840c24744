package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-importer/internal/storage"
	"catalog-importer/internal/storage/storagetest"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	adapter, err := NewAdapter(&Config{DatabasePath: filepath.Join(t.TempDir(), "catalog.db")})
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })
	return adapter
}

func TestAdapterSuite(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return newTestAdapter(t)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")

	first, err := NewAdapter(&Config{DatabasePath: path})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, first.WithinTx(ctx, func(tx storage.Tx) error {
		return tx.UpsertProduct(ctx, storagetest.Product("KEEP-1", 1, 1))
	}))
	require.NoError(t, first.Close())

	second, err := NewAdapter(&Config{DatabasePath: path})
	require.NoError(t, err)
	defer second.Close()

	got, err := second.GetProduct(ctx, "KEEP-1")
	require.NoError(t, err)
	assert.Equal(t, "Product KEEP-1", got.Name)
}

func TestConfig(t *testing.T) {
	c := &Config{}
	assert.Error(t, c.Validate())

	c = &Config{DatabasePath: "x.db"}
	require.NoError(t, c.Validate())
	assert.Equal(t, "sqlite", c.GetType())
	assert.Equal(t, "file:x.db?_busy_timeout=5000&_journal_mode=WAL", c.GetConnectionString())
}

func TestRegisteredWithDefaultRegistry(t *testing.T) {
	assert.True(t, storage.DefaultRegistry.IsRegistered(StoreType))

	store, err := storage.Open(context.Background(), StoreType, &Config{DatabasePath: filepath.Join(t.TempDir(), "r.db")})
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}
