package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-importer/internal/storage"
	"catalog-importer/internal/storage/storagetest"
)

func setupTestRedis(t *testing.T) (*Adapter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	adapter, err := NewAdapter(&Config{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })

	return adapter, mr
}

func TestAdapterSuite(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		adapter, _ := setupTestRedis(t)
		return adapter
	})
}

func TestKeysUsePrefix(t *testing.T) {
	adapter, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, adapter.WithinTx(ctx, func(tx storage.Tx) error {
		if err := tx.UpsertProduct(ctx, storagetest.Product("AB-1", 1, 1)); err != nil {
			return err
		}
		return tx.RecordFailure(ctx, storagetest.Failure("run-1", 2, storage.StageEnrichment, storage.APIErrorReason("HTTP 502 Bad Gateway")))
	}))

	assert.True(t, mr.Exists("catalog:product:AB-1"))
	assert.True(t, mr.Exists("catalog:failures"))
	length, err := mr.List("catalog:failures")
	require.NoError(t, err)
	assert.Len(t, length, 1)
}

func TestStagedWritesAreNotVisibleBeforeCommit(t *testing.T) {
	adapter, mr := setupTestRedis(t)
	ctx := context.Background()

	err := adapter.WithinTx(ctx, func(tx storage.Tx) error {
		require.NoError(t, tx.UpsertProduct(ctx, storagetest.Product("LATE-1", 1, 1)))
		assert.False(t, mr.Exists("catalog:product:LATE-1"))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, mr.Exists("catalog:product:LATE-1"))
}

func TestUnreachableServer(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewAdapter(&Config{Address: addr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}

func TestConfigDefaults(t *testing.T) {
	c := &Config{KeyPrefix: "shop"}
	require.NoError(t, c.Validate())
	assert.Equal(t, "localhost:6379", c.Address)
	assert.Equal(t, 10, c.PoolSize)
	assert.Equal(t, "shop:", c.KeyPrefix)
	assert.Equal(t, "redis://localhost:6379/0", c.GetConnectionString())

	assert.Error(t, (&Config{DB: -1}).Validate())
}
