// Package storagetest holds the behavioural checks every storage backend
// must pass.
package storagetest

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-importer/internal/records"
	"catalog-importer/internal/storage"
)

// Product builds a valid product record for run "run-1"
func Product(sku string, price float64, stock int64) storage.ProductRecord {
	return storage.ProductRecord{
		Product: records.Product{
			SKU:         sku,
			Name:        "Product " + sku,
			Price:       price,
			Stock:       stock,
			Description: "",
		},
		Metadata: storage.EmptyMetadata(),
		RunID:    "run-1",
	}
}

// Failure builds a failure record
func Failure(runID string, line int, stage storage.Stage, reason map[string]any) storage.FailureRecord {
	return storage.FailureRecord{
		RunID:  runID,
		Line:   line,
		SKU:    "SKU-" + string(rune('A'+line)),
		Stage:  stage,
		Raw:    map[string]any{"line": float64(line)},
		Reason: reason,
	}
}

// Run executes the suite against stores produced by newStore. Each subtest
// gets a fresh, empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	ctx := context.Background()

	t.Run("health", func(t *testing.T) {
		store := newStore(t)
		assert.NoError(t, store.Health(ctx))
	})

	t.Run("upsert inserts then updates by sku", func(t *testing.T) {
		store := newStore(t)

		err := store.WithinTx(ctx, func(tx storage.Tx) error {
			return tx.UpsertProduct(ctx, Product("AB-1", 9.5, 3))
		})
		require.NoError(t, err)

		got, err := store.GetProduct(ctx, "AB-1")
		require.NoError(t, err)
		assert.Equal(t, "Product AB-1", got.Name)
		assert.Equal(t, 9.5, got.Price)
		assert.Equal(t, int64(3), got.Stock)
		assert.Empty(t, got.Metadata)
		assert.False(t, got.UpdatedAt.IsZero())

		updated := Product("AB-1", 12, 0)
		updated.Name = "Renamed"
		updated.Metadata = map[string]any{"category": "tools", "weight": 1.5}
		updated.RunID = "run-2"
		err = store.WithinTx(ctx, func(tx storage.Tx) error {
			return tx.UpsertProduct(ctx, updated)
		})
		require.NoError(t, err)

		got, err = store.GetProduct(ctx, "AB-1")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Name)
		assert.Equal(t, 12.0, got.Price)
		assert.Equal(t, int64(0), got.Stock)
		assert.Equal(t, "run-2", got.RunID)
		assert.Equal(t, map[string]any{"category": "tools", "weight": 1.5}, got.Metadata)
	})

	t.Run("missing product", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetProduct(ctx, "NOPE")
		assert.True(t, stderrors.Is(err, storage.ErrNotFound))
	})

	t.Run("failed scope keeps nothing", func(t *testing.T) {
		store := newStore(t)
		boom := stderrors.New("boom")

		err := store.WithinTx(ctx, func(tx storage.Tx) error {
			require.NoError(t, tx.UpsertProduct(ctx, Product("ROLL-1", 1, 1)))
			require.NoError(t, tx.RecordFailure(ctx, Failure("run-1", 1, storage.StageValidation, storage.ValidationReason([]string{"x"}))))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = store.GetProduct(ctx, "ROLL-1")
		assert.True(t, stderrors.Is(err, storage.ErrNotFound))

		failures, err := store.ListFailures(ctx, storage.FailureFilter{RunID: "run-1"})
		require.NoError(t, err)
		assert.Empty(t, failures)
	})

	t.Run("constraint violation is rejected", func(t *testing.T) {
		store := newStore(t)

		err := store.WithinTx(ctx, func(tx storage.Tx) error {
			return tx.UpsertProduct(ctx, Product("NEG-1", 1, -4))
		})
		require.Error(t, err)

		_, err = store.GetProduct(ctx, "NEG-1")
		assert.True(t, stderrors.Is(err, storage.ErrNotFound))

		// The store stays usable after a rejected write.
		err = store.WithinTx(ctx, func(tx storage.Tx) error {
			return tx.RecordFailure(ctx, Failure("run-1", 1, storage.StagePersistence, storage.DBErrorReason("stock")))
		})
		require.NoError(t, err)
	})

	t.Run("failures are listed in insertion order with filters", func(t *testing.T) {
		store := newStore(t)

		inputs := []storage.FailureRecord{
			Failure("run-1", 1, storage.StageValidation, storage.ValidationReason([]string{"sku is required", "name is required"})),
			Failure("run-1", 2, storage.StageEnrichment, storage.APIErrorReason("HTTP 500 Internal Server Error")),
			Failure("run-2", 1, storage.StagePersistence, storage.DBErrorReason("locked")),
			Failure("run-1", 3, storage.StageValidation, storage.ValidationReason([]string{"price is required"})),
		}
		for _, f := range inputs {
			f := f
			require.NoError(t, store.WithinTx(ctx, func(tx storage.Tx) error {
				return tx.RecordFailure(ctx, f)
			}))
		}

		all, err := store.ListFailures(ctx, storage.FailureFilter{RunID: "run-1"})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []int{1, 2, 3}, []int{all[0].Line, all[1].Line, all[2].Line})
		assert.Equal(t, storage.StageValidation, all[0].Stage)
		assert.Equal(t, []any{"sku is required", "name is required"}, all[0].Reason["validation_errors"])
		assert.Equal(t, "HTTP 500 Internal Server Error", all[1].Reason["api_error"])
		assert.Equal(t, map[string]any{"line": float64(1)}, all[0].Raw)
		assert.False(t, all[0].CreatedAt.IsZero())

		validation, err := store.ListFailures(ctx, storage.FailureFilter{RunID: "run-1", Stage: storage.StageValidation})
		require.NoError(t, err)
		assert.Len(t, validation, 2)

		limited, err := store.ListFailures(ctx, storage.FailureFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, limited, 2)

		everything, err := store.ListFailures(ctx, storage.FailureFilter{})
		require.NoError(t, err)
		assert.Len(t, everything, 4)
	})

	t.Run("runs", func(t *testing.T) {
		store := newStore(t)

		_, err := store.LatestRun(ctx)
		assert.True(t, stderrors.Is(err, storage.ErrNotFound))

		base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		first := storage.RunRecord{
			RunID: "run-1", Source: "a.json",
			StartedAt: base, FinishedAt: base.Add(time.Second),
			Total: 3, Succeeded: 1, Invalid: 1, APIFailed: 1,
		}
		second := storage.RunRecord{
			RunID: "run-2", Source: "b.csv",
			StartedAt: base.Add(time.Minute), FinishedAt: base.Add(time.Minute + 500*time.Millisecond),
			Total: 2, Succeeded: 1, PersistFailed: 1, Cancelled: true,
		}
		require.NoError(t, store.SaveRun(ctx, first))
		require.NoError(t, store.SaveRun(ctx, second))

		got, err := store.GetRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, first.Total, got.Total)
		assert.Equal(t, first.Succeeded, got.Succeeded)
		assert.Equal(t, first.Invalid, got.Invalid)
		assert.Equal(t, first.APIFailed, got.APIFailed)
		assert.True(t, first.FinishedAt.Equal(got.FinishedAt))

		latest, err := store.LatestRun(ctx)
		require.NoError(t, err)
		assert.Equal(t, "run-2", latest.RunID)
		assert.True(t, latest.Cancelled)
		assert.Equal(t, 1, latest.PersistFailed)

		_, err = store.GetRun(ctx, "run-9")
		assert.True(t, stderrors.Is(err, storage.ErrNotFound))
	})
}
