package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"catalog-importer/internal/storage"
)

// Adapter keeps products as JSON strings keyed by sku, failures in one list
// in insertion order, and runs in a hash indexed by a sorted set on finish
// time. Each WithinTx scope is applied as a single MULTI/EXEC.
type Adapter struct {
	rdb    *redis.Client
	config *Config
}

func NewAdapter(config *Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid Redis config: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Adapter{
		rdb:    rdb,
		config: config,
	}, nil
}

// Client exposes the connection for the import run lock
func (a *Adapter) Client() *redis.Client {
	return a.rdb
}

// KeyPrefix is the prefix of every key this adapter writes
func (a *Adapter) KeyPrefix() string {
	return a.config.KeyPrefix
}

func (a *Adapter) Close() error {
	return a.rdb.Close()
}

func (a *Adapter) Health(ctx context.Context) error {
	return a.rdb.Ping(ctx).Err()
}

func (a *Adapter) productKey(sku string) string {
	return a.config.KeyPrefix + "product:" + sku
}

func (a *Adapter) failuresKey() string {
	return a.config.KeyPrefix + "failures"
}

func (a *Adapter) runsKey() string {
	return a.config.KeyPrefix + "runs"
}

func (a *Adapter) runsByFinishKey() string {
	return a.config.KeyPrefix + "runs:by_finish"
}

// WithinTx stages the writes fn makes and applies them in one MULTI/EXEC
// only when fn succeeds.
func (a *Adapter) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	staged := &transaction{adapter: a}
	if err := fn(staged); err != nil {
		return err
	}
	if len(staged.ops) == 0 {
		return nil
	}

	_, err := a.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range staged.ops {
			op(ctx, pipe)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to apply transaction: %w", err)
	}
	return nil
}

type transaction struct {
	adapter *Adapter
	ops     []func(ctx context.Context, pipe redis.Pipeliner)
}

func (t *transaction) UpsertProduct(ctx context.Context, product storage.ProductRecord) error {
	if err := storage.CheckProduct(product); err != nil {
		return err
	}
	if product.Metadata == nil {
		product.Metadata = storage.EmptyMetadata()
	}
	product.UpdatedAt = storage.Stamp(product.UpdatedAt)

	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to encode product: %w", err)
	}

	key := t.adapter.productKey(product.SKU)
	t.ops = append(t.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Set(ctx, key, data, 0)
	})
	return nil
}

func (t *transaction) RecordFailure(ctx context.Context, failure storage.FailureRecord) error {
	if failure.Raw == nil {
		failure.Raw = map[string]any{}
	}
	failure.CreatedAt = storage.Stamp(failure.CreatedAt)

	data, err := json.Marshal(failure)
	if err != nil {
		return fmt.Errorf("failed to encode failure: %w", err)
	}

	key := t.adapter.failuresKey()
	t.ops = append(t.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.RPush(ctx, key, data)
	})
	return nil
}

func (a *Adapter) GetProduct(ctx context.Context, sku string) (*storage.ProductRecord, error) {
	data, err := a.rdb.Get(ctx, a.productKey(sku)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var product storage.ProductRecord
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, fmt.Errorf("failed to decode product %s: %w", sku, err)
	}
	return &product, nil
}

func (a *Adapter) ListFailures(ctx context.Context, filter storage.FailureFilter) ([]storage.FailureRecord, error) {
	entries, err := a.rdb.LRange(ctx, a.failuresKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	var failures []storage.FailureRecord
	for i, entry := range entries {
		var f storage.FailureRecord
		if err := json.Unmarshal([]byte(entry), &f); err != nil {
			return nil, fmt.Errorf("failed to decode failure %d: %w", i, err)
		}
		if filter.RunID != "" && f.RunID != filter.RunID {
			continue
		}
		if filter.Stage != "" && f.Stage != filter.Stage {
			continue
		}
		f.ID = int64(i + 1)
		failures = append(failures, f)
		if filter.Limit > 0 && len(failures) == filter.Limit {
			break
		}
	}

	return failures, nil
}

func (a *Adapter) SaveRun(ctx context.Context, run storage.RunRecord) error {
	run.StartedAt = storage.Stamp(run.StartedAt)
	run.FinishedAt = storage.Stamp(run.FinishedAt)

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}

	_, err = a.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, a.runsKey(), run.RunID, data)
		pipe.ZAdd(ctx, a.runsByFinishKey(), &redis.Z{
			Score:  float64(run.FinishedAt.UnixMilli()),
			Member: run.RunID,
		})
		return nil
	})
	return err
}

func (a *Adapter) GetRun(ctx context.Context, runID string) (*storage.RunRecord, error) {
	data, err := a.rdb.HGet(ctx, a.runsKey(), runID).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var run storage.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", runID, err)
	}
	return &run, nil
}

func (a *Adapter) LatestRun(ctx context.Context) (*storage.RunRecord, error) {
	ids, err := a.rdb.ZRevRange(ctx, a.runsByFinishKey(), 0, 0).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, storage.ErrNotFound
	}
	return a.GetRun(ctx, ids[0])
}

var _ storage.Store = (*Adapter)(nil)
