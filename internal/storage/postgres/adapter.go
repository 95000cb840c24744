package postgres

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"catalog-importer/internal/storage"
)

type Adapter struct {
	pool   *pgxpool.Pool
	config *Config
}

func NewAdapter(config *Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(config.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = config.MaxConns
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	adapter := &Adapter{
		pool:   pool,
		config: config,
	}

	if err := adapter.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return adapter, nil
}

func (a *Adapter) Close() error {
	if a.pool != nil {
		a.pool.Close()
	}
	return nil
}

func (a *Adapter) Health(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

func (a *Adapter) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS products (
			sku TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			price DOUBLE PRECISION NOT NULL CHECK (price >= 0),
			stock BIGINT NOT NULL CHECK (stock >= 0),
			description TEXT NOT NULL DEFAULT '',
			metadata JSONB NOT NULL DEFAULT '{}',
			run_id TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS import_failures (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL,
			line INTEGER NOT NULL,
			sku TEXT NOT NULL DEFAULT '',
			stage TEXT NOT NULL,
			raw JSONB NOT NULL DEFAULT '{}',
			reason JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_import_failures_run ON import_failures(run_id)`,
		`CREATE TABLE IF NOT EXISTS import_runs (
			run_id TEXT PRIMARY KEY,
			source TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			total INTEGER NOT NULL DEFAULT 0,
			succeeded INTEGER NOT NULL DEFAULT 0,
			invalid INTEGER NOT NULL DEFAULT 0,
			api_failed INTEGER NOT NULL DEFAULT 0,
			persist_failed INTEGER NOT NULL DEFAULT 0,
			cancelled BOOLEAN NOT NULL DEFAULT FALSE
		)`,
	}

	for _, query := range queries {
		if _, err := a.pool.Exec(ctx, query); err != nil {
			return err
		}
	}

	return nil
}

// WithinTx runs fn in a pgx transaction; pgx.BeginFunc rolls back when fn
// returns an error and commits otherwise.
func (a *Adapter) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return pgx.BeginFunc(ctx, a.pool, func(pgTx pgx.Tx) error {
		return fn(&transaction{tx: pgTx})
	})
}

type transaction struct {
	tx pgx.Tx
}

func (t *transaction) UpsertProduct(ctx context.Context, product storage.ProductRecord) error {
	metadata := product.Metadata
	if metadata == nil {
		metadata = storage.EmptyMetadata()
	}

	query := `INSERT INTO products (sku, name, price, stock, description, metadata, run_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (sku) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			stock = EXCLUDED.stock,
			description = EXCLUDED.description,
			metadata = EXCLUDED.metadata,
			run_id = EXCLUDED.run_id,
			updated_at = EXCLUDED.updated_at`

	_, err := t.tx.Exec(ctx, query,
		product.SKU, product.Name, product.Price, product.Stock, product.Description,
		metadata, product.RunID, storage.Stamp(product.UpdatedAt))
	return err
}

func (t *transaction) RecordFailure(ctx context.Context, failure storage.FailureRecord) error {
	raw := failure.Raw
	if raw == nil {
		raw = map[string]any{}
	}

	query := `INSERT INTO import_failures (run_id, line, sku, stage, raw, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := t.tx.Exec(ctx, query,
		failure.RunID, failure.Line, failure.SKU, string(failure.Stage), raw, failure.Reason,
		storage.Stamp(failure.CreatedAt))
	return err
}

func (a *Adapter) GetProduct(ctx context.Context, sku string) (*storage.ProductRecord, error) {
	query := `SELECT sku, name, price, stock, description, metadata, run_id, updated_at
		FROM products WHERE sku = $1`

	var product storage.ProductRecord
	err := a.pool.QueryRow(ctx, query, sku).Scan(
		&product.SKU, &product.Name, &product.Price, &product.Stock, &product.Description,
		&product.Metadata, &product.RunID, &product.UpdatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &product, nil
}

func (a *Adapter) ListFailures(ctx context.Context, filter storage.FailureFilter) ([]storage.FailureRecord, error) {
	query := `SELECT id, run_id, line, sku, stage, raw, reason, created_at
		FROM import_failures WHERE ($1 = '' OR run_id = $1) AND ($2 = '' OR stage = $2)
		ORDER BY id`
	args := []interface{}{filter.RunID, string(filter.Stage)}

	if filter.Limit > 0 {
		query += " LIMIT $3"
		args = append(args, filter.Limit)
	}

	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failures []storage.FailureRecord
	for rows.Next() {
		var (
			f     storage.FailureRecord
			stage string
		)
		if err := rows.Scan(&f.ID, &f.RunID, &f.Line, &f.SKU, &stage, &f.Raw, &f.Reason, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.Stage = storage.Stage(stage)
		failures = append(failures, f)
	}

	return failures, rows.Err()
}

func (a *Adapter) SaveRun(ctx context.Context, run storage.RunRecord) error {
	query := `INSERT INTO import_runs (run_id, source, started_at, finished_at, total, succeeded, invalid, api_failed, persist_failed, cancelled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id) DO UPDATE SET
			source = EXCLUDED.source,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at,
			total = EXCLUDED.total,
			succeeded = EXCLUDED.succeeded,
			invalid = EXCLUDED.invalid,
			api_failed = EXCLUDED.api_failed,
			persist_failed = EXCLUDED.persist_failed,
			cancelled = EXCLUDED.cancelled`

	_, err := a.pool.Exec(ctx, query,
		run.RunID, run.Source, storage.Stamp(run.StartedAt), storage.Stamp(run.FinishedAt),
		run.Total, run.Succeeded, run.Invalid, run.APIFailed, run.PersistFailed, run.Cancelled)
	return err
}

func (a *Adapter) GetRun(ctx context.Context, runID string) (*storage.RunRecord, error) {
	return a.queryRun(ctx, `WHERE run_id = $1`, runID)
}

func (a *Adapter) LatestRun(ctx context.Context) (*storage.RunRecord, error) {
	return a.queryRun(ctx, `ORDER BY finished_at DESC LIMIT 1`)
}

func (a *Adapter) queryRun(ctx context.Context, clause string, args ...interface{}) (*storage.RunRecord, error) {
	query := `SELECT run_id, source, started_at, finished_at, total, succeeded, invalid, api_failed, persist_failed, cancelled
		FROM import_runs ` + clause

	var run storage.RunRecord
	err := a.pool.QueryRow(ctx, query, args...).Scan(
		&run.RunID, &run.Source, &run.StartedAt, &run.FinishedAt,
		&run.Total, &run.Succeeded, &run.Invalid, &run.APIFailed, &run.PersistFailed, &run.Cancelled)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &run, nil
}

// truncate empties every table; used by tests against a shared database
func (a *Adapter) truncate(ctx context.Context) error {
	_, err := a.pool.Exec(ctx, `TRUNCATE products, import_failures, import_runs RESTART IDENTITY`)
	return err
}

var _ storage.Store = (*Adapter)(nil)
