package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"catalog-importer/internal/storage"
)

// timeLayout keeps a fixed width so timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Adapter struct {
	db     *sql.DB
	config *Config
}

func NewAdapter(config *Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SQLite config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway and this keeps
	// BEGIN from racing into SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	adapter := &Adapter{
		db:     db,
		config: config,
	}

	if err := adapter.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return adapter, nil
}

func (a *Adapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *Adapter) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *Adapter) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS products (
			sku TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			price REAL NOT NULL CHECK (price >= 0),
			stock INTEGER NOT NULL CHECK (stock >= 0),
			description TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}',
			run_id TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS import_failures (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			line INTEGER NOT NULL,
			sku TEXT NOT NULL DEFAULT '',
			stage TEXT NOT NULL,
			raw TEXT NOT NULL DEFAULT '{}',
			reason TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_import_failures_run ON import_failures(run_id)`,
		`CREATE TABLE IF NOT EXISTS import_runs (
			run_id TEXT PRIMARY KEY,
			source TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			total INTEGER NOT NULL DEFAULT 0,
			succeeded INTEGER NOT NULL DEFAULT 0,
			invalid INTEGER NOT NULL DEFAULT 0,
			api_failed INTEGER NOT NULL DEFAULT 0,
			persist_failed INTEGER NOT NULL DEFAULT 0,
			cancelled INTEGER NOT NULL DEFAULT 0
		)`,
	}

	for _, query := range queries {
		if _, err := a.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

// WithinTx runs fn inside a database transaction
func (a *Adapter) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	sqlTx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&transaction{tx: sqlTx}); err != nil {
		sqlTx.Rollback()
		return err
	}

	return sqlTx.Commit()
}

type transaction struct {
	tx *sql.Tx
}

func (t *transaction) UpsertProduct(ctx context.Context, product storage.ProductRecord) error {
	metadata, err := storage.EncodeObject(product.Metadata)
	if err != nil {
		return err
	}

	query := `INSERT INTO products (sku, name, price, stock, description, metadata, run_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sku) DO UPDATE SET
			name = excluded.name,
			price = excluded.price,
			stock = excluded.stock,
			description = excluded.description,
			metadata = excluded.metadata,
			run_id = excluded.run_id,
			updated_at = excluded.updated_at`

	_, err = t.tx.ExecContext(ctx, query,
		product.SKU, product.Name, product.Price, product.Stock, product.Description,
		metadata, product.RunID, storage.Stamp(product.UpdatedAt).Format(timeLayout))
	return err
}

func (t *transaction) RecordFailure(ctx context.Context, failure storage.FailureRecord) error {
	raw, err := storage.EncodeObject(failure.Raw)
	if err != nil {
		return err
	}
	reason, err := storage.EncodeObject(failure.Reason)
	if err != nil {
		return err
	}

	query := `INSERT INTO import_failures (run_id, line, sku, stage, raw, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = t.tx.ExecContext(ctx, query,
		failure.RunID, failure.Line, failure.SKU, string(failure.Stage), raw, reason,
		storage.Stamp(failure.CreatedAt).Format(timeLayout))
	return err
}

func (a *Adapter) GetProduct(ctx context.Context, sku string) (*storage.ProductRecord, error) {
	query := `SELECT sku, name, price, stock, description, metadata, run_id, updated_at
		FROM products WHERE sku = ?`

	var (
		product   storage.ProductRecord
		metadata  string
		updatedAt string
	)
	err := a.db.QueryRowContext(ctx, query, sku).Scan(
		&product.SKU, &product.Name, &product.Price, &product.Stock, &product.Description,
		&metadata, &product.RunID, &updatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if product.Metadata, err = storage.DecodeObject(metadata); err != nil {
		return nil, err
	}
	product.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)

	return &product, nil
}

func (a *Adapter) ListFailures(ctx context.Context, filter storage.FailureFilter) ([]storage.FailureRecord, error) {
	query := `SELECT id, run_id, line, sku, stage, raw, reason, created_at
		FROM import_failures WHERE 1=1`
	args := []interface{}{}

	if filter.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, filter.RunID)
	}
	if filter.Stage != "" {
		query += " AND stage = ?"
		args = append(args, string(filter.Stage))
	}
	query += " ORDER BY id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failures []storage.FailureRecord
	for rows.Next() {
		var (
			f         storage.FailureRecord
			stage     string
			raw       string
			reason    string
			createdAt string
		)
		if err := rows.Scan(&f.ID, &f.RunID, &f.Line, &f.SKU, &stage, &raw, &reason, &createdAt); err != nil {
			return nil, err
		}
		f.Stage = storage.Stage(stage)
		if f.Raw, err = storage.DecodeObject(raw); err != nil {
			return nil, err
		}
		if f.Reason, err = storage.DecodeObject(reason); err != nil {
			return nil, err
		}
		f.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		failures = append(failures, f)
	}

	return failures, rows.Err()
}

func (a *Adapter) SaveRun(ctx context.Context, run storage.RunRecord) error {
	query := `INSERT INTO import_runs (run_id, source, started_at, finished_at, total, succeeded, invalid, api_failed, persist_failed, cancelled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			source = excluded.source,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			total = excluded.total,
			succeeded = excluded.succeeded,
			invalid = excluded.invalid,
			api_failed = excluded.api_failed,
			persist_failed = excluded.persist_failed,
			cancelled = excluded.cancelled`

	_, err := a.db.ExecContext(ctx, query,
		run.RunID, run.Source,
		storage.Stamp(run.StartedAt).Format(timeLayout),
		storage.Stamp(run.FinishedAt).Format(timeLayout),
		run.Total, run.Succeeded, run.Invalid, run.APIFailed, run.PersistFailed, run.Cancelled)
	return err
}

func (a *Adapter) GetRun(ctx context.Context, runID string) (*storage.RunRecord, error) {
	return a.queryRun(ctx, `WHERE run_id = ?`, runID)
}

func (a *Adapter) LatestRun(ctx context.Context) (*storage.RunRecord, error) {
	return a.queryRun(ctx, `ORDER BY finished_at DESC LIMIT 1`)
}

func (a *Adapter) queryRun(ctx context.Context, clause string, args ...interface{}) (*storage.RunRecord, error) {
	query := `SELECT run_id, source, started_at, finished_at, total, succeeded, invalid, api_failed, persist_failed, cancelled
		FROM import_runs ` + clause

	var (
		run                 storage.RunRecord
		startedAt, finished string
	)
	err := a.db.QueryRowContext(ctx, query, args...).Scan(
		&run.RunID, &run.Source, &startedAt, &finished,
		&run.Total, &run.Succeeded, &run.Invalid, &run.APIFailed, &run.PersistFailed, &run.Cancelled)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	run.StartedAt, _ = time.Parse(timeLayout, startedAt)
	run.FinishedAt, _ = time.Parse(timeLayout, finished)
	return &run, nil
}

var _ storage.Store = (*Adapter)(nil)
