// Package storage defines the persistence port for import runs: product
// upserts, the failure side-channel and run summaries. Backends register
// themselves with the default Registry from their init functions.
package storage

import (
	"context"
	stderrors "errors"
)

// ErrNotFound is returned when a requested product or run does not exist
var ErrNotFound = stderrors.New("not found")

// Store is implemented by every backend
type Store interface {
	// WithinTx runs fn in one all-or-nothing scope. If fn returns an error
	// nothing fn wrote is kept.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetProduct(ctx context.Context, sku string) (*ProductRecord, error)
	ListFailures(ctx context.Context, filter FailureFilter) ([]FailureRecord, error)

	SaveRun(ctx context.Context, run RunRecord) error
	GetRun(ctx context.Context, runID string) (*RunRecord, error)
	LatestRun(ctx context.Context) (*RunRecord, error)

	Health(ctx context.Context) error
	Close() error
}

// Tx is the write surface available inside WithinTx
type Tx interface {
	UpsertProduct(ctx context.Context, product ProductRecord) error
	RecordFailure(ctx context.Context, failure FailureRecord) error
}

// FailureFilter narrows ListFailures. Zero values mean no restriction.
type FailureFilter struct {
	RunID string
	Stage Stage
	Limit int
}

// StorageConfig is implemented by each backend's config
type StorageConfig interface {
	Validate() error
	GetType() string
	GetConnectionString() string
}

// StorageFactory creates a connected, migrated Store
type StorageFactory interface {
	Create(config StorageConfig) (Store, error)
	GetType() string
}
