// Package memory is a process-local store used for dry runs. Nothing it
// holds survives the process.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"catalog-importer/internal/storage"
)

const StoreType = "memory"

type Config struct{}

func (c *Config) Validate() error             { return nil }
func (c *Config) GetType() string             { return StoreType }
func (c *Config) GetConnectionString() string { return "memory://" }

type Factory struct{}

func (f *Factory) Create(config storage.StorageConfig) (storage.Store, error) {
	if _, ok := config.(*Config); !ok {
		return nil, fmt.Errorf("invalid config type for memory storage")
	}
	return New(), nil
}

func (f *Factory) GetType() string {
	return StoreType
}

func init() {
	storage.Register(StoreType, &Factory{})
}

type Store struct {
	mu       sync.RWMutex
	products map[string]storage.ProductRecord
	failures []storage.FailureRecord
	runs     map[string]storage.RunRecord
	commits  int
}

func New() *Store {
	return &Store{
		products: make(map[string]storage.ProductRecord),
		runs:     make(map[string]storage.RunRecord),
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	staged := &transaction{}
	if err := fn(staged); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range staged.products {
		s.products[p.SKU] = p
	}
	for _, f := range staged.failures {
		f.ID = int64(len(s.failures) + 1)
		s.failures = append(s.failures, f)
	}
	s.commits++
	return nil
}

type transaction struct {
	products []storage.ProductRecord
	failures []storage.FailureRecord
}

func (t *transaction) UpsertProduct(_ context.Context, product storage.ProductRecord) error {
	if err := storage.CheckProduct(product); err != nil {
		return err
	}
	metadata, err := clone(product.Metadata)
	if err != nil {
		return err
	}
	product.Metadata = metadata
	product.UpdatedAt = storage.Stamp(product.UpdatedAt)
	t.products = append(t.products, product)
	return nil
}

func (t *transaction) RecordFailure(_ context.Context, failure storage.FailureRecord) error {
	raw, err := clone(failure.Raw)
	if err != nil {
		return err
	}
	reason, err := clone(failure.Reason)
	if err != nil {
		return err
	}
	failure.Raw, failure.Reason = raw, reason
	failure.CreatedAt = storage.Stamp(failure.CreatedAt)
	t.failures = append(t.failures, failure)
	return nil
}

// clone deep-copies a JSON object through its encoding so stored values
// have the same shapes a durable backend would return.
func clone(v map[string]any) (map[string]any, error) {
	data, err := storage.EncodeObject(v)
	if err != nil {
		return nil, err
	}
	return storage.DecodeObject(data)
}

func (s *Store) GetProduct(_ context.Context, sku string) (*storage.ProductRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[sku]
	if !ok {
		return nil, storage.ErrNotFound
	}
	metadata, err := clone(p.Metadata)
	if err != nil {
		return nil, err
	}
	p.Metadata = metadata
	return &p, nil
}

func (s *Store) ListFailures(_ context.Context, filter storage.FailureFilter) ([]storage.FailureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.FailureRecord
	for _, f := range s.failures {
		if filter.RunID != "" && f.RunID != filter.RunID {
			continue
		}
		if filter.Stage != "" && f.Stage != filter.Stage {
			continue
		}
		out = append(out, f)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) SaveRun(_ context.Context, run storage.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run.StartedAt = storage.Stamp(run.StartedAt)
	run.FinishedAt = storage.Stamp(run.FinishedAt)
	s.runs[run.RunID] = run
	return nil
}

func (s *Store) GetRun(_ context.Context, runID string) (*storage.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &run, nil
}

func (s *Store) LatestRun(_ context.Context) (*storage.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.runs) == 0 {
		return nil, storage.ErrNotFound
	}

	runs := make([]storage.RunRecord, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].FinishedAt.After(runs[j].FinishedAt)
	})
	return &runs[0], nil
}

// Stats reports what the store holds, for the dry-run summary
func (s *Store) Stats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"type":     StoreType,
		"products": len(s.products),
		"failures": len(s.failures),
		"runs":     len(s.runs),
		"commits":  s.commits,
	}
}

func (s *Store) Health(context.Context) error { return nil }
func (s *Store) Close() error                 { return nil }

var _ storage.Store = (*Store)(nil)

// MarshalJSON dumps the stored products, used by the dry-run --dump flag
func (s *Store) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	skus := make([]string, 0, len(s.products))
	for sku := range s.products {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	products := make([]storage.ProductRecord, 0, len(skus))
	for _, sku := range skus {
		products = append(products, s.products[sku])
	}
	return json.Marshal(map[string]interface{}{
		"products": products,
		"failures": s.failures,
	})
}
