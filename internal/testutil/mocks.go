package testutil

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"catalog-importer/internal/enrichers"
	"catalog-importer/internal/records"
	"catalog-importer/internal/storage"
)

// MockStore implements storage.Store for testing. Writes made inside
// WithinTx are staged and only become visible when the scope succeeds.
type MockStore struct {
	mu       sync.RWMutex
	products map[string]storage.ProductRecord
	failures []storage.FailureRecord
	runs     []storage.RunRecord

	upsertCalls  int
	failureCalls int
	txCalls      int

	// Control error injection
	ErrorOnMethod map[string]error
	// ErrorOnSKU fails UpsertProduct for specific skus
	ErrorOnSKU map[string]error
}

// NewMockStore creates a new mock store instance
func NewMockStore() *MockStore {
	return &MockStore{
		products:      make(map[string]storage.ProductRecord),
		ErrorOnMethod: make(map[string]error),
		ErrorOnSKU:    make(map[string]error),
	}
}

func (m *MockStore) errorFor(method string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ErrorOnMethod[method]
}

// FailOn makes method return err from now on
func (m *MockStore) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ErrorOnMethod[method] = err
}

// FailSKU makes UpsertProduct fail for sku
func (m *MockStore) FailSKU(sku string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ErrorOnSKU[sku] = err
}

func (m *MockStore) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	m.mu.Lock()
	m.txCalls++
	m.mu.Unlock()

	if err := m.errorFor("WithinTx"); err != nil {
		return err
	}

	tx := &mockTx{store: m}
	if err := fn(tx); err != nil {
		return err
	}
	if err := m.errorFor("Commit"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range tx.products {
		m.products[p.SKU] = p
	}
	m.failures = append(m.failures, tx.failures...)
	return nil
}

type mockTx struct {
	store    *MockStore
	products []storage.ProductRecord
	failures []storage.FailureRecord
}

func (t *mockTx) UpsertProduct(ctx context.Context, product storage.ProductRecord) error {
	t.store.mu.Lock()
	t.store.upsertCalls++
	skuErr := t.store.ErrorOnSKU[product.SKU]
	t.store.mu.Unlock()

	if err := t.store.errorFor("UpsertProduct"); err != nil {
		return err
	}
	if skuErr != nil {
		return skuErr
	}
	t.products = append(t.products, product)
	return nil
}

func (t *mockTx) RecordFailure(ctx context.Context, failure storage.FailureRecord) error {
	t.store.mu.Lock()
	t.store.failureCalls++
	t.store.mu.Unlock()

	if err := t.store.errorFor("RecordFailure"); err != nil {
		return err
	}
	t.failures = append(t.failures, failure)
	return nil
}

func (m *MockStore) GetProduct(ctx context.Context, sku string) (*storage.ProductRecord, error) {
	if err := m.errorFor("GetProduct"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[sku]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &p, nil
}

func (m *MockStore) ListFailures(ctx context.Context, filter storage.FailureFilter) ([]storage.FailureRecord, error) {
	if err := m.errorFor("ListFailures"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []storage.FailureRecord
	for _, f := range m.failures {
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

func (m *MockStore) SaveRun(ctx context.Context, run storage.RunRecord) error {
	if err := m.errorFor("SaveRun"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *MockStore) GetRun(ctx context.Context, runID string) (*storage.RunRecord, error) {
	if err := m.errorFor("GetRun"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.runs {
		if m.runs[i].RunID == runID {
			run := m.runs[i]
			return &run, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *MockStore) LatestRun(ctx context.Context) (*storage.RunRecord, error) {
	if err := m.errorFor("LatestRun"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.runs) == 0 {
		return nil, storage.ErrNotFound
	}
	run := m.runs[len(m.runs)-1]
	return &run, nil
}

func (m *MockStore) Health(ctx context.Context) error {
	return m.errorFor("Health")
}

func (m *MockStore) Close() error {
	return m.errorFor("Close")
}

// UpsertCalls counts UpsertProduct calls, committed or not
func (m *MockStore) UpsertCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.upsertCalls
}

// FailureCalls counts RecordFailure calls, committed or not
func (m *MockStore) FailureCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failureCalls
}

// TxCalls counts WithinTx scopes opened
func (m *MockStore) TxCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.txCalls
}

// Products returns the committed products
func (m *MockStore) Products() map[string]storage.ProductRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]storage.ProductRecord, len(m.products))
	for k, v := range m.products {
		out[k] = v
	}
	return out
}

// Failures returns the committed failure records in write order
func (m *MockStore) Failures() []storage.FailureRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]storage.FailureRecord(nil), m.failures...)
}

// Runs returns the saved run records
func (m *MockStore) Runs() []storage.RunRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]storage.RunRecord(nil), m.runs...)
}

var _ storage.Store = (*MockStore)(nil)

// MockEnricher is a testify mock for enrichers.Enricher. Expectations are
// usually set per sku with OnSKU.
type MockEnricher struct {
	mock.Mock
}

func (m *MockEnricher) Enrich(ctx context.Context, product records.Product) enrichers.Outcome {
	args := m.Called(ctx, product.SKU)
	return args.Get(0).(enrichers.Outcome)
}

// OnSKU sets the outcome returned for sku
func (m *MockEnricher) OnSKU(sku string, outcome enrichers.Outcome) *mock.Call {
	return m.On("Enrich", mock.Anything, sku).Return(outcome)
}

var _ enrichers.Enricher = (*MockEnricher)(nil)

// Progress is one recorded progress update
type Progress struct {
	Done, Total, Elapsed int
}

// RecordingSink records every progress update
type RecordingSink struct {
	mu     sync.Mutex
	events []Progress
}

func (s *RecordingSink) OnProgress(done, total, elapsedSeconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, Progress{Done: done, Total: total, Elapsed: elapsedSeconds})
}

// Events returns a copy of the recorded updates
func (s *RecordingSink) Events() []Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Progress(nil), s.events...)
}
