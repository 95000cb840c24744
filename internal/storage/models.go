package storage

import (
	"fmt"
	"math"
	"time"

	"catalog-importer/internal/records"
)

// Stage names the pipeline step a failure record came from
type Stage string

const (
	StageValidation  Stage = "validation"
	StageEnrichment  Stage = "enrichment"
	StagePersistence Stage = "persistence"
)

// ProductRecord is a persisted product. Metadata holds the enrichment
// payload and is an empty object when enrichment was skipped or empty.
type ProductRecord struct {
	records.Product
	Metadata  map[string]any `json:"metadata"`
	RunID     string         `json:"run_id"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// FailureRecord is one entry in the failure side-channel
type FailureRecord struct {
	ID        int64          `json:"id,omitempty"`
	RunID     string         `json:"run_id"`
	Line      int            `json:"line"`
	SKU       string         `json:"sku"`
	Stage     Stage          `json:"stage"`
	Raw       map[string]any `json:"raw"`
	Reason    map[string]any `json:"reason"`
	CreatedAt time.Time      `json:"created_at"`
}

// RunRecord summarizes a finished import run
type RunRecord struct {
	RunID         string    `json:"run_id"`
	Source        string    `json:"source"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Total         int       `json:"total"`
	Succeeded     int       `json:"succeeded"`
	Invalid       int       `json:"invalid"`
	APIFailed     int       `json:"api_failed"`
	PersistFailed int       `json:"persist_failed"`
	Cancelled     bool      `json:"cancelled"`
}

// ValidationReason is the failure reason for an invalid record
func ValidationReason(messages []string) map[string]any {
	list := make([]any, len(messages))
	for i, m := range messages {
		list[i] = m
	}
	return map[string]any{"validation_errors": list}
}

// APIErrorReason is the failure reason for an exhausted enrichment call
func APIErrorReason(message string) map[string]any {
	return map[string]any{"api_error": message}
}

// DBErrorReason is the failure reason for a rejected upsert
func DBErrorReason(message string) map[string]any {
	return map[string]any{"db_error": message}
}

// EmptyMetadata returns a fresh empty metadata object
func EmptyMetadata() map[string]any {
	return map[string]any{}
}

// CheckProduct enforces the column constraints the SQL backends declare in
// their schema, for backends that have no schema of their own.
func CheckProduct(p ProductRecord) error {
	switch {
	case p.SKU == "":
		return fmt.Errorf("product sku must not be empty")
	case p.Price < 0 || math.IsNaN(p.Price) || math.IsInf(p.Price, 0):
		return fmt.Errorf("product %s: price %v violates price >= 0", p.SKU, p.Price)
	case p.Stock < 0:
		return fmt.Errorf("product %s: stock %d violates stock >= 0", p.SKU, p.Stock)
	}
	return nil
}
