package testutil

import (
	"encoding/json"
	"strconv"

	"catalog-importer/internal/records"
)

// RecordBuilder helps build test records
type RecordBuilder struct {
	line   int
	fields map[string]any
}

// NewRecordBuilder starts an empty record at the given 1-based line
func NewRecordBuilder(line int) *RecordBuilder {
	return &RecordBuilder{line: line, fields: make(map[string]any)}
}

// NewValidRecordBuilder starts a record that passes validation
func NewValidRecordBuilder(line int, sku string) *RecordBuilder {
	return NewRecordBuilder(line).
		WithSKU(sku).
		WithName("Product " + sku).
		WithPrice(json.Number("9.99")).
		WithStock(json.Number("5"))
}

func (b *RecordBuilder) WithSKU(sku any) *RecordBuilder {
	return b.With(records.FieldSKU, sku)
}

func (b *RecordBuilder) WithName(name any) *RecordBuilder {
	return b.With(records.FieldName, name)
}

func (b *RecordBuilder) WithPrice(price any) *RecordBuilder {
	return b.With(records.FieldPrice, price)
}

func (b *RecordBuilder) WithStock(stock any) *RecordBuilder {
	return b.With(records.FieldStock, stock)
}

func (b *RecordBuilder) WithDescription(description any) *RecordBuilder {
	return b.With(records.FieldDescription, description)
}

// With sets an arbitrary field
func (b *RecordBuilder) With(key string, value any) *RecordBuilder {
	b.fields[key] = value
	return b
}

// Without removes a field
func (b *RecordBuilder) Without(key string) *RecordBuilder {
	delete(b.fields, key)
	return b
}

func (b *RecordBuilder) Build() records.Record {
	return records.NewRecord(b.line, b.fields)
}

// ValidRecords builds n valid records with skus SKU-1..SKU-n
func ValidRecords(n int) []records.Record {
	out := make([]records.Record, n)
	for i := range out {
		out[i] = NewValidRecordBuilder(i+1, skuFor(i+1)).Build()
	}
	return out
}

func skuFor(n int) string {
	return "SKU-" + strconv.Itoa(n)
}
