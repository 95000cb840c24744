package records

import (
	"fmt"
	"strings"
)

// Field names of a product record
const (
	FieldSKU         = "sku"
	FieldName        = "name"
	FieldPrice       = "price"
	FieldStock       = "stock"
	FieldDescription = "description"
)

// Record is one input row. Line is its 1-based position in the input set.
type Record struct {
	Line   int
	Fields map[string]Value
}

// NewRecord builds a Record from a decoded mapping
func NewRecord(line int, fields map[string]any) Record {
	r := Record{Line: line, Fields: make(map[string]Value, len(fields))}
	for k, v := range fields {
		r.Fields[k] = ValueOf(v)
	}
	return r
}

// Get returns the value stored under key, or Missing
func (r Record) Get(key string) Value {
	if r.Fields == nil {
		return Missing()
	}
	return r.Fields[key]
}

// SKU returns the trimmed sku text, or "" when it is not text
func (r Record) SKU() string {
	s, _ := r.Get(FieldSKU).AsText()
	return strings.TrimSpace(s)
}

// Raw returns the record as a plain mapping for the failure side-channel
func (r Record) Raw() map[string]any {
	out := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		out[k] = v.Raw()
	}
	return out
}

// Product is the typed view of a record that passed validation
type Product struct {
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Stock       int64   `json:"stock"`
	Description string  `json:"description,omitempty"`
}

// ToProduct converts a normalized, valid record into a Product. It fails
// if the record does not have the shapes validation guarantees.
func ToProduct(r Record) (Product, error) {
	sku := r.SKU()
	name, ok := r.Get(FieldName).AsText()
	if sku == "" || !ok {
		return Product{}, fmt.Errorf("record %d: sku and name must be text", r.Line)
	}
	price, ok := r.Get(FieldPrice).AsNumber()
	if !ok {
		return Product{}, fmt.Errorf("record %d: price is not a number", r.Line)
	}
	stock, ok := r.Get(FieldStock).AsInt()
	if !ok {
		return Product{}, fmt.Errorf("record %d: stock is not an integer", r.Line)
	}

	p := Product{
		SKU:   sku,
		Name:  strings.TrimSpace(name),
		Price: price,
		Stock: stock,
	}
	if desc, ok := r.Get(FieldDescription).AsText(); ok {
		p.Description = strings.TrimSpace(desc)
	}
	return p, nil
}
