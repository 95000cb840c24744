package validation

import (
	"encoding/json"
	"testing"

	"catalog-importer/internal/records"

	"github.com/stretchr/testify/assert"
)

func record(fields map[string]any) records.Record {
	return records.Normalize(records.NewRecord(1, fields))
}

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]any
		want   Result
	}{
		{
			name:   "fully valid",
			fields: map[string]any{"sku": "AB-1_x", "name": "A", "price": 1, "stock": 1},
			want:   Result{},
		},
		{
			name:   "max int64 stock",
			fields: map[string]any{"sku": "ok", "name": "A", "price": 1, "stock": json.Number("9223372036854775807")},
			want:   Result{},
		},
		{
			name:   "stock above float precision",
			fields: map[string]any{"sku": "ok", "name": "A", "price": 1, "stock": json.Number("9007199254740993")},
			want:   Result{},
		},
		{
			name:   "stock text above float precision",
			fields: map[string]any{"sku": "ok", "name": "A", "price": 1, "stock": "9007199254740993"},
			want:   Result{},
		},
		{
			name:   "stock beyond int64",
			fields: map[string]any{"sku": "ok", "name": "A", "price": 1, "stock": json.Number("9223372036854775808")},
			want:   Result{MsgStockInteger},
		},
		{
			name:   "empty sku",
			fields: map[string]any{"sku": "", "name": "A", "price": 1, "stock": 1},
			want:   Result{MsgSKURequired},
		},
		{
			name:   "sku with space",
			fields: map[string]any{"sku": "ab c", "name": "A", "price": 1, "stock": 1},
			want:   Result{MsgSKUFormat},
		},
		{
			name:   "negative price",
			fields: map[string]any{"sku": "ok", "name": "A", "price": -1, "stock": 1},
			want:   Result{MsgPriceInvalid},
		},
		{
			name:   "missing sku",
			fields: map[string]any{"name": "A", "price": 1, "stock": 1},
			want:   Result{MsgSKURequired},
		},
		{
			name:   "numeric sku",
			fields: map[string]any{"sku": 12, "name": "A", "price": 1, "stock": 1},
			want:   Result{MsgSKUFormat},
		},
		{
			name:   "blank name",
			fields: map[string]any{"sku": "ok", "name": "  ", "price": 1, "stock": 1},
			want:   Result{MsgNameRequired},
		},
		{
			name:   "price text not numeric",
			fields: map[string]any{"sku": "ok", "name": "A", "price": "free", "stock": 1},
			want:   Result{MsgPriceInvalid},
		},
		{
			name:   "price numeric text is accepted",
			fields: map[string]any{"sku": "ok", "name": "A", "price": "2.5", "stock": "3"},
			want:   Result{},
		},
		{
			name:   "price null is missing",
			fields: map[string]any{"sku": "ok", "name": "A", "price": nil, "stock": 1},
			want:   Result{MsgPriceRequired},
		},
		{
			name:   "stock fractional",
			fields: map[string]any{"sku": "ok", "name": "A", "price": 1, "stock": 2.5},
			want:   Result{MsgStockInteger},
		},
		{
			name:   "stock negative",
			fields: map[string]any{"sku": "ok", "name": "A", "price": 1, "stock": "-2"},
			want:   Result{MsgStockNegative},
		},
		{
			name:   "stock boolean",
			fields: map[string]any{"sku": "ok", "name": "A", "price": 1, "stock": true},
			want:   Result{MsgStockInteger},
		},
		{
			name:   "everything missing",
			fields: map[string]any{},
			want:   Result{MsgSKURequired, MsgNameRequired, MsgPriceRequired, MsgStockRequired},
		},
		{
			name:   "everything wrong",
			fields: map[string]any{"sku": "a b", "name": "", "price": -3, "stock": "many"},
			want:   Result{MsgSKUFormat, MsgNameRequired, MsgPriceInvalid, MsgStockInteger},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateRecord(record(tt.fields))
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.want) == 0, got.Valid())
		})
	}
}

func TestValidateRecord_Deterministic(t *testing.T) {
	r := record(map[string]any{"sku": "a b", "price": "x"})
	first := ValidateRecord(r)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, ValidateRecord(r))
	}
}
