package validation

import (
	"regexp"
	"strings"
	"sync"

	"catalog-importer/internal/records"

	"github.com/go-playground/validator/v10"
)

// Messages produced by ValidateRecord
const (
	MsgSKURequired   = "sku is required"
	MsgSKUFormat     = "sku must contain only letters, digits, '-' or '_'"
	MsgNameRequired  = "name is required"
	MsgPriceRequired = "price is required"
	MsgPriceInvalid  = "price must be a non-negative number"
	MsgStockRequired = "stock is required"
	MsgStockInteger  = "stock must be an integer"
	MsgStockNegative = "stock must be non-negative"
)

var skuPattern = regexp.MustCompile(`^[A-Za-z0-9_-]*$`)

var (
	tagValidator     *validator.Validate
	tagValidatorOnce sync.Once
)

// tags returns the shared go-playground validator with the sku tag registered
func tags() *validator.Validate {
	tagValidatorOnce.Do(func() {
		v := validator.New()
		_ = v.RegisterValidation("sku", func(fl validator.FieldLevel) bool {
			return skuPattern.MatchString(fl.Field().String())
		})
		tagValidator = v
	})
	return tagValidator
}

// Result is the ordered list of rule violations for one record. An empty
// Result means the record is valid.
type Result []string

// Valid reports whether no rule was violated
func (r Result) Valid() bool { return len(r) == 0 }

// ValidateRecord applies every product rule to a normalized record and
// returns all violations in a fixed order. It has no side effects.
func ValidateRecord(r records.Record) Result {
	v := NewValidator()

	sku := r.Get(records.FieldSKU)
	skuText, skuIsText := sku.AsText()
	skuText = strings.TrimSpace(skuText)
	v.Check(skuText != "" || (!sku.IsMissing() && !skuIsText), MsgSKURequired)
	// format is checked independently of emptiness; a non-text sku fails it
	if !sku.IsMissing() {
		v.Check(skuIsText && tags().Var(skuText, "sku") == nil, MsgSKUFormat)
	}

	name, _ := r.Get(records.FieldName).AsText()
	v.Check(strings.TrimSpace(name) != "", MsgNameRequired)

	price := r.Get(records.FieldPrice)
	if price.IsMissing() {
		v.Check(false, MsgPriceRequired)
	} else {
		f, ok := price.AsNumber()
		v.Check(ok && f >= 0, MsgPriceInvalid)
	}

	stock := r.Get(records.FieldStock)
	if stock.IsMissing() {
		v.Check(false, MsgStockRequired)
	} else if n, ok := stock.AsInt(); !ok {
		v.Check(false, MsgStockInteger)
	} else {
		v.Check(n >= 0, MsgStockNegative)
	}

	return Result(v.Messages())
}
