// Package records models loosely typed input rows and their normalized
// product form.
package records

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind discriminates the variants of Value
type Kind int

const (
	// KindMissing is an absent key or an explicit null
	KindMissing Kind = iota
	// KindText is a string
	KindText
	// KindNumber is a finite number
	KindNumber
	// KindOther is anything else (booleans, lists, nested objects)
	KindOther
)

// String returns the variant name
func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	default:
		return "other"
	}
}

// Value is a tagged union over the shapes an input field can take.
// The zero Value is Missing.
type Value struct {
	kind Kind
	text string
	num  float64
	// integer holds the exact value when exact is set; num may have lost
	// precision above 2^53.
	integer int64
	exact   bool
	raw     any
}

// Missing returns the Missing variant
func Missing() Value { return Value{} }

// Text returns a Text variant
func Text(s string) Value { return Value{kind: KindText, text: s, raw: s} }

// Number returns a Number variant. Non-finite inputs are kept as Other.
func Number(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Other(f)
	}
	return Value{kind: KindNumber, num: f, raw: f}
}

// Integer returns a Number variant that keeps n exactly
func Integer(n int64) Value {
	return Value{kind: KindNumber, num: float64(n), integer: n, exact: true, raw: n}
}

// Other returns the Other variant wrapping v
func Other(v any) Value { return Value{kind: KindOther, raw: v} }

// ValueOf classifies a decoded JSON, YAML or CSV value
func ValueOf(v any) Value {
	switch x := v.(type) {
	case nil:
		return Missing()
	case Value:
		return x
	case string:
		return Text(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return Integer(n)
		}
		f, err := x.Float64()
		if err != nil {
			return Text(x.String())
		}
		return Number(f)
	case float64:
		return Number(x)
	case float32:
		return Number(float64(x))
	case int:
		return Integer(int64(x))
	case int64:
		return Integer(x)
	case int32:
		return Integer(int64(x))
	case uint64:
		if x <= math.MaxInt64 {
			return Integer(int64(x))
		}
		return Number(float64(x))
	default:
		return Other(x)
	}
}

// Kind returns the variant of v
func (v Value) Kind() Kind { return v.kind }

// IsMissing reports whether v is Missing
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// AsText returns the string for Text values
func (v Value) AsText() (string, bool) {
	if v.kind != KindText {
		return "", false
	}
	return v.text, true
}

// AsNumber returns the float for Number values
func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// AsInt returns the integer for Number values with no fractional part
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	if v.exact {
		return v.integer, true
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if v.num != math.Trunc(v.num) || v.num >= math.MaxInt64 || v.num < math.MinInt64 {
		return 0, false
	}
	return int64(v.num), true
}

// Raw returns the value as it should be serialized back out
func (v Value) Raw() any {
	if v.kind == KindMissing {
		return nil
	}
	return v.raw
}

// String renders v for log lines
func (v Value) String() string {
	switch v.kind {
	case KindMissing:
		return "<missing>"
	case KindText:
		return strconv.Quote(v.text)
	case KindNumber:
		if v.exact {
			return strconv.FormatInt(v.integer, 10)
		}
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v.raw)
	}
}

// parseInteger converts trimmed integer text without going through float64
func parseInteger(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n, err == nil
}

// parseNumber converts trimmed numeric text into a finite float
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
