package records

import "math"

// Normalize coerces price and stock into numbers where the input allows it.
// It is total: values that cannot be converted are returned unchanged so
// validation can reject them. The input record is not modified.
func Normalize(r Record) Record {
	out := Record{Line: r.Line, Fields: make(map[string]Value, len(r.Fields))}
	for k, v := range r.Fields {
		out.Fields[k] = v
	}

	if v, ok := out.Fields[FieldPrice]; ok {
		out.Fields[FieldPrice] = normalizePrice(v)
	}
	if v, ok := out.Fields[FieldStock]; ok {
		out.Fields[FieldStock] = normalizeStock(v)
	}
	return out
}

func normalizePrice(v Value) Value {
	if s, ok := v.AsText(); ok {
		if f, ok := parseNumber(s); ok {
			return Number(f)
		}
	}
	return v
}

// normalizeStock leaves fractional numbers alone; validation rejects them.
func normalizeStock(v Value) Value {
	if s, ok := v.AsText(); ok {
		if n, ok := parseInteger(s); ok {
			return Integer(n)
		}
		if f, ok := parseNumber(s); ok && f == math.Trunc(f) {
			return Number(f)
		}
	}
	return v
}
