package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// EncodeObject serializes a JSON object column. A nil map is stored as {}.
func EncodeObject(v map[string]any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode json column: %w", err)
	}
	return string(data), nil
}

// DecodeObject parses a JSON object column
func DecodeObject(data string) (map[string]any, error) {
	out := map[string]any{}
	if data == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("failed to decode json column: %w", err)
	}
	return out, nil
}

// Stamp returns t in UTC, or now when t is zero
func Stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
