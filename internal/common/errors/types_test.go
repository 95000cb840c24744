package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		want     string
	}{
		{
			name: "basic error",
			appError: &AppError{
				Type:    ErrTypeConfig,
				Message: "configuration is invalid",
			},
			want: "config: configuration is invalid",
		},
		{
			name: "error with code",
			appError: &AppError{
				Type:    ErrTypeInput,
				Message: "input is not a list",
				Code:    "IN001",
			},
			want: "input: input is not a list: code=IN001",
		},
		{
			name: "error with cause",
			appError: &AppError{
				Type:    ErrTypeConnection,
				Message: "store connection failed",
				Cause:   errors.New("network timeout"),
			},
			want: "connection: store connection failed: cause=network timeout",
		},
		{
			name: "error with sorted context",
			appError: &AppError{
				Type:    ErrTypePersistence,
				Message: "upsert failed",
				Context: map[string]interface{}{
					"sku":  "AB-1",
					"line": 4,
				},
			},
			want: "persistence: upsert failed: context={line=4, sku=AB-1}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.appError.Error()
			if got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	appError := EnrichmentError("enrichment failed", cause)

	if !errors.Is(appError, cause) {
		t.Errorf("errors.Is(appError, cause) = false, want true")
	}

	noCause := ConfigError("no cause error")
	if noCause.Unwrap() != nil {
		t.Errorf("AppError.Unwrap() without cause = %v, want nil", noCause.Unwrap())
	}
}

func TestAppError_WithContext(t *testing.T) {
	appError := ValidationError("validation failed")

	result := appError.WithContext("field", "sku")
	if result != appError {
		t.Error("WithContext should return the same instance")
	}
	if appError.Context["field"] != "sku" {
		t.Errorf("Context[field] = %v, want sku", appError.Context["field"])
	}

	appError.WithContext("value", "ab c")
	if len(appError.Context) != 2 {
		t.Errorf("Context length = %d, want 2", len(appError.Context))
	}
}

func TestConstructors(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name    string
		err     *AppError
		errType ErrorType
		message string
	}{
		{"connection", ConnectionError("store unreachable", cause), ErrTypeConnection, "store unreachable"},
		{"config", ConfigError("bad window"), ErrTypeConfig, "bad window"},
		{"input", InputError("unreadable file", cause), ErrTypeInput, "unreadable file"},
		{"validation", ValidationError("sku is required"), ErrTypeValidation, "sku is required"},
		{"enrichment", EnrichmentError("HTTP 503", nil), ErrTypeEnrichment, "HTTP 503"},
		{"persistence", PersistenceError("constraint", cause), ErrTypePersistence, "constraint"},
		{"internal", InternalError("panic", cause), ErrTypeInternal, "panic"},
		{"timeout", TimeoutError("enrichment request"), ErrTypeTimeout, "timeout during enrichment request"},
		{"rate limit", RateLimitError("enrichment API"), ErrTypeRateLimit, "rate limit exceeded for enrichment API"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.errType {
				t.Errorf("Type = %v, want %v", tt.err.Type, tt.errType)
			}
			if tt.err.Message != tt.message {
				t.Errorf("Message = %q, want %q", tt.err.Message, tt.message)
			}
		})
	}
}

func TestIsType(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		errType ErrorType
		want    bool
	}{
		{"matching type", ConfigError("test"), ErrTypeConfig, true},
		{"non-matching type", ConfigError("test"), ErrTypeInput, false},
		{"wrapped app error", fmt.Errorf("open: %w", InputError("bad", nil)), ErrTypeInput, true},
		{"non-app error", errors.New("regular error"), ErrTypeConfig, false},
		{"nil error", nil, ErrTypeConfig, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsType(tt.err, tt.errType); got != tt.want {
				t.Errorf("IsType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetType(t *testing.T) {
	if got := GetType(nil); got != "" {
		t.Errorf("GetType(nil) = %q, want empty", got)
	}
	if got := GetType(errors.New("plain")); got != ErrTypeInternal {
		t.Errorf("GetType(plain) = %q, want %q", got, ErrTypeInternal)
	}
	if got := GetType(PersistenceError("x", nil)); got != ErrTypePersistence {
		t.Errorf("GetType(persistence) = %q, want %q", got, ErrTypePersistence)
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{InputError("not a list", nil), true},
		{ConnectionError("store down", nil), true},
		{ConfigError("bad"), true},
		{ValidationError("sku is required"), false},
		{EnrichmentError("HTTP 500", nil), false},
		{PersistenceError("locked", nil), false},
		{errors.New("plain"), false},
	}

	for _, tt := range tests {
		if got := IsFatal(tt.err); got != tt.want {
			t.Errorf("IsFatal(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
