package enrichers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"catalog-importer/internal/circuitbreaker"
	"catalog-importer/internal/common/clock"
	"catalog-importer/internal/common/errors"
	commonhttp "catalog-importer/internal/common/http"
	"catalog-importer/internal/common/logging"
	"catalog-importer/internal/ratelimit"
	"catalog-importer/internal/records"
)

// Contractual timeouts for the enrichment endpoint
const (
	ConnectTimeout = 5 * time.Second
	RequestTimeout = 10 * time.Second
)

const (
	defaultMaxRetries  = 3
	defaultBackoffBase = time.Second
	maxResponseBytes   = 4 << 20
	skuPlaceholder     = "{{.sku}}"
)

// ErrInvalidResponse is the pending error for a 2xx body that is not a JSON object
var ErrInvalidResponse = stderrors.New("invalid response format")

// StatusError is the pending error for a non-2xx response
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return "HTTP " + e.Status
}

// EndpointHealthy reports errors that come from a working endpoint answering
// about one sku, so they should not open a circuit breaker. Timeouts and
// throttling (408, 429) and all 5xx responses count as unhealthy.
func EndpointHealthy(err error) bool {
	var statusErr *StatusError
	if !stderrors.As(err, &statusErr) {
		return false
	}
	code := statusErr.Code
	return code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
}

// Enricher looks up supplementary data for a product
type Enricher interface {
	Enrich(ctx context.Context, product records.Product) Outcome
}

// Outcome is the result of one logical enrichment call. Exactly one of Data
// (when OK) or Error (when not OK) is meaningful.
type Outcome struct {
	OK       bool
	Data     map[string]any
	Error    string
	Attempts int
}

// AttemptResult classifies a single HTTP attempt
type AttemptResult string

const (
	AttemptSuccess         AttemptResult = "success"
	AttemptTransportError  AttemptResult = "transport_error"
	AttemptStatusError     AttemptResult = "status_error"
	AttemptInvalidResponse AttemptResult = "invalid_response"
)

// AttemptObserver is notified after every attempt
type AttemptObserver func(result AttemptResult, latency time.Duration)

// HTTPConfig contains configuration for HTTP enrichment
type HTTPConfig struct {
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers"`
	Auth        *AuthConfig       `json:"auth"`
	MaxRetries  int               `json:"max_retries"`
	BackoffBase time.Duration     `json:"backoff_base"`
}

// AuthConfig supports bearer, basic and api_key authentication
type AuthConfig struct {
	Type         string `json:"type"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Token        string `json:"token"`
	APIKey       string `json:"api_key"`
	APIKeyHeader string `json:"api_key_header"`
}

// HTTPEnricher is the retrying, rate-limited client for the enrichment API.
// It is safe for concurrent use.
type HTTPEnricher struct {
	config   HTTPConfig
	client   *http.Client
	limiter  ratelimit.Limiter
	breaker  circuitbreaker.Breaker
	sleeper  clock.Clock
	logger   logging.Logger
	observer AttemptObserver
}

// Option configures an HTTPEnricher
type Option func(*HTTPEnricher)

// WithLimiter gates every attempt on limiter
func WithLimiter(limiter ratelimit.Limiter) Option {
	return func(h *HTTPEnricher) { h.limiter = limiter }
}

// WithBreaker wraps every attempt in a circuit breaker
func WithBreaker(breaker circuitbreaker.Breaker) Option {
	return func(h *HTTPEnricher) { h.breaker = breaker }
}

// WithSleeper replaces the clock used for backoff sleeps
func WithSleeper(c clock.Clock) Option {
	return func(h *HTTPEnricher) { h.sleeper = c }
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(h *HTTPEnricher) { h.client = client }
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(h *HTTPEnricher) { h.logger = logger }
}

// WithAttemptObserver registers a per-attempt callback
func WithAttemptObserver(fn AttemptObserver) Option {
	return func(h *HTTPEnricher) { h.observer = fn }
}

// NewHTTPEnricher creates a new HTTP enricher
func NewHTTPEnricher(config HTTPConfig, opts ...Option) (*HTTPEnricher, error) {
	if config.URL == "" {
		return nil, errors.ConfigError("enrichment URL is required")
	}
	probe := strings.ReplaceAll(config.URL, skuPlaceholder, "x")
	if u, err := url.Parse(probe); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.ConfigError(fmt.Sprintf("invalid enrichment URL %q", config.URL))
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaultMaxRetries
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = defaultBackoffBase
	}
	if config.Auth != nil {
		switch config.Auth.Type {
		case "", "bearer", "basic", "api_key":
		default:
			return nil, errors.ConfigError(fmt.Sprintf("unsupported auth type: %s", config.Auth.Type))
		}
	}

	h := &HTTPEnricher{
		config: config,
		client: commonhttp.NewHTTPClient(
			commonhttp.WithTimeout(RequestTimeout),
			commonhttp.WithConnectTimeout(ConnectTimeout),
		),
		sleeper: clock.Real{},
		logger:  logging.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}

	return h, nil
}

// MaxRetries returns the configured number of attempts
func (h *HTTPEnricher) MaxRetries() int {
	return h.config.MaxRetries
}

// Enrich performs up to MaxRetries attempts for product. A limiter or
// backoff interrupted by ctx ends the call with the pending error.
func (h *HTTPEnricher) Enrich(ctx context.Context, product records.Product) Outcome {
	requestURL, err := h.buildURL(product.SKU)
	if err != nil {
		return Outcome{Error: err.Error()}
	}

	logger := h.logger.WithContext(ctx).WithFields(logging.String("sku", product.SKU))
	pending := ""

	for attempt := 1; attempt <= h.config.MaxRetries; attempt++ {
		if h.limiter != nil {
			if err := h.limiter.WaitForToken(ctx); err != nil {
				if pending == "" {
					pending = fmt.Sprintf("rate limiter: %v", err)
				}
				return Outcome{Error: pending, Attempts: attempt - 1}
			}
		}

		data, err := h.attempt(ctx, requestURL)
		if err == nil {
			return Outcome{OK: true, Data: data, Attempts: attempt}
		}
		pending = err.Error()

		if attempt == h.config.MaxRetries {
			break
		}

		delay := h.calculateRetryDelay(attempt)
		logger.Debug("Enrichment attempt failed, retrying",
			logging.Int("attempt", attempt),
			logging.Duration("backoff", delay),
			logging.String("error", pending),
		)
		if err := h.sleeper.Sleep(ctx, delay); err != nil {
			return Outcome{Error: pending, Attempts: attempt}
		}
	}

	return Outcome{Error: pending, Attempts: h.config.MaxRetries}
}

// attempt issues one request and classifies its result
func (h *HTTPEnricher) attempt(ctx context.Context, requestURL string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range h.config.Headers {
		req.Header.Set(key, value)
	}
	h.addAuthentication(req)

	var data map[string]any
	result := AttemptTransportError
	call := func() error {
		resp, err := h.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			result = AttemptStatusError
			return &StatusError{Code: resp.StatusCode, Status: resp.Status}
		}

		var obj map[string]any
		if err := json.Unmarshal(body, &obj); err != nil || obj == nil {
			result = AttemptInvalidResponse
			return ErrInvalidResponse
		}

		data, result = obj, AttemptSuccess
		return nil
	}

	start := time.Now()
	if h.breaker != nil {
		err = h.breaker.Execute(call)
	} else {
		err = call()
	}
	if h.observer != nil {
		h.observer(result, time.Since(start))
	}
	return data, err
}

// buildURL substitutes the SKU placeholder or appends the sku query parameter
func (h *HTTPEnricher) buildURL(sku string) (string, error) {
	if strings.Contains(h.config.URL, skuPlaceholder) {
		return strings.ReplaceAll(h.config.URL, skuPlaceholder, url.PathEscape(sku)), nil
	}

	u, err := url.Parse(h.config.URL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	q := u.Query()
	q.Set("sku", sku)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (h *HTTPEnricher) addAuthentication(req *http.Request) {
	if h.config.Auth == nil {
		return
	}

	switch h.config.Auth.Type {
	case "basic":
		req.SetBasicAuth(h.config.Auth.Username, h.config.Auth.Password)
	case "bearer":
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", h.config.Auth.Token))
	case "api_key":
		headerName := h.config.Auth.APIKeyHeader
		if headerName == "" {
			headerName = "X-API-Key"
		}
		req.Header.Set(headerName, h.config.Auth.APIKey)
	}
}

// calculateRetryDelay returns BackoffBase × 2^(attempt-1)
func (h *HTTPEnricher) calculateRetryDelay(attempt int) time.Duration {
	return h.config.BackoffBase * time.Duration(1<<uint(attempt-1))
}

var _ Enricher = (*HTTPEnricher)(nil)
