// Package circuitbreaker stops hammering an enrichment endpoint that keeps
// failing. It wraps Sony's gobreaker.
package circuitbreaker

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"catalog-importer/internal/common/errors"
	"catalog-importer/internal/common/logging"
)

// Config controls when the breaker opens and how it recovers
type Config struct {
	// Failures is the number of consecutive unhealthy calls that opens the breaker
	Failures int
	// Cooldown is how long the breaker rejects calls before probing again
	Cooldown time.Duration
	// Probes is the number of calls let through while half-open
	Probes int
	// Healthy reports errors that say nothing about endpoint health, such
	// as a 404 for one unknown sku. They do not count towards Failures.
	Healthy func(err error) bool
}

// DefaultConfig opens after 5 consecutive failures and probes after 30s
func DefaultConfig() Config {
	return Config{
		Failures: 5,
		Cooldown: 30 * time.Second,
		Probes:   1,
	}
}

// Validate checks the thresholds
func (c Config) Validate() error {
	if c.Failures <= 0 {
		return fmt.Errorf("failures must be positive, got %d", c.Failures)
	}
	if c.Cooldown <= 0 {
		return fmt.Errorf("cooldown must be positive, got %v", c.Cooldown)
	}
	if c.Probes <= 0 {
		return fmt.Errorf("probes must be positive, got %d", c.Probes)
	}
	return nil
}

// State is the breaker position
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker runs a call under circuit protection
type Breaker interface {
	Execute(fn func() error) error
	State() State
}

// GoBreakerAdapter implements Breaker on gobreaker
type GoBreakerAdapter struct {
	name    string
	breaker *gobreaker.CircuitBreaker
}

// NewGoBreaker creates a breaker. An invalid config is replaced by
// DefaultConfig, keeping its Healthy func.
func NewGoBreaker(name string, config Config, logger logging.Logger) *GoBreakerAdapter {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if err := config.Validate(); err != nil {
		logger.Warn("Invalid circuit breaker config, using defaults",
			logging.String("breaker", name),
			logging.Err(err),
		)
		healthy := config.Healthy
		config = DefaultConfig()
		config.Healthy = healthy
	}

	threshold := uint32(config.Failures)
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(config.Probes),
		Timeout:     config.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || (config.Healthy != nil && config.Healthy(err))
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Enrichment circuit breaker changed state",
				logging.String("breaker", name),
				logging.String("from", from.String()),
				logging.String("to", to.String()),
			)
		},
	}

	return &GoBreakerAdapter{
		name:    name,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Execute runs fn unless the breaker rejects it. A rejected call returns a
// rate_limit AppError and fn is not run. Errors from fn pass through as is.
func (g *GoBreakerAdapter) Execute(fn func() error) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})

	switch {
	case stderrors.Is(err, gobreaker.ErrOpenState):
		return errors.RateLimitError(fmt.Sprintf("circuit breaker %s is open", g.name)).WithCode("BREAKER_OPEN")
	case stderrors.Is(err, gobreaker.ErrTooManyRequests):
		return errors.RateLimitError(fmt.Sprintf("circuit breaker %s is probing", g.name)).WithCode("BREAKER_PROBING")
	default:
		return err
	}
}

func (g *GoBreakerAdapter) State() State {
	switch g.breaker.State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// ConsecutiveFailures is the current run of unhealthy calls
func (g *GoBreakerAdapter) ConsecutiveFailures() int {
	return int(g.breaker.Counts().ConsecutiveFailures)
}

var _ Breaker = (*GoBreakerAdapter)(nil)
