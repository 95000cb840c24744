package ratelimit

import (
	"time"

	"catalog-importer/internal/common/errors"
)

// DefaultPollInterval bounds how long a waiter sleeps between refill checks
const DefaultPollInterval = 250 * time.Millisecond

// Config represents token bucket configuration
type Config struct {
	// Capacity is the bucket size and the number of tokens granted per Window
	Capacity int `json:"capacity" yaml:"capacity"`
	// Window is the period over which Capacity tokens are replenished
	Window time.Duration `json:"window" yaml:"window"`
	// PollInterval caps a single sleep while waiting for a token
	PollInterval time.Duration `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
}

// DefaultConfig returns 60 requests per minute
func DefaultConfig() Config {
	return Config{
		Capacity:     60,
		Window:       time.Minute,
		PollInterval: DefaultPollInterval,
	}
}

// Validate validates the configuration and fills in the poll interval
func (c *Config) Validate() error {
	if c.Capacity <= 0 {
		return errors.ConfigError("rate limit capacity must be positive")
	}
	if c.Window <= 0 {
		return errors.ConfigError("rate limit window must be positive")
	}
	if c.Window/time.Duration(c.Capacity) <= 0 {
		return errors.ConfigError("rate limit window is too short for its capacity")
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return nil
}

// RefillInterval returns the average time it takes to earn one token,
// rounded down to whole nanoseconds. The bucket itself schedules tokens
// exactly and does not accumulate this rounding.
func (c Config) RefillInterval() time.Duration {
	return c.Window / time.Duration(c.Capacity)
}
