package sqlite

import (
	"fmt"
	"time"
)

const StoreType = "sqlite"

type Config struct {
	DatabasePath string
	BusyTimeout  time.Duration
}

func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("busy timeout must not be negative")
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = 5 * time.Second
	}
	return nil
}

func (c *Config) GetType() string {
	return StoreType
}

func (c *Config) GetConnectionString() string {
	return fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL", c.DatabasePath, c.BusyTimeout.Milliseconds())
}

func DefaultConfig() *Config {
	return &Config{
		DatabasePath: "./catalog.db",
		BusyTimeout:  5 * time.Second,
	}
}
