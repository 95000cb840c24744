package postgres

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const StoreType = "postgres"

type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string

	MaxConns        int32
	ConnectTimeout  time.Duration
	MaxConnLifetime time.Duration
}

func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("PostgreSQL host is required")
	}

	if c.Port <= 0 {
		c.Port = 5432 // default PostgreSQL port
	}

	if c.Database == "" {
		return fmt.Errorf("PostgreSQL database name is required")
	}

	if c.Username == "" {
		return fmt.Errorf("PostgreSQL username is required")
	}

	if c.SSLMode == "" {
		c.SSLMode = "prefer"
	}

	if c.MaxConns <= 0 {
		c.MaxConns = 4
	}

	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}

	return nil
}

func (c *Config) GetType() string {
	return StoreType
}

func (c *Config) GetConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		c.Host, c.Port, c.Username, quote(c.Password), c.Database, c.SSLMode, int(c.ConnectTimeout.Seconds()))
}

// quote escapes a keyword/value connection string value
func quote(v string) string {
	if v == "" {
		return "''"
	}
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func NewConfigFromURL(connStr string) (*Config, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return nil, fmt.Errorf("invalid PostgreSQL URL: unsupported scheme %q", u.Scheme)
	}

	config := &Config{
		Host:     u.Hostname(),
		Database: strings.TrimPrefix(u.Path, "/"),
		Username: u.User.Username(),
		SSLMode:  "prefer",
	}

	if u.Port() != "" {
		port := 5432
		if _, err := fmt.Sscanf(u.Port(), "%d", &port); err == nil {
			config.Port = port
		}
	} else {
		config.Port = 5432
	}

	if password, ok := u.User.Password(); ok {
		config.Password = password
	}

	if sslMode := u.Query().Get("sslmode"); sslMode != "" {
		config.SSLMode = sslMode
	}

	return config, nil
}

func DefaultConfig() *Config {
	return &Config{
		Host:           "localhost",
		Port:           5432,
		Database:       "catalog",
		Username:       "postgres",
		SSLMode:        "prefer",
		MaxConns:       4,
		ConnectTimeout: 5 * time.Second,
	}
}
