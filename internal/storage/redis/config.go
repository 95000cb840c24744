package redis

import (
	"fmt"
	"strings"
)

const StoreType = "redis"

type Config struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	PoolSize  int    `json:"pool_size"`
	KeyPrefix string `json:"key_prefix"`
}

func (c *Config) Validate() error {
	if c.Address == "" {
		c.Address = "localhost:6379"
	}
	if c.DB < 0 {
		return fmt.Errorf("redis db must not be negative")
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "catalog:"
	}
	if !strings.HasSuffix(c.KeyPrefix, ":") {
		c.KeyPrefix += ":"
	}
	return nil
}

func (c *Config) GetType() string {
	return StoreType
}

func (c *Config) GetConnectionString() string {
	return fmt.Sprintf("redis://%s/%d", c.Address, c.DB)
}
