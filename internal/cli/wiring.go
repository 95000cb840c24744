package cli

import (
	"context"
	"fmt"

	"catalog-importer/internal/circuitbreaker"
	"catalog-importer/internal/common/errors"
	"catalog-importer/internal/common/logging"
	"catalog-importer/internal/config"
	"catalog-importer/internal/enrichers"
	"catalog-importer/internal/locks"
	"catalog-importer/internal/metrics"
	"catalog-importer/internal/ratelimit"
	"catalog-importer/internal/storage"
	"catalog-importer/internal/storage/memory"
	"catalog-importer/internal/storage/postgres"
	redisstore "catalog-importer/internal/storage/redis"
	"catalog-importer/internal/storage/sqlite"
)

// storageConfig maps the flat environment config onto the backend config
func storageConfig(cfg *config.Config) (storage.StorageConfig, error) {
	switch cfg.StoreType {
	case sqlite.StoreType:
		return &sqlite.Config{DatabasePath: cfg.DatabasePath}, nil
	case postgres.StoreType:
		pgConfig, err := postgres.NewConfigFromURL(cfg.PostgresURL)
		if err != nil {
			return nil, errors.ConfigError(err.Error())
		}
		return pgConfig, nil
	case redisstore.StoreType:
		return &redisstore.Config{
			Address:   cfg.RedisAddress,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		}, nil
	case memory.StoreType:
		return &memory.Config{}, nil
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unsupported store type: %s", cfg.StoreType))
	}
}

// openStore connects to the configured store. Failure is fatal.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	storeConfig, err := storageConfig(cfg)
	if err != nil {
		return nil, err
	}
	return storage.Open(ctx, cfg.StoreType, storeConfig)
}

// newLocker returns a Redlock locker for the shared redis store. SQL stores
// serialize writers themselves and the memory store is private.
func newLocker(store storage.Store, logger logging.Logger) (locks.Locker, error) {
	adapter, ok := store.(*redisstore.Adapter)
	if !ok {
		return locks.NopLocker{}, nil
	}
	return locks.NewRedsyncLocker(adapter.Client(), adapter.KeyPrefix(), locks.DefaultExpiry, logger)
}

// newLimiter builds the shared token bucket; its wait times feed collectors
func newLimiter(cfg *config.Config, collectors *metrics.Collectors) (*ratelimit.TokenBucket, error) {
	return ratelimit.NewTokenBucket(
		ratelimit.Config{Capacity: cfg.RateLimitCapacity, Window: cfg.RateLimitWindow},
		ratelimit.WithWaitObserver(collectors.ObserveLimiterWait),
	)
}

// newEnricher returns nil when enrichment is not configured
func newEnricher(cfg *config.Config, limiter ratelimit.Limiter, collectors *metrics.Collectors, logger logging.Logger) (enrichers.Enricher, error) {
	if !cfg.EnrichmentEnabled() {
		return nil, nil
	}

	httpConfig := enrichers.HTTPConfig{
		URL:         cfg.EnrichURL,
		MaxRetries:  cfg.EnrichMaxRetries,
		BackoffBase: cfg.EnrichBackoffBase,
	}
	if cfg.EnrichAuthType != "" {
		httpConfig.Auth = &enrichers.AuthConfig{
			Type:         cfg.EnrichAuthType,
			Token:        cfg.EnrichToken,
			Username:     cfg.EnrichUsername,
			Password:     cfg.EnrichPassword,
			APIKey:       cfg.EnrichAPIKey,
			APIKeyHeader: cfg.EnrichAPIKeyHeader,
		}
	}

	opts := []enrichers.Option{
		enrichers.WithLimiter(limiter),
		enrichers.WithLogger(logger),
		enrichers.WithAttemptObserver(collectors.ObserveAttempt),
	}
	if cfg.EnrichCircuitBreaker {
		breakerConfig := circuitbreaker.Config{
			Failures: cfg.EnrichBreakerFailures,
			Cooldown: cfg.EnrichBreakerCooldown,
			Probes:   1,
			Healthy:  enrichers.EndpointHealthy,
		}
		opts = append(opts, enrichers.WithBreaker(
			circuitbreaker.NewGoBreaker("enrichment", breakerConfig, logger),
		))
	}

	enricher, err := enrichers.NewHTTPEnricher(httpConfig, opts...)
	if err != nil {
		return nil, err
	}
	return enricher, nil
}
