package infra

import (
	"log/slog"

	infra_cache "github.com/amirasaad/retailpay/infra/cache"
	infra_lock "github.com/amirasaad/retailpay/infra/lock"
	infra_provider "github.com/amirasaad/retailpay/infra/provider"
	"github.com/amirasaad/retailpay/pkg/cache"
	"github.com/amirasaad/retailpay/pkg/config"
	"github.com/amirasaad/retailpay/pkg/lock"
	"github.com/amirasaad/retailpay/pkg/provider"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to cfg.URL. It returns nil, nil when Redis is not
// configured.
func NewRedisClient(cfg *config.Redis) (*redis.Client, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.PoolSize > 0 {
		opt.PoolSize = cfg.PoolSize
	}
	opt.DialTimeout = cfg.DialTimeout
	opt.ReadTimeout = cfg.ReadTimeout
	opt.WriteTimeout = cfg.WriteTimeout
	return redis.NewClient(opt), nil
}

// NewExchangeRateSystem creates the FxClient: a rate source, a rate cache
// and the converter in front of both.
func NewExchangeRateSystem(
	logger *slog.Logger,
	cfg *config.ExchangeRate,
	redisCfg *config.Redis,
	client redis.UniversalClient,
) (provider.FxClient, error) {
	var rateCache cache.ExchangeRateCache
	if client != nil {
		rateCache = infra_cache.NewRedisExchangeRateCache(client, redisCfg.KeyPrefix+cfg.CachePrefix, logger)
		logger.Info("Using Redis for exchange rate cache")
	} else {
		rateCache = infra_cache.NewMemoryCache()
		logger.Info("Using in-memory cache for exchange rates")
	}

	var source provider.RateSource
	if cfg.ApiKey != "" {
		source = infra_provider.NewExchangeRateAPI(infra_provider.HTTPConfig{
			BaseURL:    cfg.ApiUrl,
			Timeout:    cfg.HTTPTimeout,
			RetryCount: cfg.MaxRetries,
			APIKey:     cfg.ApiKey,
		}, logger)
		logger.Info("ExchangeRate API provider configured", "apiKey", maskAPIKey(cfg.ApiKey))
	} else {
		rates, err := infra_provider.ParseFixedRates(cfg.FixedRates)
		if err != nil {
			return nil, err
		}
		source = rates
		logger.Warn("No ExchangeRate API key configured, using fixed rates", "pairs", len(rates))
	}

	logger.Info("Exchange rate system initialized",
		"provider", source.Name(),
		"cacheTTL", cfg.CacheTTL)
	return infra_provider.NewConverter(source, rateCache, cfg.CacheTTL, logger), nil
}

// NewInventoryClient returns the HTTP client for the inventory service, or
// an in-process stub when no URL is configured.
func NewInventoryClient(logger *slog.Logger, cfg *config.Inventory) provider.InventoryClient {
	if cfg.URL == "" {
		logger.Warn("No inventory URL configured, using in-memory stock", "stock", cfg.StubStock)
		return infra_provider.NewStubInventory(cfg.StubStock)
	}
	logger.Info("Inventory service configured", "url", cfg.URL)
	return infra_provider.NewInventoryHTTPClient(infra_provider.HTTPConfig{
		BaseURL:    cfg.URL,
		Timeout:    cfg.Timeout,
		RetryCount: cfg.MaxRetries,
		APIKey:     cfg.APIKey,
	}, logger)
}

// NewLocker returns the per-order locker. A Redis client makes the lock
// shared between instances.
func NewLocker(logger *slog.Logger, cfg *config.Redis, client redis.UniversalClient) lock.Locker {
	if client == nil {
		return infra_lock.NewMemoryLocker()
	}
	logger.Info("Using Redis for order locks", "ttl", cfg.LockTTL)
	return infra_lock.NewRedisLocker(client, cfg.KeyPrefix+"lock:", cfg.LockTTL, cfg.LockRetry, logger)
}

// maskAPIKey returns a masked version of the API key for logging
func maskAPIKey(apiKey string) string {
	if len(apiKey) <= 8 {
		return "***"
	}
	return apiKey[:4] + "..." + apiKey[len(apiKey)-4:]
}
