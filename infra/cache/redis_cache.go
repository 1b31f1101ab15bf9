package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	pkgcache "github.com/amirasaad/retailpay/pkg/cache"
	"github.com/redis/go-redis/v9"
)

// RedisExchangeRateCache implements ExchangeRateCache using Redis. Rates are
// stored as JSON under prefix+key with the entry's TTL.
type RedisExchangeRateCache struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// NewRedisExchangeRateCache creates a cache over an existing client.
func NewRedisExchangeRateCache(
	client redis.UniversalClient,
	prefix string,
	logger *slog.Logger,
) *RedisExchangeRateCache {
	return &RedisExchangeRateCache{client: client, prefix: prefix, logger: logger}
}

func (r *RedisExchangeRateCache) key(key string) string {
	return r.prefix + key
}

// Get implements ExchangeRateCache.
func (r *RedisExchangeRateCache) Get(ctx context.Context, key string) (*pkgcache.ExchangeRate, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		r.logger.Debug("Redis cache miss", "key", key)
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Redis cache get error", "key", key, "error", err)
		return nil, err
	}
	var rate pkgcache.ExchangeRate
	if err := json.Unmarshal(val, &rate); err != nil {
		r.logger.Error("Redis cache unmarshal error", "key", key, "error", err)
		return nil, err
	}
	r.logger.Debug("Redis cache hit", "key", key, "rate", rate.Rate)
	return &rate, nil
}

// Set implements ExchangeRateCache.
func (r *RedisExchangeRateCache) Set(
	ctx context.Context,
	key string,
	rate *pkgcache.ExchangeRate,
	ttl time.Duration,
) error {
	data, err := json.Marshal(rate)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(key), data, ttl).Err(); err != nil {
		r.logger.Error("Redis cache set error", "key", key, "error", err)
		return err
	}
	r.logger.Debug("Redis cache set", "key", key, "rate", rate.Rate, "ttl", ttl)
	return nil
}

// Delete implements ExchangeRateCache.
func (r *RedisExchangeRateCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		r.logger.Error("Redis cache delete error", "key", key, "error", err)
		return err
	}
	return nil
}

var _ pkgcache.ExchangeRateCache = (*RedisExchangeRateCache)(nil)
