package provider

import (
	"context"
	"log/slog"
	"strings"
	"time"

	pkgcache "github.com/amirasaad/retailpay/pkg/cache"
	"github.com/amirasaad/retailpay/pkg/domain/money"
	"github.com/amirasaad/retailpay/pkg/provider"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// Converter is the FxClient. Rates come from the cache when fresh;
// concurrent misses for the same pair share one upstream call.
type Converter struct {
	source provider.RateSource
	cache  pkgcache.ExchangeRateCache
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewConverter creates a converter. cache may be nil.
func NewConverter(
	source provider.RateSource,
	cache pkgcache.ExchangeRateCache,
	ttl time.Duration,
	logger *slog.Logger,
) *Converter {
	return &Converter{source: source, cache: cache, ttl: ttl, logger: logger.With("provider", "fx")}
}

func cacheKey(from, to string) string { return "exchange_rate:" + from + "-" + to }

// Rate returns the rate for one unit of from expressed in to.
func (c *Converter) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	key := cacheKey(from, to)
	if c.cache != nil {
		if hit, err := c.cache.Get(ctx, key); err != nil {
			c.logger.Error("Error getting from cache", "key", key, "error", err)
		} else if hit != nil {
			return hit.Rate, nil
		}
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		rate, err := c.source.Rate(ctx, from, to)
		if err != nil {
			return decimal.Zero, err
		}
		if c.cache != nil {
			entry := &pkgcache.ExchangeRate{
				From:      from,
				To:        to,
				Rate:      rate,
				Source:    c.source.Name(),
				FetchedAt: time.Now().UTC(),
			}
			if err := c.cache.Set(ctx, key, entry, c.ttl); err != nil {
				c.logger.Error("Error setting cache", "key", key, "error", err)
			}
		}
		return rate, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	if shared {
		c.logger.Debug("rate fetch shared", "key", key)
	}
	return v.(decimal.Decimal), nil
}

// Convert implements provider.FxClient. The result keeps full precision;
// callers round at the point where an amount is stored.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if _, err := money.NormalizeCurrency(from); err != nil {
		return decimal.Zero, err
	}
	if _, err := money.NormalizeCurrency(to); err != nil {
		return decimal.Zero, err
	}
	rate, err := c.Rate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}

var _ provider.FxClient = (*Converter)(nil)
