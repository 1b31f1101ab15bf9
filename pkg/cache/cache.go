package cache

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRate is a cached conversion rate for one currency pair.
type ExchangeRate struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	Rate      decimal.Decimal `json:"rate"`
	Source    string          `json:"source"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// ExchangeRateCache defines the interface for caching exchange rates.
// Get returns nil without error on a miss.
type ExchangeRateCache interface {
	Get(ctx context.Context, key string) (*ExchangeRate, error)
	Set(ctx context.Context, key string, rate *ExchangeRate, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
