package provider

import (
	"context"

	"github.com/shopspring/decimal"
)

// FxClient converts amounts between currencies.
type FxClient interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// RateSource fetches the current rate for one currency pair.
type RateSource interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
	Name() string
}
