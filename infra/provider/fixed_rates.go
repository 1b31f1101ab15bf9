package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/amirasaad/retailpay/pkg/domain"
	"github.com/amirasaad/retailpay/pkg/provider"
	"github.com/shopspring/decimal"
)

// FixedRates is a RateSource with a static table, keyed "FROM:TO". The
// inverse of a listed pair is derived when only one direction is given.
type FixedRates map[string]decimal.Decimal

// DefaultFixedRates are the development rates used when no API key is set.
func DefaultFixedRates() FixedRates {
	return FixedRates{
		"EUR:USD": decimal.RequireFromString("1.08"),
		"GBP:USD": decimal.RequireFromString("1.27"),
		"USD:JPY": decimal.RequireFromString("149.50"),
		"USD:MXN": decimal.RequireFromString("17.10"),
	}
}

// Name implements provider.RateSource.
func (f FixedRates) Name() string { return "fixed" }

// Rate implements provider.RateSource.
func (f FixedRates) Rate(_ context.Context, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if r, ok := f[from+":"+to]; ok {
		return r, nil
	}
	if r, ok := f[to+":"+from]; ok && r.IsPositive() {
		return decimal.NewFromInt(1).DivRound(r, 8), nil
	}
	return decimal.Zero, fmt.Errorf("%w: unsupported currency pair %s/%s", domain.ErrValidation, from, to)
}

var _ provider.RateSource = FixedRates(nil)

// ParseFixedRates reads a table such as "EUR/USD=1.08,GBP/USD=1.27".
// An empty string yields DefaultFixedRates.
func ParseFixedRates(s string) (FixedRates, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultFixedRates(), nil
	}
	rates := FixedRates{}
	for _, entry := range strings.Split(s, ",") {
		pair, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		from, to, okPair := strings.Cut(pair, "/")
		if !ok || !okPair || len(from) != 3 || len(to) != 3 {
			return nil, fmt.Errorf("%w: malformed rate %q", domain.ErrValidation, entry)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil || !rate.IsPositive() {
			return nil, fmt.Errorf("%w: malformed rate %q", domain.ErrValidation, entry)
		}
		rates[strings.ToUpper(from)+":"+strings.ToUpper(to)] = rate
	}
	return rates, nil
}
