package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/amirasaad/retailpay/pkg/domain"
	"github.com/amirasaad/retailpay/pkg/provider"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// ExchangeRateAPI is a RateSource backed by exchangerate-api.com v6.
// BaseURL should look like https://v6.exchangerate-api.com/v6.
type ExchangeRateAPI struct {
	client *resty.Client
	apiKey string
	logger *slog.Logger
}

// pairResponse is the v6 pair endpoint payload.
// See: https://www.exchangerate-api.com/docs/pair-conversion-requests
type pairResponse struct {
	Result             string          `json:"result"`
	BaseCode           string          `json:"base_code"`
	TargetCode         string          `json:"target_code"`
	ConversionRate     decimal.Decimal `json:"conversion_rate"`
	TimeLastUpdateUnix int64           `json:"time_last_update_unix"`
	ErrorType          string          `json:"error-type,omitempty"`
}

// NewExchangeRateAPI creates the exchangerate-api rate source.
func NewExchangeRateAPI(cfg HTTPConfig, logger *slog.Logger) *ExchangeRateAPI {
	return &ExchangeRateAPI{
		client: newRestyClient(cfg),
		apiKey: cfg.APIKey,
		logger: logger.With("provider", "exchangerate-api"),
	}
}

// Name implements provider.RateSource.
func (p *ExchangeRateAPI) Name() string { return "exchangerate-api" }

// Rate implements provider.RateSource.
func (p *ExchangeRateAPI) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	var out pairResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"key": p.apiKey, "from": from, "to": to}).
		SetResult(&out).
		SetError(&out).
		Get("/{key}/pair/{from}/{to}")
	if err := classify("exchange rate", resp, err); err != nil {
		if out.ErrorType == "unsupported-code" {
			return decimal.Zero, fmt.Errorf("%w: unsupported currency pair %s/%s", domain.ErrValidation, from, to)
		}
		p.logger.Warn("rate fetch failed", "from", from, "to", to, "error", err)
		return decimal.Zero, err
	}
	if out.Result != "success" || !out.ConversionRate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: exchange rate api result=%s error=%s",
			domain.ErrUnavailable, out.Result, out.ErrorType)
	}
	p.logger.Debug("rate fetched", "from", from, "to", to, "rate", out.ConversionRate)
	return out.ConversionRate, nil
}

var _ provider.RateSource = (*ExchangeRateAPI)(nil)
