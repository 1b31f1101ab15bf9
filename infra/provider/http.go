// Package provider holds the clients for the external collaborators: the
// inventory service and the exchange rate API, plus in-process stand-ins
// used in development and tests.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/amirasaad/retailpay/pkg/domain"
	"github.com/go-resty/resty/v2"
)

// HTTPConfig configures a resty client for one collaborator.
type HTTPConfig struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	APIKey     string
}

func newRestyClient(cfg HTTPConfig) *resty.Client {
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r.StatusCode() >= http.StatusInternalServerError
		})
	if cfg.Timeout > 0 {
		c.SetTimeout(cfg.Timeout)
	}
	return c
}

// classify turns a transport failure or an unexpected status into a
// domain error. Timeouts and 5xx/429 are retryable; other 4xx are not.
func classify(op string, resp *resty.Response, err error) error {
	if err != nil {
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			return fmt.Errorf("%w: %s: %v", domain.ErrTimeout, op, err)
		}
		return fmt.Errorf("%w: %s: %v", domain.ErrUnavailable, op, err)
	}
	code := resp.StatusCode()
	switch {
	case code < http.StatusBadRequest:
		return nil
	case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s: status %d", domain.ErrUnavailable, op, code)
	default:
		return fmt.Errorf("%w: %s: status %d: %s", domain.ErrValidation, op, code, resp.String())
	}
}
