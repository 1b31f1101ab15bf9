package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirasaad/retailpay/pkg/domain"
	"github.com/amirasaad/retailpay/pkg/service/ledger"
)

// EnsureSettlementAccount opens the account that receives transfer payments
// unless it already exists. An existing account must be in the settlement
// currency.
func (a *App) EnsureSettlementAccount(ctx context.Context) error {
	cfg := a.Config.Settlement
	logger := a.Deps.Logger.With("op", "EnsureSettlementAccount", "account_id", cfg.AccountID)

	acc, err := a.LedgerService.GetAccount(ctx, cfg.AccountID)
	switch {
	case err == nil:
		if acc.Currency != cfg.Currency {
			return fmt.Errorf("%w: settlement account %s is in %s, expected %s",
				domain.ErrValidation, acc.ID, acc.Currency, cfg.Currency)
		}
		logger.Debug("settlement account present", "balance", acc.Balance)
		return nil
	case !errors.Is(err, domain.ErrNotFound):
		return err
	}

	_, err = a.LedgerService.OpenAccount(ctx, ledger.OpenAccountInput{
		ID:       cfg.AccountID,
		ClientID: cfg.ClientID,
		Currency: cfg.Currency,
	})
	if errors.Is(err, domain.ErrConflict) {
		// Opened concurrently by another instance.
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("🚀 settlement account opened", "currency", cfg.Currency)
	return nil
}
