// Package ledger provides the account ledger service: deposits, withdrawals,
// transfers and the charge/refund movements used to settle order payments.
//
// Every call runs inside a unit of work and is bounded by the configured
// ledger timeout. Balances only change through the ledger store, which takes
// a row lock on each touched account for the read-modify-write.
package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/amirasaad/retailpay/pkg/domain/account"
	"github.com/amirasaad/retailpay/pkg/domain/money"
	"github.com/amirasaad/retailpay/pkg/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service moves money between ledger accounts.
type Service struct {
	uow     repository.UnitOfWork
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a ledger service. A zero timeout leaves calls bounded only by
// the caller's context.
func New(uow repository.UnitOfWork, timeout time.Duration, logger *slog.Logger) *Service {
	return &Service{uow: uow, timeout: timeout, logger: logger}
}

// WithUnitOfWork returns a copy of the service bound to u. Used by callers
// that need ledger writes to commit or roll back with their own transaction.
func (s *Service) WithUnitOfWork(u repository.UnitOfWork) *Service {
	c := *s
	c.uow = u
	return &c
}

// OpenAccountInput describes a new account. ID is optional.
type OpenAccountInput struct {
	ID       uuid.UUID
	ClientID uuid.UUID
	Currency string
}

// Result is a single ledger movement and the balance it left behind.
type Result struct {
	Transaction *account.Transaction
	Balance     decimal.Decimal
}

// TransferResult holds both sides of a transfer.
type TransferResult struct {
	Out *account.Transaction
	In  *account.Transaction
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Service) store(ctx context.Context, fn func(store repository.LedgerStore) error) error {
	return s.uow.Do(ctx, func(u repository.UnitOfWork) error {
		store, err := u.LedgerStore()
		if err != nil {
			return err
		}
		return fn(store)
	})
}

// OpenAccount creates an active account with a zero balance.
func (s *Service) OpenAccount(ctx context.Context, in OpenAccountInput) (*account.Account, error) {
	logger := s.logger.With("op", "OpenAccount", "client_id", in.ClientID, "currency", in.Currency)
	id := in.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	a, err := account.NewWithID(id, in.ClientID, in.Currency)
	if err != nil {
		logger.Warn("OpenAccount rejected", "error", err)
		return nil, err
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.store(ctx, func(store repository.LedgerStore) error {
		return store.CreateAccount(ctx, a)
	}); err != nil {
		logger.Error("OpenAccount failed", "error", err)
		return nil, err
	}
	logger.Info("✅ account opened", "account_id", a.ID)
	return a, nil
}

// GetAccount returns the account with its current balance.
func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (a *account.Account, err error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	err = s.store(ctx, func(store repository.LedgerStore) error {
		a, err = store.GetAccount(ctx, id)
		return err
	})
	return
}

// ListTransactions returns the account's movements, newest first.
func (s *Service) ListTransactions(
	ctx context.Context,
	id uuid.UUID,
	limit, offset int,
) (txs []*account.Transaction, err error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	err = s.store(ctx, func(store repository.LedgerStore) error {
		if _, err := store.GetAccount(ctx, id); err != nil {
			return err
		}
		txs, err = store.ListTransactions(ctx, id, limit, offset)
		return err
	})
	return
}

func (s *Service) append(
	ctx context.Context,
	op string,
	id uuid.UUID,
	t account.TransactionType,
	amount decimal.Decimal,
	description string,
) (*Result, error) {
	logger := s.logger.With("op", op, "account_id", id, "amount", amount.StringFixed(money.Scale))
	if err := money.ValidateAmount(amount); err != nil {
		logger.Warn(op+" rejected", "error", err)
		return nil, err
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var res Result
	err := s.store(ctx, func(store repository.LedgerStore) error {
		txn, balance, err := store.AppendTransaction(ctx, id, t, amount, description)
		if err != nil {
			return err
		}
		res = Result{Transaction: txn, Balance: balance}
		return nil
	})
	if err != nil {
		logger.Error(op+" failed", "error", err)
		return nil, err
	}
	logger.Info(op+" completed", "balance", res.Balance.StringFixed(money.Scale))
	return &res, nil
}

// Deposit credits an active account.
func (s *Service) Deposit(ctx context.Context, id uuid.UUID, amount decimal.Decimal, description string) (*Result, error) {
	return s.append(ctx, "Deposit", id, account.TransactionTypeDeposit, amount, description)
}

// Withdraw debits an active account. It fails with ErrInsufficientFunds
// when the balance does not cover amount.
func (s *Service) Withdraw(ctx context.Context, id uuid.UUID, amount decimal.Decimal, description string) (*Result, error) {
	return s.append(ctx, "Withdraw", id, account.TransactionTypeWithdrawal, amount, description)
}

// Charge debits an active account to settle a payment.
func (s *Service) Charge(ctx context.Context, id uuid.UUID, amount decimal.Decimal, description string) (*Result, error) {
	return s.append(ctx, "Charge", id, account.TransactionTypePayment, amount, description)
}

// Refund credits back a previous charge. Blocked accounts accept refunds.
func (s *Service) Refund(ctx context.Context, id uuid.UUID, amount decimal.Decimal, description string) (*Result, error) {
	return s.append(ctx, "Refund", id, account.TransactionTypeReversal, amount, description)
}

// Transfer moves amount from one account to another as a linked pair.
func (s *Service) Transfer(
	ctx context.Context,
	fromID, toID uuid.UUID,
	amount decimal.Decimal,
	description string,
) (*TransferResult, error) {
	logger := s.logger.With("op", "Transfer", "from", fromID, "to", toID, "amount", amount.StringFixed(money.Scale))
	if fromID == toID {
		return nil, account.ErrCannotTransferToSameAccount
	}
	if err := money.ValidateAmount(amount); err != nil {
		logger.Warn("Transfer rejected", "error", err)
		return nil, err
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var res TransferResult
	err := s.store(ctx, func(store repository.LedgerStore) error {
		out, in, err := store.AppendLinkedPair(ctx, fromID, toID, amount, description)
		if err != nil {
			return err
		}
		res = TransferResult{Out: out, In: in}
		return nil
	})
	if err != nil {
		logger.Error("Transfer failed", "error", err)
		return nil, err
	}
	logger.Info("Transfer completed", "out_tx", res.Out.ID, "in_tx", res.In.ID)
	return &res, nil
}

func (s *Service) setStatus(ctx context.Context, id uuid.UUID, status account.Status) (a *account.Account, err error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	err = s.store(ctx, func(store repository.LedgerStore) error {
		a, err = store.SetAccountStatus(ctx, id, status)
		return err
	})
	if err != nil {
		s.logger.Warn("account status change failed", "account_id", id, "status", status, "error", err)
		return nil, err
	}
	s.logger.Info("account status changed", "account_id", id, "status", status)
	return a, nil
}

// Block stops deposits, withdrawals and transfers on the account.
func (s *Service) Block(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	return s.setStatus(ctx, id, account.StatusBlocked)
}

// Activate re-opens a blocked account.
func (s *Service) Activate(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	return s.setStatus(ctx, id, account.StatusActive)
}

// Close permanently closes an account with a zero balance.
func (s *Service) Close(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	return s.setStatus(ctx, id, account.StatusClosed)
}
