package account

import (
	"fmt"
	"time"

	"github.com/amirasaad/retailpay/pkg/domain"
	"github.com/amirasaad/retailpay/pkg/domain/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrAccountNotFound is returned when an account cannot be found.
	ErrAccountNotFound = fmt.Errorf("account %w", domain.ErrNotFound)
	// ErrAccountInactive is returned when a money movement targets an account that is not active.
	ErrAccountInactive = fmt.Errorf("%w: account is not active", domain.ErrInvalidState)
	// ErrAccountClosed is returned for any mutation of a closed account.
	ErrAccountClosed = fmt.Errorf("%w: account is closed", domain.ErrInvalidState)
	// ErrInvalidStatusTransition is returned when the requested status change is not allowed.
	ErrInvalidStatusTransition = fmt.Errorf("%w: status transition not allowed", domain.ErrInvalidState)
	// ErrNonZeroBalance is returned when closing an account that still holds funds.
	ErrNonZeroBalance = fmt.Errorf("%w: account balance must be zero to close", domain.ErrInvalidState)
	// ErrInsufficientFunds is returned when a debit exceeds the balance.
	ErrInsufficientFunds = fmt.Errorf("account: %w", domain.ErrInsufficientFunds)
	// ErrCannotTransferToSameAccount is returned when a transfer names the same account twice.
	ErrCannotTransferToSameAccount = fmt.Errorf("%w: cannot transfer to same account", domain.ErrValidation)
	// ErrCurrencyMismatch is returned when two accounts in one movement hold different currencies.
	ErrCurrencyMismatch = fmt.Errorf("%w: currency mismatch", domain.ErrValidation)
	// ErrUnknownTransactionType is returned for a transaction type outside the closed set.
	ErrUnknownTransactionType = fmt.Errorf("%w: unknown transaction type", domain.ErrValidation)
)

// Status is the lifecycle state of an account.
type Status string

const (
	StatusActive  Status = "active"
	StatusBlocked Status = "blocked"
	StatusClosed  Status = "closed"
)

var statusTransitions = map[Status][]Status{
	StatusActive:  {StatusBlocked, StatusClosed},
	StatusBlocked: {StatusActive, StatusClosed},
	StatusClosed:  {},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// CanTransitionTo reports whether an account in s may move to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Account is a currency-denominated balance owned by a client.
//
// Invariants:
//   - Balance equals the signed sum of the account's completed transactions.
//   - Balance never goes below zero.
//   - Debits require an active account; reversal credits are accepted while blocked.
type Account struct {
	ID        uuid.UUID
	ClientID  uuid.UUID
	Currency  string
	Balance   decimal.Decimal
	Status    Status
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New opens an active account with a zero balance.
func New(clientID uuid.UUID, currency string) (*Account, error) {
	return NewWithID(uuid.New(), clientID, currency)
}

// NewWithID opens an active account under a caller supplied id.
func NewWithID(id, clientID uuid.UUID, currency string) (*Account, error) {
	if clientID == uuid.Nil {
		return nil, fmt.Errorf("%w: client id is required", domain.ErrValidation)
	}
	code, err := money.NormalizeCurrency(currency)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Account{
		ID:        id,
		ClientID:  clientID,
		Currency:  code,
		Balance:   decimal.Zero,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Apply validates a movement of type t against the account and updates the
// balance in place. It returns the resulting balance.
func (a *Account) Apply(t TransactionType, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := money.ValidateAmount(amount); err != nil {
		return a.Balance, err
	}
	if !t.Valid() {
		return a.Balance, ErrUnknownTransactionType
	}
	switch a.Status {
	case StatusClosed:
		return a.Balance, ErrAccountClosed
	case StatusBlocked:
		if t != TransactionTypeReversal {
			return a.Balance, ErrAccountInactive
		}
	}

	next := a.Balance.Add(t.Signed(amount))
	if next.IsNegative() {
		return a.Balance, ErrInsufficientFunds
	}
	a.Balance = next
	a.UpdatedAt = time.Now().UTC()
	return next, nil
}

// Transition moves the account to next, enforcing the status machine.
func (a *Account) Transition(next Status) error {
	if a.Status == next {
		return nil
	}
	if !a.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, a.Status, next)
	}
	if next == StatusClosed && !a.Balance.IsZero() {
		return ErrNonZeroBalance
	}
	a.Status = next
	a.UpdatedAt = time.Now().UTC()
	return nil
}
