package account

import (
	"time"

	"github.com/amirasaad/retailpay/pkg/domain/account"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OpenAccountRequest represents the request body for opening an account.
type OpenAccountRequest struct {
	ClientID string `json:"client_id" validate:"required,uuid"`
	Currency string `json:"currency" validate:"required,len=3,alpha"`
}

// AmountRequest is the body of a deposit or withdrawal.
type AmountRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=255"`
}

// TransferRequest represents the request body for transferring funds between accounts.
type TransferRequest struct {
	FromID      string          `json:"from_id" validate:"required,uuid"`
	ToID        string          `json:"to_id" validate:"required,uuid,nefield=FromID"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=255"`
}

// AccountDTO is the API response representation of an account.
type AccountDTO struct {
	ID        uuid.UUID       `json:"id"`
	ClientID  uuid.UUID       `json:"client_id"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	Status    string          `json:"status"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TransactionDTO is the API response representation of a transaction.
type TransactionDTO struct {
	ID            uuid.UUID       `json:"id"`
	AccountID     uuid.UUID       `json:"account_id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Status        string          `json:"status"`
	CounterpartID *uuid.UUID      `json:"counterpart_id,omitempty"`
	Description   string          `json:"description,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// MovementDTO is a single deposit or withdrawal with the resulting balance.
type MovementDTO struct {
	Transaction TransactionDTO  `json:"transaction"`
	Balance     decimal.Decimal `json:"balance"`
}

// TransferDTO holds both legs of a transfer.
type TransferDTO struct {
	Out TransactionDTO `json:"out"`
	In  TransactionDTO `json:"in"`
}

func toAccountDTO(a *account.Account) AccountDTO {
	return AccountDTO{
		ID:        a.ID,
		ClientID:  a.ClientID,
		Currency:  a.Currency,
		Balance:   a.Balance,
		Status:    string(a.Status),
		Version:   a.Version,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toTransactionDTO(t *account.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:            t.ID,
		AccountID:     t.AccountID,
		Type:          string(t.Type),
		Amount:        t.Amount,
		BalanceAfter:  t.BalanceAfter,
		Status:        string(t.Status),
		CounterpartID: t.CounterpartID,
		Description:   t.Description,
		CreatedAt:     t.CreatedAt,
	}
}
