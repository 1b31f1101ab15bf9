package account

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType is the closed set of ledger movements.
type TransactionType string

const (
	TransactionTypeDeposit     TransactionType = "deposit"
	TransactionTypeWithdrawal  TransactionType = "withdrawal"
	TransactionTypeTransferOut TransactionType = "transfer_out"
	TransactionTypeTransferIn  TransactionType = "transfer_in"
	TransactionTypePayment     TransactionType = "payment"
	TransactionTypeReversal    TransactionType = "reversal"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal,
		TransactionTypeTransferOut, TransactionTypeTransferIn,
		TransactionTypePayment, TransactionTypeReversal:
		return true
	}
	return false
}

// IsCredit reports whether t increases the balance.
func (t TransactionType) IsCredit() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeTransferIn, TransactionTypeReversal:
		return true
	}
	return false
}

// Signed returns amount with the sign of t's effect on the balance.
func (t TransactionType) Signed(amount decimal.Decimal) decimal.Decimal {
	if t.IsCredit() {
		return amount
	}
	return amount.Neg()
}

// TransactionStatus is always completed: the ledger records finalized movements only.
type TransactionStatus string

const TransactionStatusCompleted TransactionStatus = "completed"

// Transaction is an immutable ledger row.
type Transaction struct {
	ID            uuid.UUID
	AccountID     uuid.UUID
	Type          TransactionType
	Amount        decimal.Decimal
	BalanceAfter  decimal.Decimal
	Status        TransactionStatus
	CounterpartID *uuid.UUID
	Description   string
	CreatedAt     time.Time
}

// NewTransaction records a completed movement against accountID.
func NewTransaction(
	accountID uuid.UUID,
	t TransactionType,
	amount, balanceAfter decimal.Decimal,
	description string,
) *Transaction {
	return &Transaction{
		ID:           uuid.New(),
		AccountID:    accountID,
		Type:         t,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		Status:       TransactionStatusCompleted,
		Description:  description,
		CreatedAt:    time.Now().UTC(),
	}
}

// Link cross-references the two halves of a transfer.
func Link(out, in *Transaction) {
	outID, inID := out.ID, in.ID
	out.CounterpartID = &inID
	in.CounterpartID = &outID
}

// SignedTotal returns the net balance effect of txs.
func SignedTotal(txs []*Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		if tx.Status != TransactionStatusCompleted {
			continue
		}
		total = total.Add(tx.Type.Signed(tx.Amount))
	}
	return total
}
