package order

import (
	"fmt"
	"time"

	"github.com/amirasaad/retailpay/pkg/domain"
	"github.com/amirasaad/retailpay/pkg/domain/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrPaymentNotFound is returned when a payment cannot be found.
	ErrPaymentNotFound = fmt.Errorf("payment %w", domain.ErrNotFound)
	// ErrPaymentTransition is returned when a payment status change is not allowed.
	ErrPaymentTransition = fmt.Errorf("%w: payment status transition not allowed", domain.ErrInvalidState)
	// ErrInvalidPaymentMethod is returned for an unknown payment method.
	ErrInvalidPaymentMethod = fmt.Errorf("%w: unknown payment method", domain.ErrValidation)
	// ErrSourceAccountRequired is returned when a debit or transfer names no account.
	ErrSourceAccountRequired = fmt.Errorf("%w: source account is required for this payment method", domain.ErrValidation)
	// ErrAmountExceedsOutstanding is returned when a payment is larger than what is left to pay.
	ErrAmountExceedsOutstanding = fmt.Errorf("%w: payment exceeds outstanding amount", domain.ErrValidation)
)

// Method of payment.
type Method string

const (
	MethodCash     Method = "cash"
	MethodDebit    Method = "debit"
	MethodCredit   Method = "credit"
	MethodTransfer Method = "transfer"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodDebit, MethodCredit, MethodTransfer:
		return true
	}
	return false
}

// UsesLedger reports whether m settles through the account ledger.
func (m Method) UsesLedger() bool {
	return m == MethodDebit || m == MethodTransfer
}

// PaymentStatus of a single payment attempt.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentRejected  PaymentStatus = "rejected"
	PaymentVoided    PaymentStatus = "voided"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:   {PaymentCompleted, PaymentRejected},
	PaymentCompleted: {PaymentVoided},
}

// CanTransitionPayment reports whether a payment may move between statuses.
func CanTransitionPayment(from, to PaymentStatus) bool {
	for _, s := range paymentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Payment is one attempt to settle (part of) an order.
type Payment struct {
	ID              uuid.UUID
	OrderID         uuid.UUID
	Method          Method
	Amount          decimal.Decimal
	SourceAccountID *uuid.UUID
	ProcessorRef    string
	Status          PaymentStatus
	FailureReason   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewPayment creates a pending payment for orderID.
func NewPayment(orderID uuid.UUID, method Method, amount decimal.Decimal, source *uuid.UUID) (*Payment, error) {
	if !method.Valid() {
		return nil, ErrInvalidPaymentMethod
	}
	if err := money.ValidateAmount(amount); err != nil {
		return nil, err
	}
	if method.UsesLedger() && (source == nil || *source == uuid.Nil) {
		return nil, ErrSourceAccountRequired
	}
	now := time.Now().UTC()
	return &Payment{
		ID:              uuid.New(),
		OrderID:         orderID,
		Method:          method,
		Amount:          amount,
		SourceAccountID: source,
		Status:          PaymentPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (p *Payment) transition(next PaymentStatus) error {
	if !CanTransitionPayment(p.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrPaymentTransition, p.Status, next)
	}
	p.Status = next
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete marks the payment settled with the processor reference.
func (p *Payment) Complete(ref string) error {
	if err := p.transition(PaymentCompleted); err != nil {
		return err
	}
	p.ProcessorRef = ref
	return nil
}

// Reject marks the payment failed.
func (p *Payment) Reject(reason string) error {
	if err := p.transition(PaymentRejected); err != nil {
		return err
	}
	p.FailureReason = reason
	return nil
}

// Void reverses a completed payment.
func (p *Payment) Void(reason string) error {
	if err := p.transition(PaymentVoided); err != nil {
		return err
	}
	p.FailureReason = reason
	return nil
}

// SumCompleted adds the amounts of completed payments.
func SumCompleted(payments []*Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if p.Status == PaymentCompleted {
			total = total.Add(p.Amount)
		}
	}
	return total
}

// HasCompleted reports whether any payment other than except is completed.
func HasCompleted(payments []*Payment, except uuid.UUID) bool {
	for _, p := range payments {
		if p.ID != except && p.Status == PaymentCompleted {
			return true
		}
	}
	return false
}
