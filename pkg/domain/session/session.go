// Package session models a payment attempt at the external card gateway.
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/amirasaad/retailpay/pkg/domain"
	"github.com/amirasaad/retailpay/pkg/domain/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrSessionNotFound is returned for an unknown session id or token.
	ErrSessionNotFound = fmt.Errorf("gateway session %w", domain.ErrNotFound)
	// ErrActiveSessionExists is returned when a payment already has an initiated or confirmed session.
	ErrActiveSessionExists = fmt.Errorf("%w: payment already has an active gateway session", domain.ErrConflict)
	// ErrInvalidTransition is returned when the session is not in a state that allows the operation.
	ErrInvalidTransition = fmt.Errorf("%w: gateway session transition not allowed", domain.ErrInvalidState)
)

// State of a gateway session. Initiated is initial; Failed and Voided are terminal.
type State string

const (
	StateInitiated State = "initiated"
	StateConfirmed State = "confirmed"
	StateFailed    State = "failed"
	StateVoided    State = "voided"
)

var transitions = map[State][]State{
	StateInitiated: {StateConfirmed, StateFailed},
	StateConfirmed: {StateVoided},
}

// CanTransition reports whether a session may move from one state to another.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsActive reports whether s counts toward the one-active-session-per-payment rule.
func (s State) IsActive() bool {
	return s == StateInitiated || s == StateConfirmed
}

// Session is the local record of a single card gateway attempt.
type Session struct {
	ID         uuid.UUID
	PaymentID  uuid.UUID
	Token      string
	Amount     decimal.Decimal
	Currency   string
	ReturnURL  string
	State      State
	AuthCode   string
	VoidReason string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// New creates an initiated session with a fresh opaque token.
func New(paymentID uuid.UUID, amount decimal.Decimal, currency, returnURL string) (*Session, error) {
	if paymentID == uuid.Nil {
		return nil, fmt.Errorf("%w: payment id is required", domain.ErrValidation)
	}
	if err := money.ValidateAmount(amount); err != nil {
		return nil, err
	}
	code, err := money.NormalizeCurrency(currency)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.New(),
		PaymentID: paymentID,
		Token:     NewToken(),
		Amount:    amount,
		Currency:  code,
		ReturnURL: returnURL,
		State:     StateInitiated,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NewToken returns a random 32 character hex token.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ConfirmTarget returns the state a confirmation moves an initiated session to.
func ConfirmTarget(approved bool) State {
	if approved {
		return StateConfirmed
	}
	return StateFailed
}
