package gateway

import (
	"time"

	"github.com/amirasaad/retailpay/pkg/domain/session"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InitiateRequest opens a gateway session for a pending card payment.
type InitiateRequest struct {
	PaymentID string          `json:"payment_id" validate:"required,uuid"`
	Amount    decimal.Decimal `json:"amount"`
	ReturnURL string          `json:"return_url" validate:"required,url"`
}

// ConfirmRequest is the gateway's verdict on a session.
type ConfirmRequest struct {
	Approved bool   `json:"approved"`
	AuthCode string `json:"auth_code" validate:"max=64"`
}

// VoidRequest reverses a confirmed session.
type VoidRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

// SessionDTO is the API response representation of a gateway session.
type SessionDTO struct {
	ID          uuid.UUID       `json:"id"`
	PaymentID   uuid.UUID       `json:"payment_id"`
	Token       string          `json:"token"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	ReturnURL   string          `json:"return_url"`
	State       string          `json:"state"`
	AuthCode    string          `json:"auth_code,omitempty"`
	VoidReason  string          `json:"void_reason,omitempty"`
	RedirectURL string          `json:"redirect_url,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ToSessionDTO maps a session. redirect is only set while the session is
// waiting for the customer.
func ToSessionDTO(s *session.Session, redirect string) SessionDTO {
	return SessionDTO{
		ID:          s.ID,
		PaymentID:   s.PaymentID,
		Token:       s.Token,
		Amount:      s.Amount,
		Currency:    s.Currency,
		ReturnURL:   s.ReturnURL,
		State:       string(s.State),
		AuthCode:    s.AuthCode,
		VoidReason:  s.VoidReason,
		RedirectURL: redirect,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}
