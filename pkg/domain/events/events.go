package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is anything published on the event bus.
type Event interface {
	Type() string
}

// EventType represents the type of an event in the system.
type EventType string

const (
	EventTypeGatewaySessionConfirmed EventType = "GatewaySession.Confirmed"
	EventTypeGatewaySessionVoided    EventType = "GatewaySession.Voided"
	EventTypeOrderStatusChanged      EventType = "Order.StatusChanged"
	EventTypeInventorySyncFailed     EventType = "Order.InventorySyncFailed"
)

// GatewaySessionConfirmed is published after a session leaves initiated,
// whether the card was approved or declined.
type GatewaySessionConfirmed struct {
	SessionID  uuid.UUID `json:"session_id"`
	PaymentID  uuid.UUID `json:"payment_id"`
	Approved   bool      `json:"approved"`
	AuthCode   string    `json:"auth_code,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e GatewaySessionConfirmed) Type() string { return string(EventTypeGatewaySessionConfirmed) }

// GatewaySessionVoided is published after a confirmed session is voided.
type GatewaySessionVoided struct {
	SessionID  uuid.UUID `json:"session_id"`
	PaymentID  uuid.UUID `json:"payment_id"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e GatewaySessionVoided) Type() string { return string(EventTypeGatewaySessionVoided) }

// OrderStatusChanged is published after an order status change commits.
type OrderStatusChanged struct {
	OrderID    uuid.UUID `json:"order_id"`
	OrderCode  string    `json:"order_code"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e OrderStatusChanged) Type() string { return string(EventTypeOrderStatusChanged) }

// InventorySyncFailed is published when the post-approval stock decrement
// could not be completed.
type InventorySyncFailed struct {
	OrderID    uuid.UUID `json:"order_id"`
	OrderCode  string    `json:"order_code"`
	Attempts   int       `json:"attempts"`
	Error      string    `json:"error"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e InventorySyncFailed) Type() string { return string(EventTypeInventorySyncFailed) }
