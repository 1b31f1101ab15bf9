package order

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
	// ErrOrderNotFound is returned when an order cannot be found.
	ErrOrderNotFound = fmt.Errorf("order %w", domain.ErrNotFound)
	// ErrInvalidTransition is returned when an order status change is not allowed.
	ErrInvalidTransition = fmt.Errorf("%w: order status transition not allowed", domain.ErrInvalidState)
	// ErrNotCancellable is returned when cancelling an order that has left pending.
	ErrNotCancellable = fmt.Errorf("%w: only pending orders can be cancelled", domain.ErrInvalidState)
	// ErrPaymentInFlight is returned when voiding an order with a pending payment.
	ErrPaymentInFlight = fmt.Errorf("%w: order has a pending payment", domain.ErrInvalidState)
	// ErrNotPayable is returned when adding a payment to an order that no longer accepts them.
	ErrNotPayable = fmt.Errorf("%w: order does not accept payments", domain.ErrInvalidState)
	// ErrNoItems is returned when an order has no line items.
	ErrNoItems = fmt.Errorf("%w: order must have at least one item", domain.ErrValidation)
	// ErrInvalidQuantity is returned for a non-positive line quantity.
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be positive", domain.ErrValidation)
	// ErrInvalidDeliveryMethod is returned for an unknown delivery method.
	ErrInvalidDeliveryMethod = fmt.Errorf("%w: unknown delivery method", domain.ErrValidation)
)

// Status of an order. Cancelled, Voided and Delivered are terminal.
type Status string

const (
	StatusPending       Status = "pending"
	StatusProcessing    Status = "processing"
	StatusApproved      Status = "approved"
	StatusPartiallyPaid Status = "partially_paid"
	StatusRejected      Status = "rejected"
	StatusCancelled     Status = "cancelled"
	StatusVoided        Status = "voided"
	StatusDelivered     Status = "delivered"
)

var transitions = map[Status][]Status{
	StatusPending:       {StatusProcessing, StatusApproved, StatusPartiallyPaid, StatusRejected, StatusCancelled, StatusVoided},
	StatusProcessing:    {StatusPending, StatusApproved, StatusPartiallyPaid, StatusRejected, StatusVoided},
	StatusPartiallyPaid: {StatusApproved, StatusPending, StatusVoided},
	StatusApproved:      {StatusPartiallyPaid, StatusPending, StatusDelivered, StatusVoided},
	StatusRejected:      {StatusProcessing, StatusApproved, StatusPartiallyPaid, StatusPending, StatusVoided},
}

// CanTransition reports whether an order may move from one status to another.
// Staying in the same status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AcceptsPayments reports whether new payment attempts may be added in s.
func (s Status) AcceptsPayments() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusPartiallyPaid, StatusRejected:
		return true
	}
	return false
}

// DeliveryMethod decides whether shipping is charged.
type DeliveryMethod string

const (
	DeliveryPickup   DeliveryMethod = "pickup"
	DeliveryShipping DeliveryMethod = "delivery"
)

// Valid reports whether m is a known delivery method.
func (m DeliveryMethod) Valid() bool {
	return m == DeliveryPickup || m == DeliveryShipping
}

// InventorySync tracks the post-approval stock decrement.
type InventorySync string

const (
	InventoryNotTriggered InventorySync = "none"
	InventoryPending      InventorySync = "pending"
	InventorySynced       InventorySync = "synced"
	InventoryFailed       InventorySync = "failed"
	InventoryManualReview InventorySync = "manual_review"
)

// Item is an order line. Product and price are owned by inventory; the
// unit price is the converted price cached at order creation.
type Item struct {
	ID                   uuid.UUID
	OrderID              uuid.UUID
	ProductID            string
	Quantity             int
	UnitPrice            decimal.Decimal
	LineTotal            decimal.Decimal
	InventoryDecremented bool
}

// Order groups line items with immutable totals and a derived payment status.
type Order struct {
	ID                 uuid.UUID
	Code               string
	ClientID           uuid.UUID
	BranchID           string
	Items              []*Item
	DeliveryMethod     DeliveryMethod
	Subtotal           decimal.Decimal
	Tax                decimal.Decimal
	Shipping           decimal.Decimal
	Total              decimal.Decimal
	Currency           string
	SourceCurrency     string
	FxRate             decimal.Decimal
	Status             Status
	InventoryTriggered bool
	InventorySync      InventorySync
	InventoryAttempts  int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// LineInput is a requested line before pricing.
type LineInput struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Pricing holds the settlement-side parameters used to compute totals.
type Pricing struct {
	Currency       string
	SourceCurrency string
	FxRate         decimal.Decimal
	TaxRate        decimal.Decimal
	ShippingFee    decimal.Decimal
}

// New builds a pending order and computes its totals. Unit prices are
// multiplied by pricing.FxRate and rounded before any sum is taken.
func New(
	clientID uuid.UUID,
	branchID string,
	delivery DeliveryMethod,
	lines []LineInput,
	pricing Pricing,
) (*Order, error) {
	if clientID == uuid.Nil {
		return nil, fmt.Errorf("%w: client id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(branchID) == "" {
		return nil, fmt.Errorf("%w: branch id is required", domain.ErrValidation)
	}
	if !delivery.Valid() {
		return nil, ErrInvalidDeliveryMethod
	}
	if len(lines) == 0 {
		return nil, ErrNoItems
	}
	rate := pricing.FxRate
	if rate.IsZero() {
		rate = decimal.NewFromInt(1)
	}

	o := &Order{
		ID:             uuid.New(),
		ClientID:       clientID,
		BranchID:       branchID,
		DeliveryMethod: delivery,
		Currency:       pricing.Currency,
		SourceCurrency: pricing.SourceCurrency,
		FxRate:         rate,
		Status:         StatusPending,
		InventorySync:  InventoryNotTriggered,
	}
	o.Code = NewCode(o.ID, time.Now().UTC())

	subtotal := decimal.Zero
	for _, l := range lines {
		if strings.TrimSpace(l.ProductID) == "" {
			return nil, fmt.Errorf("%w: product id is required", domain.ErrValidation)
		}
		if l.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if err := money.ValidateAmount(l.UnitPrice); err != nil {
			return nil, err
		}
		unit := money.Round(l.UnitPrice.Mul(rate))
		line := unit.Mul(decimal.NewFromInt(int64(l.Quantity)))
		o.Items = append(o.Items, &Item{
			ID:        uuid.New(),
			OrderID:   o.ID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: unit,
			LineTotal: line,
		})
		subtotal = subtotal.Add(line)
	}

	o.Subtotal = subtotal
	o.Tax = money.Round(subtotal.Mul(pricing.TaxRate))
	if delivery == DeliveryShipping {
		o.Shipping = money.Round(pricing.ShippingFee)
	} else {
		o.Shipping = decimal.Zero
	}
	o.Total = money.Sum(o.Subtotal, o.Tax, o.Shipping)
	if !o.Total.IsPositive() {
		return nil, fmt.Errorf("%w: order total must be positive", domain.ErrValidation)
	}
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	return o, nil
}

// NewCode returns a human readable order code such as ORD-20260105-1A2B3C.
func NewCode(id uuid.UUID, at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))[:6]
	return fmt.Sprintf("ORD-%s-%s", at.Format("20060102"), suffix)
}

// TransitionTo moves the order to next, enforcing the status machine.
func (o *Order) TransitionTo(next Status) error {
	if !CanTransition(o.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	if o.Status != next {
		o.Status = next
		o.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// MarkApproved flags the one-time inventory decrement. It reports whether
// this call set the flag.
func (o *Order) MarkApproved() bool {
	if o.Status != StatusApproved || o.InventoryTriggered {
		return false
	}
	o.InventoryTriggered = true
	o.InventorySync = InventoryPending
	return true
}

// PendingItems returns the line items whose stock has not been decremented.
func (o *Order) PendingItems() []*Item {
	var out []*Item
	for _, it := range o.Items {
		if !it.InventoryDecremented {
			out = append(out, it)
		}
	}
	return out
}

// DeriveStatus maps the sum of completed payments onto a paid status.
// It reports false when nothing has been paid and the caller decides.
func DeriveStatus(sumCompleted, total decimal.Decimal) (Status, bool) {
	switch {
	case sumCompleted.GreaterThanOrEqual(total):
		return StatusApproved, true
	case sumCompleted.IsPositive():
		return StatusPartiallyPaid, true
	default:
		return "", false
	}
}
