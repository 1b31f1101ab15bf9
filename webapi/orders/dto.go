package orders

import (
	"time"

	"github.com/amirasaad/retailpay/pkg/domain/order"
	"github.com/amirasaad/retailpay/pkg/service/reconciler"
	"github.com/amirasaad/retailpay/webapi/gateway"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//revive:disable

// LineRequest is one requested line item. UnitPrice is in the order's
// currency.
type LineRequest struct {
	ProductID string          `json:"product_id" validate:"required,max=64"`
	Quantity  int             `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// PaymentRequest describes a payment attempt. An omitted amount pays the
// outstanding balance.
type PaymentRequest struct {
	Method          string          `json:"method" validate:"required,oneof=cash debit credit transfer"`
	Amount          decimal.Decimal `json:"amount"`
	SourceAccountID string          `json:"source_account_id" validate:"omitempty,uuid"`
	ReturnURL       string          `json:"return_url" validate:"omitempty,url"`
}

// CreateOrderRequest represents the request body for placing an order.
type CreateOrderRequest struct {
	ClientID       string         `json:"client_id" validate:"required,uuid"`
	BranchID       string         `json:"branch_id" validate:"required,max=64"`
	Currency       string         `json:"currency" validate:"omitempty,len=3,alpha"`
	DeliveryMethod string         `json:"delivery_method" validate:"required,oneof=pickup delivery"`
	Items          []LineRequest  `json:"items" validate:"required,min=1,dive"`
	Payment        PaymentRequest `json:"payment" validate:"required"`
}

// ReasonRequest carries the reason for a void.
type ReasonRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

//revive:enable

// ItemDTO is the API response representation of a line item.
type ItemDTO struct {
	ID                   uuid.UUID       `json:"id"`
	ProductID            string          `json:"product_id"`
	Quantity             int             `json:"quantity"`
	UnitPrice            decimal.Decimal `json:"unit_price"`
	LineTotal            decimal.Decimal `json:"line_total"`
	InventoryDecremented bool            `json:"inventory_decremented"`
}

// PaymentDTO is the API response representation of a payment.
type PaymentDTO struct {
	ID              uuid.UUID       `json:"id"`
	OrderID         uuid.UUID       `json:"order_id"`
	Method          string          `json:"method"`
	Amount          decimal.Decimal `json:"amount"`
	SourceAccountID *uuid.UUID      `json:"source_account_id,omitempty"`
	ProcessorRef    string          `json:"processor_ref,omitempty"`
	Status          string          `json:"status"`
	FailureReason   string          `json:"failure_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OrderDTO is the API response representation of an order.
type OrderDTO struct {
	ID                uuid.UUID       `json:"id"`
	Code              string          `json:"code"`
	ClientID          uuid.UUID       `json:"client_id"`
	BranchID          string          `json:"branch_id"`
	DeliveryMethod    string          `json:"delivery_method"`
	Items             []ItemDTO       `json:"items"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	Tax               decimal.Decimal `json:"tax"`
	Shipping          decimal.Decimal `json:"shipping"`
	Total             decimal.Decimal `json:"total"`
	Currency          string          `json:"currency"`
	SourceCurrency    string          `json:"source_currency,omitempty"`
	FxRate            decimal.Decimal `json:"fx_rate"`
	Status            string          `json:"status"`
	InventorySync     string          `json:"inventory_sync"`
	InventoryAttempts int             `json:"inventory_attempts"`
	Payments          []PaymentDTO    `json:"payments,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// PaymentResultDTO is the outcome of submitting a payment.
type PaymentResultDTO struct {
	Order       OrderDTO            `json:"order"`
	Payment     PaymentDTO          `json:"payment"`
	Session     *gateway.SessionDTO `json:"session,omitempty"`
	RedirectURL string              `json:"redirect_url,omitempty"`
}

func (r LineRequest) toInput() order.LineInput {
	return order.LineInput{ProductID: r.ProductID, Quantity: r.Quantity, UnitPrice: r.UnitPrice}
}

func (r PaymentRequest) toInput() reconciler.PaymentInput {
	in := reconciler.PaymentInput{
		Method:    order.Method(r.Method),
		Amount:    r.Amount,
		ReturnURL: r.ReturnURL,
	}
	if r.SourceAccountID != "" {
		id := uuid.MustParse(r.SourceAccountID)
		in.SourceAccountID = &id
	}
	return in
}

func toPaymentDTO(p *order.Payment) PaymentDTO {
	return PaymentDTO{
		ID:              p.ID,
		OrderID:         p.OrderID,
		Method:          string(p.Method),
		Amount:          p.Amount,
		SourceAccountID: p.SourceAccountID,
		ProcessorRef:    p.ProcessorRef,
		Status:          string(p.Status),
		FailureReason:   p.FailureReason,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func toOrderDTO(o *order.Order, payments []*order.Payment) OrderDTO {
	dto := OrderDTO{
		ID:                o.ID,
		Code:              o.Code,
		ClientID:          o.ClientID,
		BranchID:          o.BranchID,
		DeliveryMethod:    string(o.DeliveryMethod),
		Items:             make([]ItemDTO, 0, len(o.Items)),
		Subtotal:          o.Subtotal,
		Tax:               o.Tax,
		Shipping:          o.Shipping,
		Total:             o.Total,
		Currency:          o.Currency,
		SourceCurrency:    o.SourceCurrency,
		FxRate:            o.FxRate,
		Status:            string(o.Status),
		InventorySync:     string(o.InventorySync),
		InventoryAttempts: o.InventoryAttempts,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
	for _, it := range o.Items {
		dto.Items = append(dto.Items, ItemDTO{
			ID:                   it.ID,
			ProductID:            it.ProductID,
			Quantity:             it.Quantity,
			UnitPrice:            it.UnitPrice,
			LineTotal:            it.LineTotal,
			InventoryDecremented: it.InventoryDecremented,
		})
	}
	for _, p := range payments {
		dto.Payments = append(dto.Payments, toPaymentDTO(p))
	}
	return dto
}

func toPaymentResultDTO(res *reconciler.PaymentResult) PaymentResultDTO {
	out := PaymentResultDTO{
		Order:       toOrderDTO(res.Order, nil),
		Payment:     toPaymentDTO(res.Payment),
		RedirectURL: res.RedirectURL,
	}
	if res.Session != nil {
		s := gateway.ToSessionDTO(res.Session, res.RedirectURL)
		out.Session = &s
	}
	return out
}
