package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/amirasaad/retailpay/pkg/domain"
	"github.com/amirasaad/retailpay/pkg/domain/events"
	"github.com/amirasaad/retailpay/pkg/domain/money"
	"github.com/amirasaad/retailpay/pkg/domain/order"
	"github.com/amirasaad/retailpay/pkg/domain/session"
	"github.com/amirasaad/retailpay/pkg/repository"
	"github.com/amirasaad/retailpay/pkg/service/gateway"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PaymentInput describes one payment attempt. A zero Amount pays whatever
// is outstanding. Debit and transfer need SourceAccountID; credit needs
// ReturnURL.
type PaymentInput struct {
	Method          order.Method
	Amount          decimal.Decimal
	SourceAccountID *uuid.UUID
	ReturnURL       string
}

// CreateOrderInput is a new order with its first payment. Unit prices are
// in Currency; an empty Currency means the settlement currency.
type CreateOrderInput struct {
	ClientID       uuid.UUID
	BranchID       string
	Currency       string
	DeliveryMethod order.DeliveryMethod
	Items          []order.LineInput
	Payment        PaymentInput
}

func validatePayment(in PaymentInput) error {
	if !in.Method.Valid() {
		return order.ErrInvalidPaymentMethod
	}
	if in.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	if in.Method == order.MethodCredit && strings.TrimSpace(in.ReturnURL) == "" {
		return fmt.Errorf("%w: return url is required for credit payments", domain.ErrValidation)
	}
	return nil
}

func validateLines(in CreateOrderInput) error {
	if !in.DeliveryMethod.Valid() {
		return order.ErrInvalidDeliveryMethod
	}
	if len(in.Items) == 0 {
		return order.ErrNoItems
	}
	for _, l := range in.Items {
		if l.Quantity <= 0 {
			return order.ErrInvalidQuantity
		}
	}
	return nil
}

// CreateOrder checks stock, prices the order in the settlement currency and
// submits its first payment. A debit or transfer settles before this call
// returns; a credit payment returns the gateway redirect; cash stays
// pending until a cashier confirms it.
func (r *Reconciler) CreateOrder(ctx context.Context, in CreateOrderInput) (*PaymentResult, error) {
	ctx, span := r.tracer.Start(ctx, "reconciler.CreateOrder", trace.WithAttributes(
		attribute.String("client.id", in.ClientID.String()),
		attribute.String("payment.method", string(in.Payment.Method)),
	))
	defer span.End()
	logger := r.logger.With("op", "CreateOrder", "client_id", in.ClientID, "branch_id", in.BranchID)

	if err := validatePayment(in.Payment); err != nil {
		return nil, fail(span, err)
	}
	if err := validateLines(in); err != nil {
		return nil, fail(span, err)
	}
	currency := r.cfg.SettlementCurrency
	if in.Currency != "" {
		code, err := money.NormalizeCurrency(in.Currency)
		if err != nil {
			return nil, fail(span, err)
		}
		currency = code
	}

	if err := r.checkStock(ctx, in.BranchID, in.Items); err != nil {
		logger.Warn("stock check failed", "error", err)
		return nil, fail(span, err)
	}
	rate := decimal.NewFromInt(1)
	if currency != r.cfg.SettlementCurrency {
		var err error
		if rate, err = r.rate(ctx, currency, r.cfg.SettlementCurrency); err != nil {
			logger.Warn("currency conversion failed", "from", currency, "error", err)
			return nil, fail(span, err)
		}
	}

	o, err := order.New(in.ClientID, in.BranchID, in.DeliveryMethod, in.Items, order.Pricing{
		Currency:       r.cfg.SettlementCurrency,
		SourceCurrency: currency,
		FxRate:         rate,
		TaxRate:        r.cfg.TaxRate,
		ShippingFee:    r.cfg.ShippingFee,
	})
	if err != nil {
		return nil, fail(span, err)
	}
	amount := in.Payment.Amount
	if amount.IsZero() {
		amount = o.Total
	}
	if amount.GreaterThan(o.Total) {
		return nil, fail(span, fmt.Errorf("%w: %s > %s", order.ErrAmountExceedsOutstanding, amount, o.Total))
	}
	p, err := order.NewPayment(o.ID, in.Payment.Method, amount, in.Payment.SourceAccountID)
	if err != nil {
		return nil, fail(span, err)
	}

	var (
		res PaymentResult
		evs []events.Event
	)
	err = r.uow.Do(ctx, func(u repository.UnitOfWork) error {
		rs, err := open(u)
		if err != nil {
			return err
		}
		if err := rs.orders.Create(ctx, o); err != nil {
			return err
		}
		if err := rs.payments.Create(ctx, p); err != nil {
			return err
		}
		res = PaymentResult{Order: o, Payment: p}
		if p.Method == order.MethodCredit {
			evs, err = r.startCard(ctx, u, rs, &res, in.Payment.ReturnURL)
		}
		return err
	})
	if err != nil {
		logger.Error("CreateOrder failed", "error", err)
		return nil, fail(span, err)
	}
	span.SetAttributes(attribute.String("order.id", o.ID.String()))
	logger.Info("🚀 order created", "order_id", o.ID, "order_code", o.Code,
		"total", o.Total.StringFixed(money.Scale), "currency", o.Currency)
	r.emit(ctx, evs...)

	if p.Method.UsesLedger() {
		out, err := r.collect(ctx, o.ID, p.ID)
		if err != nil {
			return nil, fail(span, err)
		}
		return out, nil
	}
	return &res, nil
}

// startCard opens a gateway session inside the caller's transaction. An
// order with nothing paid yet moves to processing.
func (r *Reconciler) startCard(
	ctx context.Context,
	u repository.UnitOfWork,
	rs repos,
	res *PaymentResult,
	returnURL string,
) ([]events.Event, error) {
	init, err := r.gateway.WithUnitOfWork(u).Initiate(ctx, gateway.InitiateInput{
		PaymentID: res.Payment.ID,
		Amount:    res.Payment.Amount,
		ReturnURL: returnURL,
	})
	if err != nil {
		return nil, err
	}
	res.Session, res.RedirectURL = init.Session, init.RedirectURL
	o := res.Order
	if o.Status != order.StatusPending && o.Status != order.StatusRejected {
		return nil, nil
	}
	from := o.Status
	if err := o.TransitionTo(order.StatusProcessing); err != nil {
		return nil, err
	}
	if err := rs.orders.Update(ctx, o); err != nil {
		return nil, err
	}
	return statusChanged(o, from), nil
}

// AddPayment submits another payment attempt for an order that still
// accepts payments. The amount may not exceed what is left to pay.
func (r *Reconciler) AddPayment(ctx context.Context, orderID uuid.UUID, in PaymentInput) (*PaymentResult, error) {
	ctx, span := r.tracer.Start(ctx, "reconciler.AddPayment", trace.WithAttributes(
		attribute.String("order.id", orderID.String()),
		attribute.String("payment.method", string(in.Method)),
	))
	defer span.End()
	logger := r.logger.With("op", "AddPayment", "order_id", orderID, "method", in.Method)

	if err := validatePayment(in); err != nil {
		return nil, fail(span, err)
	}

	var (
		res PaymentResult
		evs []events.Event
	)
	err := r.withOrderLock(ctx, orderID, func() error {
		return r.uow.Do(ctx, func(u repository.UnitOfWork) error {
			rs, err := open(u)
			if err != nil {
				return err
			}
			o, err := rs.orders.GetForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			if !o.Status.AcceptsPayments() {
				return fmt.Errorf("%w: order is %s", order.ErrNotPayable, o.Status)
			}
			list, err := rs.payments.ListByOrder(ctx, orderID)
			if err != nil {
				return err
			}
			outstanding := o.Total.Sub(order.SumCompleted(list))
			amount := in.Amount
			if amount.IsZero() {
				amount = outstanding
			}
			if amount.GreaterThan(outstanding) {
				return fmt.Errorf("%w: %s > %s", order.ErrAmountExceedsOutstanding, amount, outstanding)
			}
			p, err := order.NewPayment(o.ID, in.Method, amount, in.SourceAccountID)
			if err != nil {
				return err
			}
			if err := rs.payments.Create(ctx, p); err != nil {
				return err
			}
			res = PaymentResult{Order: o, Payment: p}
			if p.Method == order.MethodCredit {
				evs, err = r.startCard(ctx, u, rs, &res, in.ReturnURL)
			}
			return err
		})
	})
	if err != nil {
		logger.Warn("AddPayment failed", "error", err)
		return nil, fail(span, err)
	}
	logger.Info("💳 payment added", "payment_id", res.Payment.ID, "amount", res.Payment.Amount.StringFixed(money.Scale))
	r.emit(ctx, evs...)

	if res.Payment.Method.UsesLedger() {
		out, err := r.collect(ctx, orderID, res.Payment.ID)
		if err != nil {
			return nil, fail(span, err)
		}
		return out, nil
	}
	return &res, nil
}

// rejectPending rejects every payment of the order that is still pending.
func rejectPending(ctx context.Context, rs repos, orderID uuid.UUID, reason string) error {
	list, err := rs.payments.ListByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	for _, p := range list {
		if p.Status != order.PaymentPending {
			continue
		}
		if err := failOpenSession(ctx, rs, p.ID); err != nil {
			return err
		}
		if err := p.Reject(reason); err != nil {
			return err
		}
		if err := rs.payments.Update(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// failOpenSession closes the initiated gateway session of a payment so its
// token can no longer be confirmed. A session confirmed first means the
// card was already captured and the payment cannot be rejected.
func failOpenSession(ctx context.Context, rs repos, paymentID uuid.UUID) error {
	sess, err := rs.sessions.FindActiveByPayment(ctx, paymentID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	ok, err := rs.sessions.ConfirmByToken(ctx, sess.Token, session.StateFailed, "")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: payment %s has a %s gateway session",
			order.ErrPaymentTransition, paymentID, sess.State)
	}
	return nil
}

// transition applies a status change under the order lock.
func (r *Reconciler) transition(
	ctx context.Context,
	orderID uuid.UUID,
	fn func(rs repos, o *order.Order) error,
) (*order.Order, error) {
	var (
		o   *order.Order
		evs []events.Event
	)
	err := r.withOrderLock(ctx, orderID, func() error {
		return r.uow.Do(ctx, func(u repository.UnitOfWork) error {
			rs, err := open(u)
			if err != nil {
				return err
			}
			if o, err = rs.orders.GetForUpdate(ctx, orderID); err != nil {
				return err
			}
			from := o.Status
			if err := fn(rs, o); err != nil {
				return err
			}
			if err := rs.orders.Update(ctx, o); err != nil {
				return err
			}
			evs = statusChanged(o, from)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	r.emit(ctx, evs...)
	return o, nil
}

// CancelOrder cancels a pending order. Its pending payments are rejected;
// no money has moved so nothing is reversed.
func (r *Reconciler) CancelOrder(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	o, err := r.transition(ctx, orderID, func(rs repos, o *order.Order) error {
		if o.Status != order.StatusPending {
			return fmt.Errorf("%w: order is %s", order.ErrNotCancellable, o.Status)
		}
		if err := rejectPending(ctx, rs, o.ID, "order cancelled"); err != nil {
			return err
		}
		return o.TransitionTo(order.StatusCancelled)
	})
	if err != nil {
		r.logger.Warn("CancelOrder failed", "order_id", orderID, "error", err)
		return nil, err
	}
	r.logger.Info("order cancelled", "order_id", orderID)
	return o, nil
}

// DeliverOrder marks an approved order as handed over.
func (r *Reconciler) DeliverOrder(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	o, err := r.transition(ctx, orderID, func(_ repos, o *order.Order) error {
		return o.TransitionTo(order.StatusDelivered)
	})
	if err != nil {
		r.logger.Warn("DeliverOrder failed", "order_id", orderID, "error", err)
		return nil, err
	}
	r.logger.Info("📦 order delivered", "order_id", orderID)
	return o, nil
}

// VoidOrder reverses every completed payment and then voids the order.
// It refuses while a payment is pending, since that payment may still
// settle. Each reversal commits on its own; a failure part way leaves the
// remaining payments untouched and the order in its re-derived status.
func (r *Reconciler) VoidOrder(ctx context.Context, orderID uuid.UUID, reason string) (*OrderView, error) {
	ctx, span := r.tracer.Start(ctx, "reconciler.VoidOrder",
		trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	view, err := r.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fail(span, err)
	}
	if !order.CanTransition(view.Order.Status, order.StatusVoided) {
		return nil, fail(span, fmt.Errorf("%w: %s -> %s",
			order.ErrInvalidTransition, view.Order.Status, order.StatusVoided))
	}
	if hasPending(view.Payments) {
		return nil, fail(span, order.ErrPaymentInFlight)
	}
	for _, p := range view.Payments {
		if p.Status != order.PaymentCompleted {
			continue
		}
		if _, err := r.VoidPayment(ctx, p.ID, reason); err != nil {
			return nil, fail(span, err)
		}
	}
	if _, err := r.transition(ctx, orderID, func(rs repos, o *order.Order) error {
		list, err := rs.payments.ListByOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		if hasPending(list) {
			return order.ErrPaymentInFlight
		}
		return o.TransitionTo(order.StatusVoided)
	}); err != nil {
		return nil, fail(span, err)
	}
	r.logger.Info("order voided", "order_id", orderID, "reason", reason)
	return r.GetOrder(ctx, orderID)
}

func hasPending(payments []*order.Payment) bool {
	for _, p := range payments {
		if p.Status == order.PaymentPending {
			return true
		}
	}
	return false
}
