// Package reconciler keeps each order's status consistent with its payments.
//
// Money moves through the ledger service or the card gateway; the
// reconciler decides what each outcome means for the order and fires the
// one-time inventory decrement when an order is first approved. Every
// status recomputation for an order runs under a keyed lock on the order
// id and a row lock on the order inside the same storage transaction.
package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/amirasaad/retailpay/pkg/domain"
	"github.com/amirasaad/retailpay/pkg/domain/events"
	"github.com/amirasaad/retailpay/pkg/domain/order"
	"github.com/amirasaad/retailpay/pkg/domain/session"
	"github.com/amirasaad/retailpay/pkg/eventbus"
	"github.com/amirasaad/retailpay/pkg/lock"
	"github.com/amirasaad/retailpay/pkg/provider"
	"github.com/amirasaad/retailpay/pkg/repository"
	"github.com/amirasaad/retailpay/pkg/service/gateway"
	"github.com/amirasaad/retailpay/pkg/service/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Config holds the settlement and pricing parameters.
type Config struct {
	SettlementAccountID  uuid.UUID
	SettlementCurrency   string
	TaxRate              decimal.Decimal
	ShippingFee          decimal.Decimal
	CollaboratorTimeout  time.Duration
	MaxInventoryAttempts int
}

// Deps are the collaborators of the reconciler.
type Deps struct {
	Uow       repository.UnitOfWork
	Ledger    *ledger.Service
	Gateway   *gateway.Service
	Inventory provider.InventoryClient
	Fx        provider.FxClient
	Locker    lock.Locker
	Bus       eventbus.Bus
	Logger    *slog.Logger
}

// Reconciler drives orders through their lifecycle.
type Reconciler struct {
	uow       repository.UnitOfWork
	ledger    *ledger.Service
	gateway   *gateway.Service
	inventory provider.InventoryClient
	fx        provider.FxClient
	locker    lock.Locker
	bus       eventbus.Bus
	cfg       Config
	logger    *slog.Logger
	tracer    trace.Tracer
}

// New creates a reconciler.
func New(deps Deps, cfg Config) *Reconciler {
	if cfg.MaxInventoryAttempts <= 0 {
		cfg.MaxInventoryAttempts = 5
	}
	return &Reconciler{
		uow:       deps.Uow,
		ledger:    deps.Ledger,
		gateway:   deps.Gateway,
		inventory: deps.Inventory,
		fx:        deps.Fx,
		locker:    deps.Locker,
		bus:       deps.Bus,
		cfg:       cfg,
		logger:    deps.Logger,
		tracer:    otel.Tracer("retailpay/reconciler"),
	}
}

// Subscribe registers the gateway session handlers on bus.
func (r *Reconciler) Subscribe(bus eventbus.Bus) {
	bus.Register(events.EventTypeGatewaySessionConfirmed, r.handleSessionConfirmed)
	bus.Register(events.EventTypeGatewaySessionVoided, r.handleSessionVoided)
}

func (r *Reconciler) handleSessionConfirmed(ctx context.Context, e events.Event) error {
	ev, ok := e.(events.GatewaySessionConfirmed)
	if !ok {
		return errors.New("unexpected event payload for " + e.Type())
	}
	if ev.Approved {
		_, err := r.OnPaymentCompleted(ctx, ev.PaymentID, ev.AuthCode)
		return err
	}
	_, err := r.OnPaymentFailed(ctx, ev.PaymentID, "declined by gateway")
	return err
}

func (r *Reconciler) handleSessionVoided(ctx context.Context, e events.Event) error {
	ev, ok := e.(events.GatewaySessionVoided)
	if !ok {
		return errors.New("unexpected event payload for " + e.Type())
	}
	_, err := r.reversePayment(ctx, ev.PaymentID, ev.Reason)
	return err
}

// withOrderLock serializes fn with every other status change of the order.
// The lock is always taken before a storage transaction is opened.
func (r *Reconciler) withOrderLock(ctx context.Context, orderID uuid.UUID, fn func() error) error {
	release, err := r.locker.Lock(ctx, "order:"+orderID.String())
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// collaborator bounds a call to an external service.
func (r *Reconciler) collaborator(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.CollaboratorTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.cfg.CollaboratorTimeout)
}

// emit runs after commit. Handler errors never undo a committed change.
func (r *Reconciler) emit(ctx context.Context, evs ...events.Event) {
	if r.bus == nil {
		return
	}
	for _, e := range evs {
		if err := r.bus.Emit(ctx, e); err != nil {
			r.logger.Error("event handler failed", "event", e.Type(), "error", err)
		}
	}
}

func statusChanged(o *order.Order, from order.Status) []events.Event {
	if o.Status == from {
		return nil
	}
	return []events.Event{events.OrderStatusChanged{
		OrderID:    o.ID,
		OrderCode:  o.Code,
		From:       string(from),
		To:         string(o.Status),
		OccurredAt: time.Now().UTC(),
	}}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// settlementFailure reports whether a ledger error is a business outcome
// that rejects the payment rather than a failure that keeps prior status.
func settlementFailure(err error) bool {
	switch domain.KindOf(err) {
	case domain.KindInsufficientFunds, domain.KindValidation, domain.KindInvalidState, domain.KindNotFound:
		return true
	}
	return false
}

func terminal(s order.Status) bool {
	return s == order.StatusCancelled || s == order.StatusVoided || s == order.StatusDelivered
}

type repos struct {
	uow      repository.UnitOfWork
	orders   repository.OrderRepository
	payments repository.PaymentRepository
	sessions repository.SessionRepository
}

func open(u repository.UnitOfWork) (repos, error) {
	rs := repos{uow: u}
	var err error
	if rs.orders, err = u.OrderRepository(); err != nil {
		return rs, err
	}
	if rs.payments, err = u.PaymentRepository(); err != nil {
		return rs, err
	}
	if rs.sessions, err = u.SessionRepository(); err != nil {
		return rs, err
	}
	return rs, nil
}

// OrderView is an order with all of its payment attempts.
type OrderView struct {
	Order    *order.Order
	Payments []*order.Payment
}

// PaymentResult is the outcome of submitting a payment.
type PaymentResult struct {
	Order       *order.Order
	Payment     *order.Payment
	Session     *session.Session
	RedirectURL string
}

// GetOrder returns an order with its payments.
func (r *Reconciler) GetOrder(ctx context.Context, id uuid.UUID) (*OrderView, error) {
	var view OrderView
	err := r.uow.Do(ctx, func(u repository.UnitOfWork) error {
		rs, err := open(u)
		if err != nil {
			return err
		}
		if view.Order, err = rs.orders.Get(ctx, id); err != nil {
			return err
		}
		view.Payments, err = rs.payments.ListByOrder(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// GetPayment returns a single payment.
func (r *Reconciler) GetPayment(ctx context.Context, id uuid.UUID) (p *order.Payment, err error) {
	err = r.uow.Do(ctx, func(u repository.UnitOfWork) error {
		payments, err := u.PaymentRepository()
		if err != nil {
			return err
		}
		p, err = payments.Get(ctx, id)
		return err
	})
	return
}
