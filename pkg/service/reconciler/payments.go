package reconciler

import (
	"context"
	"fmt"
	"strings"

	"github.com/amirasaad/retailpay/pkg/domain"
	"github.com/amirasaad/retailpay/pkg/domain/account"
	"github.com/amirasaad/retailpay/pkg/domain/events"
	"github.com/amirasaad/retailpay/pkg/domain/order"
	"github.com/amirasaad/retailpay/pkg/domain/session"
	"github.com/amirasaad/retailpay/pkg/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// applyCompletion re-derives the paid status and reports whether this call
// is the first approval of the order.
func applyCompletion(o *order.Order, list []*order.Payment) (bool, error) {
	if next, ok := order.DeriveStatus(order.SumCompleted(list), o.Total); ok {
		if err := o.TransitionTo(next); err != nil {
			return false, err
		}
	}
	return o.MarkApproved(), nil
}

// applyFailure rejects the order unless some other payment has completed.
func applyFailure(o *order.Order, list []*order.Payment, failed uuid.UUID) error {
	if terminal(o.Status) || order.HasCompleted(list, failed) {
		return nil
	}
	return o.TransitionTo(order.StatusRejected)
}

// afterReversal is the order status once p no longer counts as paid.
func afterReversal(o *order.Order, list []*order.Payment, p *order.Payment) order.Status {
	remaining := order.SumCompleted(list).Sub(p.Amount)
	if next, ok := order.DeriveStatus(remaining, o.Total); ok {
		return next
	}
	return order.StatusPending
}

// settle moves the money for a debit or transfer payment inside u.
func (r *Reconciler) settle(ctx context.Context, u repository.UnitOfWork, o *order.Order, p *order.Payment) (string, error) {
	led := r.ledger.WithUnitOfWork(u)
	desc := "payment for order " + o.Code
	switch p.Method {
	case order.MethodDebit:
		acc, err := led.GetAccount(ctx, *p.SourceAccountID)
		if err != nil {
			return "", err
		}
		if acc.Currency != o.Currency {
			return "", fmt.Errorf("%w: account holds %s, order is %s", account.ErrCurrencyMismatch, acc.Currency, o.Currency)
		}
		res, err := led.Charge(ctx, acc.ID, p.Amount, desc)
		if err != nil {
			return "", err
		}
		return res.Transaction.ID.String(), nil
	case order.MethodTransfer:
		res, err := led.Transfer(ctx, *p.SourceAccountID, r.cfg.SettlementAccountID, p.Amount, desc)
		if err != nil {
			return "", err
		}
		return res.Out.ID.String(), nil
	}
	return "", fmt.Errorf("%w: %s payments do not settle through the ledger", domain.ErrValidation, p.Method)
}

// unsettle writes the compensating ledger movement for a completed payment.
func (r *Reconciler) unsettle(ctx context.Context, u repository.UnitOfWork, o *order.Order, p *order.Payment) error {
	led := r.ledger.WithUnitOfWork(u)
	desc := "reversal for order " + o.Code
	switch p.Method {
	case order.MethodDebit:
		_, err := led.Refund(ctx, *p.SourceAccountID, p.Amount, desc)
		return err
	case order.MethodTransfer:
		_, err := led.Transfer(ctx, r.cfg.SettlementAccountID, *p.SourceAccountID, p.Amount, desc)
		return err
	}
	return nil
}

// collect settles a pending ledger payment. A business refusal from the
// ledger rejects the payment in the same transaction; any other failure
// rolls back and leaves both records as they were.
func (r *Reconciler) collect(ctx context.Context, orderID, paymentID uuid.UUID) (*PaymentResult, error) {
	logger := r.logger.With("op", "collect", "order_id", orderID, "payment_id", paymentID)
	var (
		res    PaymentResult
		evs    []events.Event
		toSync *order.Order
	)
	err := r.withOrderLock(ctx, orderID, func() error {
		err := r.uow.Do(ctx, func(u repository.UnitOfWork) error {
			rs, err := open(u)
			if err != nil {
				return err
			}
			o, err := rs.orders.GetForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			p, err := rs.payments.GetForUpdate(ctx, paymentID)
			if err != nil {
				return err
			}
			if p.Status != order.PaymentPending {
				return fmt.Errorf("%w: payment is %s", order.ErrPaymentTransition, p.Status)
			}
			if terminal(o.Status) {
				return fmt.Errorf("%w: order is %s", order.ErrNotPayable, o.Status)
			}
			from := o.Status

			ref, moveErr := r.settle(ctx, u, o, p)
			switch {
			case moveErr != nil && !settlementFailure(moveErr):
				return moveErr
			case moveErr != nil:
				logger.Warn("payment rejected by ledger", "error", moveErr)
				if err := p.Reject(moveErr.Error()); err != nil {
					return err
				}
			default:
				if err := p.Complete(ref); err != nil {
					return err
				}
			}
			if err := rs.payments.Update(ctx, p); err != nil {
				return err
			}
			list, err := rs.payments.ListByOrder(ctx, orderID)
			if err != nil {
				return err
			}
			if moveErr != nil {
				err = applyFailure(o, list, p.ID)
			} else {
				var first bool
				if first, err = applyCompletion(o, list); first {
					toSync = o
				}
			}
			if err != nil {
				return err
			}
			if err := rs.orders.Update(ctx, o); err != nil {
				return err
			}
			res = PaymentResult{Order: o, Payment: p}
			evs = statusChanged(o, from)
			return nil
		})
		if err != nil {
			return err
		}
		r.emit(ctx, evs...)
		if toSync != nil {
			r.syncInventory(ctx, toSync)
		}
		return nil
	})
	if err != nil {
		logger.Error("payment settlement failed", "error", err)
		return nil, err
	}
	logger.Info("✅ payment settled", "status", res.Payment.Status, "order_status", res.Order.Status)
	return &res, nil
}

// OnPaymentCompleted records a successful payment and re-derives the order
// status. Repeated calls for a completed payment change nothing. The first
// approval of the order decrements inventory once per line item.
func (r *Reconciler) OnPaymentCompleted(ctx context.Context, paymentID uuid.UUID, ref string) (*order.Order, error) {
	ctx, span := r.tracer.Start(ctx, "reconciler.OnPaymentCompleted",
		trace.WithAttributes(attribute.String("payment.id", paymentID.String())))
	defer span.End()
	logger := r.logger.With("op", "OnPaymentCompleted", "payment_id", paymentID)

	p, err := r.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, fail(span, err)
	}
	var (
		o      *order.Order
		evs    []events.Event
		toSync *order.Order
	)
	err = r.withOrderLock(ctx, p.OrderID, func() error {
		err := r.uow.Do(ctx, func(u repository.UnitOfWork) error {
			rs, err := open(u)
			if err != nil {
				return err
			}
			if o, err = rs.orders.GetForUpdate(ctx, p.OrderID); err != nil {
				return err
			}
			pay, err := rs.payments.GetForUpdate(ctx, paymentID)
			if err != nil {
				return err
			}
			if pay.Status == order.PaymentCompleted {
				logger.Info("🔁 [SKIP] payment already completed", "order_id", o.ID)
				return nil
			}
			if terminal(o.Status) {
				return fmt.Errorf("%w: order is %s", order.ErrNotPayable, o.Status)
			}
			from := o.Status
			if err := pay.Complete(ref); err != nil {
				return err
			}
			if err := rs.payments.Update(ctx, pay); err != nil {
				return err
			}
			list, err := rs.payments.ListByOrder(ctx, o.ID)
			if err != nil {
				return err
			}
			first, err := applyCompletion(o, list)
			if err != nil {
				return err
			}
			if err := rs.orders.Update(ctx, o); err != nil {
				return err
			}
			if first {
				toSync = o
			}
			evs = statusChanged(o, from)
			return nil
		})
		if err != nil {
			return err
		}
		r.emit(ctx, evs...)
		if toSync != nil {
			r.syncInventory(ctx, toSync)
		}
		return nil
	})
	if err != nil {
		logger.Warn("OnPaymentCompleted failed", "error", err)
		return nil, fail(span, err)
	}
	logger.Info("✅ payment completed", "order_id", o.ID, "order_status", o.Status)
	return o, nil
}

// OnPaymentFailed records a refused payment. The order becomes rejected
// unless another payment has already completed.
func (r *Reconciler) OnPaymentFailed(ctx context.Context, paymentID uuid.UUID, reason string) (*order.Order, error) {
	ctx, span := r.tracer.Start(ctx, "reconciler.OnPaymentFailed",
		trace.WithAttributes(attribute.String("payment.id", paymentID.String())))
	defer span.End()
	logger := r.logger.With("op", "OnPaymentFailed", "payment_id", paymentID)

	p, err := r.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, fail(span, err)
	}
	o, err := r.transition(ctx, p.OrderID, func(rs repos, o *order.Order) error {
		pay, err := rs.payments.GetForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if pay.Status == order.PaymentRejected {
			logger.Info("🔁 [SKIP] payment already rejected", "order_id", o.ID)
			return nil
		}
		if err := pay.Reject(reason); err != nil {
			return err
		}
		if err := rs.payments.Update(ctx, pay); err != nil {
			return err
		}
		list, err := rs.payments.ListByOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		return applyFailure(o, list, pay.ID)
	})
	if err != nil {
		logger.Warn("OnPaymentFailed failed", "error", err)
		return nil, fail(span, err)
	}
	logger.Info("payment rejected", "order_id", o.ID, "order_status", o.Status, "reason", reason)
	return o, nil
}

// ConfirmCashPayment is the cashier's confirmation that a cash payment was
// received.
func (r *Reconciler) ConfirmCashPayment(ctx context.Context, paymentID uuid.UUID) (*order.Order, error) {
	p, err := r.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Method != order.MethodCash {
		return nil, fmt.Errorf("%w: payment method is %s, not cash", domain.ErrValidation, p.Method)
	}
	if p.Status != order.PaymentPending {
		return nil, fmt.Errorf("%w: payment is %s", order.ErrPaymentTransition, p.Status)
	}
	return r.OnPaymentCompleted(ctx, paymentID, "CASH-"+strings.ToUpper(session.NewToken()[:8]))
}

// VoidPayment reverses a completed payment. Debit payments are refunded to
// the source account, transfers are sent back from the settlement account,
// card payments are voided at the gateway and cash has no ledger effect.
// The inventory decrement is never triggered again.
func (r *Reconciler) VoidPayment(ctx context.Context, paymentID uuid.UUID, reason string) (*order.Payment, error) {
	ctx, span := r.tracer.Start(ctx, "reconciler.VoidPayment",
		trace.WithAttributes(attribute.String("payment.id", paymentID.String())))
	defer span.End()

	view, p, err := r.loadForVoid(ctx, paymentID)
	if err != nil {
		return nil, fail(span, err)
	}
	if p.Status != order.PaymentCompleted {
		return nil, fail(span, fmt.Errorf("%w: payment is %s", order.ErrPaymentTransition, p.Status))
	}
	target := afterReversal(view.Order, view.Payments, p)
	if !order.CanTransition(view.Order.Status, target) {
		return nil, fail(span, fmt.Errorf("%w: %s -> %s", order.ErrInvalidTransition, view.Order.Status, target))
	}

	if p.Method == order.MethodCredit {
		var sess *session.Session
		err := r.uow.Do(ctx, func(u repository.UnitOfWork) error {
			sessions, err := u.SessionRepository()
			if err != nil {
				return err
			}
			sess, err = sessions.FindByPayment(ctx, p.ID, session.StateConfirmed)
			return err
		})
		if err != nil {
			return nil, fail(span, err)
		}
		// The voided event reverses the payment; the call below is a no-op
		// then, and finishes the job if that handler failed.
		if _, err := r.gateway.Void(ctx, sess.ID, reason); err != nil {
			return nil, fail(span, err)
		}
	}
	out, err := r.reversePayment(ctx, paymentID, reason)
	if err != nil {
		return nil, fail(span, err)
	}
	return out, nil
}

func (r *Reconciler) loadForVoid(ctx context.Context, paymentID uuid.UUID) (*OrderView, *order.Payment, error) {
	p, err := r.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, nil, err
	}
	view, err := r.GetOrder(ctx, p.OrderID)
	if err != nil {
		return nil, nil, err
	}
	return view, p, nil
}

// reversePayment voids a completed payment, writes its ledger reversal and
// re-derives the order status. A payment that is already voided is
// returned unchanged.
func (r *Reconciler) reversePayment(ctx context.Context, paymentID uuid.UUID, reason string) (*order.Payment, error) {
	logger := r.logger.With("op", "reversePayment", "payment_id", paymentID)
	p, err := r.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	var out *order.Payment
	_, err = r.transition(ctx, p.OrderID, func(rs repos, o *order.Order) error {
		pay, err := rs.payments.GetForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		out = pay
		if pay.Status == order.PaymentVoided {
			logger.Info("🔁 [SKIP] payment already voided")
			return nil
		}
		if pay.Status != order.PaymentCompleted {
			return fmt.Errorf("%w: payment is %s", order.ErrPaymentTransition, pay.Status)
		}
		list, err := rs.payments.ListByOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		target := afterReversal(o, list, pay)
		if !order.CanTransition(o.Status, target) {
			return fmt.Errorf("%w: %s -> %s", order.ErrInvalidTransition, o.Status, target)
		}
		if err := r.unsettle(ctx, rs.uow, o, pay); err != nil {
			return err
		}
		if err := pay.Void(reason); err != nil {
			return err
		}
		if err := rs.payments.Update(ctx, pay); err != nil {
			return err
		}
		return o.TransitionTo(target)
	})
	if err != nil {
		logger.Warn("payment reversal failed", "error", err)
		return nil, err
	}
	logger.Info("↩️ payment voided", "order_id", p.OrderID, "method", out.Method)
	return out, nil
}
