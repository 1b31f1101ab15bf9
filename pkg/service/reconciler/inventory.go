package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirasaad/retailpay/pkg/domain"
	"github.com/amirasaad/retailpay/pkg/domain/events"
	"github.com/amirasaad/retailpay/pkg/domain/order"
	"github.com/amirasaad/retailpay/pkg/domain/session"
	"github.com/amirasaad/retailpay/pkg/repository"
	"github.com/shopspring/decimal"
)

// collaboratorError keeps the kind of a classified collaborator error and
// treats anything unclassified as the collaborator being unavailable.
func collaboratorError(name string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
		return fmt.Errorf("%w: %s: %v", domain.ErrTimeout, name, err)
	}
	if domain.KindOf(err) == domain.KindInternal {
		return fmt.Errorf("%w: %s: %v", domain.ErrUnavailable, name, err)
	}
	return err
}

func (r *Reconciler) checkStock(ctx context.Context, branchID string, lines []order.LineInput) error {
	for _, l := range lines {
		cctx, cancel := r.collaborator(ctx)
		ok, err := r.inventory.CheckStock(cctx, l.ProductID, branchID, l.Quantity)
		cancel()
		if err != nil {
			return collaboratorError("inventory", err)
		}
		if !ok {
			return fmt.Errorf("%w: product %s at branch %s", domain.ErrOutOfStock, l.ProductID, branchID)
		}
	}
	return nil
}

// rate converts one unit of from into to. It is called at most once per
// order; every line price is multiplied by the same rate.
func (r *Reconciler) rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	cctx, cancel := r.collaborator(ctx)
	defer cancel()
	rate, err := r.fx.Convert(cctx, decimal.NewFromInt(1), from, to)
	if err != nil {
		return decimal.Zero, collaboratorError("fx", err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: fx: non-positive rate %s for %s/%s", domain.ErrUnavailable, rate, from, to)
	}
	return rate, nil
}

// syncInventory decrements stock for every line item not yet decremented.
// The caller holds the order lock. Failures never touch the order status:
// the order stays approved with its sync marked failed, and after the
// configured number of attempts, or on a non-retryable error, it is
// flagged for manual review.
func (r *Reconciler) syncInventory(ctx context.Context, o *order.Order) {
	logger := r.logger.With("op", "syncInventory", "order_id", o.ID, "order_code", o.Code)

	var errs []error
	for _, it := range o.PendingItems() {
		cctx, cancel := r.collaborator(ctx)
		err := r.inventory.Decrement(cctx, it.ProductID, o.BranchID, it.Quantity, o.Code)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", it.ProductID, collaboratorError("inventory", err)))
			continue
		}
		// A replay after a lost write is de-duplicated by the order code.
		if err := r.uow.Do(ctx, func(u repository.UnitOfWork) error {
			orders, err := u.OrderRepository()
			if err != nil {
				return err
			}
			return orders.MarkItemDecremented(ctx, it.ID)
		}); err != nil {
			errs = append(errs, err)
			continue
		}
		it.InventoryDecremented = true
	}

	state, attempts := order.InventorySynced, o.InventoryAttempts
	var syncErr error
	if len(errs) > 0 {
		syncErr = errors.Join(errs...)
		attempts++
		state = order.InventoryFailed
		if attempts >= r.cfg.MaxInventoryAttempts || !domain.IsRetryable(syncErr) {
			state = order.InventoryManualReview
		}
	}
	if err := r.uow.Do(ctx, func(u repository.UnitOfWork) error {
		orders, err := u.OrderRepository()
		if err != nil {
			return err
		}
		return orders.UpdateInventorySync(ctx, o.ID, state, attempts)
	}); err != nil {
		logger.Error("recording inventory sync state failed", "state", state, "error", err)
		return
	}
	o.InventorySync, o.InventoryAttempts = state, attempts

	if syncErr == nil {
		logger.Info("✅ inventory decremented", "items", len(o.Items))
		return
	}
	logger.Error("inventory decrement failed", "state", state, "attempts", attempts, "error", syncErr)
	r.emit(ctx, events.InventorySyncFailed{
		OrderID:    o.ID,
		OrderCode:  o.Code,
		Attempts:   attempts,
		Error:      syncErr.Error(),
		OccurredAt: time.Now().UTC(),
	})
}

// RetryInventorySync retries the stock decrement of approved orders whose
// sync is pending or failed. It returns how many orders were attempted.
func (r *Reconciler) RetryInventorySync(ctx context.Context, limit int) (int, error) {
	var pending []*order.Order
	err := r.uow.Do(ctx, func(u repository.UnitOfWork) error {
		orders, err := u.OrderRepository()
		if err != nil {
			return err
		}
		pending, err = orders.ListInventoryPending(ctx, r.cfg.MaxInventoryAttempts, limit)
		return err
	})
	if err != nil {
		return 0, err
	}

	n := 0
	for _, candidate := range pending {
		err := r.withOrderLock(ctx, candidate.ID, func() error {
			var o *order.Order
			if err := r.uow.Do(ctx, func(u repository.UnitOfWork) error {
				orders, err := u.OrderRepository()
				if err != nil {
					return err
				}
				o, err = orders.Get(ctx, candidate.ID)
				return err
			}); err != nil {
				return err
			}
			if o.InventorySync != order.InventoryPending && o.InventorySync != order.InventoryFailed {
				return nil
			}
			r.syncInventory(ctx, o)
			n++
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return n, ctx.Err()
			}
			r.logger.Warn("inventory retry skipped", "order_id", candidate.ID, "error", err)
		}
	}
	return n, nil
}

// ReconcileSessions applies gateway outcomes that never reached their
// payment, for example after a crash between the gateway commit and the
// event handler. It returns how many sessions were applied.
func (r *Reconciler) ReconcileSessions(ctx context.Context, limit int) (int, error) {
	list, err := r.gateway.ListUnreconciled(ctx, limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range list {
		switch s.State {
		case session.StateConfirmed:
			_, err = r.OnPaymentCompleted(ctx, s.PaymentID, s.AuthCode)
		case session.StateFailed:
			_, err = r.OnPaymentFailed(ctx, s.PaymentID, "declined by gateway")
		case session.StateVoided:
			_, err = r.reversePayment(ctx, s.PaymentID, s.VoidReason)
		default:
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return n, ctx.Err()
			}
			r.logger.Warn("session reconciliation failed", "session_id", s.ID, "error", err)
			continue
		}
		n++
	}
	return n, nil
}
