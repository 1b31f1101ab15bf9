package app

import (
	"context"
	"log/slog"

	"github.com/amirasaad/retailpay/pkg/domain/events"
	"github.com/amirasaad/retailpay/pkg/eventbus"
)

// setupEventBus registers all event handlers with the event bus.
func (a *App) setupEventBus() {
	bus := a.Deps.EventBus
	logger := a.Deps.Logger

	a.Reconciler.Subscribe(bus)
	a.setupAuditHandlers(bus, logger)
}

// setupAuditHandlers logs order lifecycle events. Inventory sync failures
// are logged at error level; they are what operators act on.
func (a *App) setupAuditHandlers(bus eventbus.Bus, logger *slog.Logger) {
	audit := logger.With("handler", "audit")
	bus.Register(events.EventTypeOrderStatusChanged, func(_ context.Context, e events.Event) error {
		if ev, ok := e.(events.OrderStatusChanged); ok {
			audit.Info("📦 order status changed",
				"order_id", ev.OrderID,
				"order_code", ev.OrderCode,
				"from", ev.From,
				"to", ev.To,
			)
		}
		return nil
	})
	bus.Register(events.EventTypeInventorySyncFailed, func(_ context.Context, e events.Event) error {
		if ev, ok := e.(events.InventorySyncFailed); ok {
			audit.Error("inventory sync failed",
				"order_id", ev.OrderID,
				"order_code", ev.OrderCode,
				"attempts", ev.Attempts,
				"error", ev.Error,
			)
		}
		return nil
	})
}
