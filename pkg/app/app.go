// Package app assembles the services of the application from their
// dependencies.
package app

import (
	"log/slog"

	"github.com/amirasaad/retailpay/pkg/config"
	"github.com/amirasaad/retailpay/pkg/eventbus"
	"github.com/amirasaad/retailpay/pkg/lock"
	"github.com/amirasaad/retailpay/pkg/provider"
	"github.com/amirasaad/retailpay/pkg/repository"
	"github.com/amirasaad/retailpay/pkg/service/gateway"
	"github.com/amirasaad/retailpay/pkg/service/ledger"
	"github.com/amirasaad/retailpay/pkg/service/reconciler"
	"github.com/amirasaad/retailpay/pkg/worker"
)

// Deps contains the infrastructure the services are built on.
type Deps struct {
	Uow       repository.UnitOfWork
	Inventory provider.InventoryClient
	Fx        provider.FxClient
	Locker    lock.Locker
	EventBus  eventbus.Bus
	Logger    *slog.Logger
}

type App struct {
	Deps           *Deps
	Config         *config.App
	LedgerService  *ledger.Service
	GatewayService *gateway.Service
	Reconciler     *reconciler.Reconciler
	Worker         *worker.Worker
}

func New(deps *Deps, cfg *config.App) *App {
	app := &App{
		Deps:   deps,
		Config: cfg,
	}
	app.LedgerService = ledger.New(deps.Uow, cfg.Order.LedgerTimeout, deps.Logger)
	app.GatewayService = gateway.New(deps.Uow, deps.EventBus, cfg.Gateway.RedirectBase, deps.Logger)
	app.Reconciler = reconciler.New(reconciler.Deps{
		Uow:       deps.Uow,
		Ledger:    app.LedgerService,
		Gateway:   app.GatewayService,
		Inventory: deps.Inventory,
		Fx:        deps.Fx,
		Locker:    deps.Locker,
		Bus:       deps.EventBus,
		Logger:    deps.Logger,
	}, reconciler.Config{
		SettlementAccountID:  cfg.Settlement.AccountID,
		SettlementCurrency:   cfg.Settlement.Currency,
		TaxRate:              cfg.Order.TaxRate,
		ShippingFee:          cfg.Order.ShippingFee,
		CollaboratorTimeout:  cfg.Order.CollaboratorTimeout,
		MaxInventoryAttempts: cfg.Worker.MaxAttempts,
	})
	app.Worker = worker.New(app.Reconciler, worker.Config{
		Interval:  cfg.Worker.Interval,
		BatchSize: cfg.Worker.BatchSize,
	}, deps.Logger)
	app.setupEventBus()
	return app
}
