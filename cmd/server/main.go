package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/amirasaad/retailpay/infra/initializer"
	"github.com/amirasaad/retailpay/pkg/app"
	"github.com/amirasaad/retailpay/pkg/config"
	"github.com/amirasaad/retailpay/webapi"
	log "github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("failed to load application configuration: %w", err)
	}

	a, fiberApp, cleanup, err := bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	logger := a.Deps.Logger
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := cleanup(cctx); err != nil {
			logger.Error("cleanup failed", "error", err)
		}
	}()

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if cfg.Worker.Enabled {
		a.Worker.Start(workerCtx)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("Starting server",
		"env", cfg.Env,
		"address", addr,
		"scheme", cfg.Server.Scheme,
	)

	listenErr := make(chan error, 1)
	go func() { listenErr <- fiberApp.Listen(addr) }()

	select {
	case err := <-listenErr:
		stopWorker()
		a.Worker.Wait()
		return err
	case <-ctx.Done():
	}

	logger.Info("🛑 shutting down", "timeout", cfg.Server.ShutdownTimeout)
	shutdownErr := fiberApp.ShutdownWithTimeout(cfg.Server.ShutdownTimeout)
	stopWorker()
	a.Worker.Wait()
	if err := <-listenErr; err != nil {
		shutdownErr = errors.Join(shutdownErr, err)
	}
	return shutdownErr
}

// bootstrap builds the dependencies, the services and the HTTP app, and
// makes sure the settlement account exists.
func bootstrap(ctx context.Context, cfg *config.App) (
	*app.App,
	*fiber.App,
	func(context.Context) error,
	error,
) {
	deps, cleanup, err := initializer.InitializeDependencies(ctx, cfg)
	if err != nil {
		_ = cleanup(context.Background())
		return nil, nil, nil, fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	a := app.New(deps, cfg)
	if err := a.EnsureSettlementAccount(ctx); err != nil {
		_ = cleanup(context.Background())
		return nil, nil, nil, fmt.Errorf("failed to prepare settlement account: %w", err)
	}
	deps.Logger.Info("✅ settlement account ready",
		"account_id", cfg.Settlement.AccountID,
		"currency", cfg.Settlement.Currency,
	)
	return a, webapi.SetupApp(a), cleanup, nil
}

