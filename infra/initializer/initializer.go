package initializer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/amirasaad/retailpay/infra"
	infra_eventbus "github.com/amirasaad/retailpay/infra/eventbus"
	infra_repository "github.com/amirasaad/retailpay/infra/repository"
	"github.com/amirasaad/retailpay/pkg/app"
	"github.com/amirasaad/retailpay/pkg/config"
	"github.com/amirasaad/retailpay/pkg/domain/events"
	"github.com/amirasaad/retailpay/pkg/eventbus"
	"github.com/redis/go-redis/v9"
)

// InitializeDependencies initializes all the application dependencies. The
// returned cleanup releases connections and flushes telemetry; it is safe
// to call when err is non-nil.
func InitializeDependencies(ctx context.Context, cfg *config.App) (
	deps *app.Deps,
	cleanup func(context.Context) error,
	err error,
) {
	var closers []func(context.Context) error
	cleanup = func(ctx context.Context) error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i](ctx))
		}
		return errors.Join(errs...)
	}

	deps = &app.Deps{}
	logger := SetupLogger(cfg.Log)
	deps.Logger = logger

	shutdownTracing, err := setupTracing(ctx, cfg.Telemetry)
	if err != nil {
		return nil, cleanup, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	closers = append(closers, shutdownTracing)

	// Initialize database
	db, err := infra.NewDBConnection(cfg.DB, cfg.Env)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		return nil, cleanup, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, cleanup, err
	}
	closers = append(closers, func(context.Context) error { return sqlDB.Close() })

	if err := infra_repository.Migrate(db, infra.MigrationsURL(cfg.DB.MigrationsPath)); err != nil {
		return nil, cleanup, fmt.Errorf("failed to migrate database: %w", err)
	}

	// Initialize unit of work
	deps.Uow = infra_repository.NewUoW(db, infra_repository.Timeouts{
		LockWait:  cfg.DB.LockTimeout,
		Statement: cfg.DB.StatementTimeout,
	})

	redisClient, err := infra.NewRedisClient(cfg.Redis)
	if err != nil {
		return nil, cleanup, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	// A nil interface keeps locks and the rate cache in process.
	var shared redis.UniversalClient
	if redisClient != nil {
		closers = append(closers, func(context.Context) error { return redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, cleanup, fmt.Errorf("failed to reach redis: %w", err)
		}
		shared = redisClient
	}
	deps.Locker = infra.NewLocker(logger, cfg.Redis, shared)

	deps.Fx, err = infra.NewExchangeRateSystem(logger, cfg.ExchangeRate, cfg.Redis, shared)
	if err != nil {
		return nil, cleanup, fmt.Errorf("failed to initialize exchange rates: %w", err)
	}
	deps.Inventory = infra.NewInventoryClient(logger, cfg.Inventory)

	// Initialize event bus
	var bus eventbus.Bus = infra_eventbus.NewWithMemory(logger)
	if cfg.Kafka.Brokers != "" {
		forwarder, err := infra_eventbus.NewKafkaForwarder(bus, infra_eventbus.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			TopicPrefix:  cfg.Kafka.TopicPrefix,
			WriteTimeout: cfg.Kafka.WriteTimeout,
			SASLUsername: cfg.Kafka.SASLUsername,
			SASLPassword: cfg.Kafka.SASLPassword,
			TLSEnabled:   cfg.Kafka.TLSEnabled,
			Types: []events.EventType{
				events.EventTypeOrderStatusChanged,
				events.EventTypeInventorySyncFailed,
			},
		}, logger)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to create Kafka forwarder: %w", err)
		}
		closers = append(closers, func(context.Context) error { return forwarder.Close() })
		bus = forwarder
		logger.Info("Forwarding order events to Kafka", "brokers", cfg.Kafka.Brokers)
	}
	deps.EventBus = bus

	logDependencies(logger, cfg, redisClient != nil)
	return deps, cleanup, nil
}

func logDependencies(logger *slog.Logger, cfg *config.App, redis bool) {
	logger.Info("Dependencies initialized",
		"db_driver", cfg.DB.Driver,
		"redis", redis,
		"kafka", cfg.Kafka.Brokers != "",
		"inventory_stub", cfg.Inventory.URL == "",
		"telemetry", cfg.Telemetry.Enabled,
	)
}
