// Package worker runs the periodic repair jobs of the order reconciler.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Jobs is the work done on every tick.
type Jobs interface {
	RetryInventorySync(ctx context.Context, limit int) (int, error)
	ReconcileSessions(ctx context.Context, limit int) (int, error)
}

// Config controls the tick interval and how many rows each job takes per tick.
type Config struct {
	Interval  time.Duration
	BatchSize int
}

// Worker retries unfinished inventory decrements and applies gateway
// outcomes whose events were lost.
type Worker struct {
	jobs   Jobs
	cfg    Config
	logger *slog.Logger
	wg     sync.WaitGroup
}

// New creates a worker. Zero config values fall back to 30s and 50 rows.
func New(jobs Jobs, cfg Config, logger *slog.Logger) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Worker{jobs: jobs, cfg: cfg, logger: logger.With("component", "worker")}
}

// Start runs one pass immediately and then one per interval until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.cfg.Interval)
		defer ticker.Stop()

		w.RunOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				w.logger.Info("worker stopped")
				return
			case <-ticker.C:
				w.RunOnce(ctx)
			}
		}
	}()
	w.logger.Info("🚀 worker started", "interval", w.cfg.Interval, "batch_size", w.cfg.BatchSize)
}

// Wait blocks until the loop started by Start has returned.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// RunOnce runs both jobs once. Failures are logged and retried next tick.
func (w *Worker) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if n, err := w.jobs.ReconcileSessions(ctx, w.cfg.BatchSize); err != nil {
		w.logger.Error("session reconciliation failed", "error", err)
	} else if n > 0 {
		w.logger.Info("gateway sessions reconciled", "count", n)
	}
	if n, err := w.jobs.RetryInventorySync(ctx, w.cfg.BatchSize); err != nil {
		w.logger.Error("inventory retry failed", "error", err)
	} else if n > 0 {
		w.logger.Info("inventory sync retried", "count", n)
	}
}
