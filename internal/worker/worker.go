// Package worker runs the background refresh of tracked products.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Refresher re-resolves tracked products that are due for a price check.
type Refresher interface {
	RefreshDue(ctx context.Context, limit int) (int, error)
}

// Worker polls for due tracked products and refreshes them.
type Worker struct {
	refresher    Refresher
	pollInterval time.Duration
	concurrency  int
	batchSize    int
	stop         chan struct{}
	stopOnce     sync.Once
	inFlight     atomic.Int32
	wg           sync.WaitGroup
	logger       *slog.Logger
}

// Config holds worker configuration.
type Config struct {
	PollInterval time.Duration
	Concurrency  int
	BatchSize    int
}

// New creates a new worker.
func New(refresher Refresher, cfg Config, logger *slog.Logger) *Worker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 2
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		refresher:    refresher,
		pollInterval: cfg.PollInterval,
		concurrency:  cfg.Concurrency,
		batchSize:    cfg.BatchSize,
		stop:         make(chan struct{}),
		logger:       logger.With("component", "worker"),
	}
}

// Start begins polling. Products are leased by the refresher, so the
// goroutines never work on the same product.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting",
		"concurrency", w.concurrency,
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.runWorker(ctx, i)
	}
}

// Stop gracefully stops the worker and waits for in-flight batches.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("stopping")
		close(w.stop)
	})
	w.wg.Wait()
	w.logger.Info("stopped")
}

func (w *Worker) runWorker(ctx context.Context, workerID int) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.refreshBatch(ctx, workerID)
		}
	}
}

// Busy reports whether a refresh batch is running.
func (w *Worker) Busy() bool {
	return w.inFlight.Load() > 0
}

func (w *Worker) refreshBatch(ctx context.Context, workerID int) {
	w.inFlight.Add(1)
	defer w.inFlight.Add(-1)

	n, err := w.refresher.RefreshDue(ctx, w.batchSize)
	if err != nil && ctx.Err() == nil {
		w.logger.Error("failed to refresh tracked products", "worker_id", workerID, "refreshed", n, "error", err)
		return
	}
	if n > 0 {
		w.logger.Info("refreshed tracked products", "worker_id", workerID, "count", n)
	}
}
