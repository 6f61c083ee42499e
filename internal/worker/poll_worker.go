package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hooinvest/deposit-engine/internal/observability"
	"github.com/hooinvest/deposit-engine/internal/service"
)

// PollWorker runs the polling fallback sweep on a fixed interval. It is the
// liveness guarantee for deposits whose webhook was lost; crediting still
// goes through the same guarded transaction, so running it alongside live
// webhooks is safe.
type PollWorker struct {
	svc      *service.PollingService
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewPollWorker constructs a worker with a default five-minute interval.
func NewPollWorker(svc *service.PollingService) *PollWorker {
	return &PollWorker{
		svc:      svc,
		interval: 5 * time.Minute,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the sweep interval.
func (w *PollWorker) WithInterval(interval time.Duration) *PollWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and sweeps at the configured interval.
func (w *PollWorker) Start(ctx context.Context) {
	zap.L().Info("poll worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately at startup to catch up after downtime.
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("poll worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("poll worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *PollWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *PollWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *PollWorker) runOnce(ctx context.Context) {
	stats, err := w.svc.Sweep(ctx)
	if err != nil {
		observability.IncrementWorkerRun("poll_fallback", "failed")
		zap.L().Error("poll sweep failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("poll_fallback", "success")
	if stats.Scanned > 0 {
		zap.L().Info("poll sweep finished",
			zap.Int("scanned", stats.Scanned),
			zap.Int("applied", stats.Applied),
			zap.Int("still_pending", stats.StillPending),
			zap.Int("errors", stats.Errors),
		)
	}
}
