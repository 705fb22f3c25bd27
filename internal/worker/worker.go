// Package worker relays events whose direct publish failed.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// Releaser returns rows stuck in processing after a crash to the queue.
type Releaser interface {
	ReleaseStuck(ctx context.Context) (int64, error)
}

type Worker struct {
	poller   *SpoolPoller
	releaser Releaser
	interval time.Duration
	logger   *slog.Logger
}

func New(poller *SpoolPoller, releaser Releaser, interval time.Duration, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		poller:   poller,
		releaser: releaser,
		interval: interval,
		logger:   logger.With("component", "worker"),
	}
}

// Run polls until ctx is cancelled. A full batch triggers the next poll
// right away instead of waiting for the ticker.
func (w *Worker) Run(ctx context.Context) error {
	if w.releaser != nil {
		n, err := w.releaser.ReleaseStuck(ctx)
		if err != nil {
			w.logger.Error("release stuck spool rows", "error", err)
		} else if n > 0 {
			w.logger.Info("released stuck spool rows", "count", n)
		}
	}

	w.logger.Info("worker started", "interval", w.interval, "batch", w.poller.batch)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return nil
		case <-ticker.C:
			for {
				n, err := w.poller.ProcessBatch(ctx)
				if err != nil {
					w.logger.Error("process spool batch", "error", err)
					break
				}
				if n < w.poller.batch || ctx.Err() != nil {
					break
				}
			}
		}
	}
}
