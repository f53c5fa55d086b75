package worker

import (
	"context"
	"log/slog"
	"time"
)

// LockPurger deletes expired rows from the lock table.
type LockPurger interface {
	PurgeExpiredLocks(ctx context.Context) (int64, error)
}

// LockSweeper periodically removes expired locks left behind by crashed runs.
type LockSweeper struct {
	store    LockPurger
	interval time.Duration
}

// NewLockSweeper creates a sweeper running every interval.
func NewLockSweeper(store LockPurger, interval time.Duration) *LockSweeper {
	return &LockSweeper{store: store, interval: interval}
}

// Run starts the sweep loop. Blocks until ctx is cancelled.
// The first sweep happens after one interval.
func (w *LockSweeper) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "lock-sweeper",
		"interval", w.interval.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "lock-sweeper",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *LockSweeper) sweep(ctx context.Context) {
	purged, err := w.store.PurgeExpiredLocks(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("lock sweep failed",
			"component", "worker",
			"action", "sweep_failed",
			"error", err,
		)
		return
	}
	if purged > 0 {
		slog.Info("expired locks purged",
			"component", "worker",
			"action", "sweep_complete",
			"purged", purged,
		)
	}
}
