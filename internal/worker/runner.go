// Package worker runs background jobs: a bounded in-process queue feeding a
// fixed pool of workers, each job guarded by a named lock.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperengineering/deep/internal/lock"
	"github.com/hyperengineering/deep/internal/metrics"
	"github.com/hyperengineering/deep/internal/types"
)

// Job is a unit of background work on one resource.
type Job interface {
	// Name identifies the job kind (e.g. "lead_extraction").
	Name() string
	// LockKey is the lock guarding a run for resource id.
	LockKey(id string) string
	Run(ctx context.Context, id string) error
	// SetStatus records the outcome on the resource.
	SetStatus(ctx context.Context, id string, status types.JobStatus, errorCode string) error
}

// Runner runs jobs under their lock.
type Runner struct {
	locker  lock.Locker
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewRunner creates a Runner. ttl bounds how long a crashed run can hold a lock.
func NewRunner(l lock.Locker, ttl time.Duration, m *metrics.Metrics) *Runner {
	return &Runner{locker: l, ttl: ttl, metrics: m}
}

// Run executes job for id unless another run holds its lock, in which case it
// returns false without error. Failures and panics are recorded on the
// resource with the generic error code and never propagate to the caller.
// The lock is released in every case.
func (r *Runner) Run(ctx context.Context, job Job, id string) (ran bool) {
	key := job.LockKey(id)
	acquired, err := r.locker.Acquire(ctx, key, r.ttl)
	if err != nil {
		slog.Error("lock acquire failed",
			"component", "worker",
			"action", "acquire_lock",
			"job", job.Name(),
			"key", key,
			"error", err,
		)
		r.metrics.RecordJob(job.Name(), metrics.StatusError, 0)
		return false
	}
	if !acquired {
		slog.Info("job already running",
			"component", "worker",
			"job", job.Name(),
			"id", id,
		)
		r.metrics.RecordJob(job.Name(), metrics.StatusAlreadyRunning, 0)
		return false
	}

	start := time.Now()
	defer func() {
		// Release with a fresh context so a cancelled run still frees its lock.
		if err := r.locker.Release(context.WithoutCancel(ctx), key); err != nil {
			slog.Error("lock release failed",
				"component", "worker",
				"action", "release_lock",
				"job", job.Name(),
				"key", key,
				"error", err,
			)
		}
	}()

	err = r.execute(ctx, job, id)
	status, code, result := types.JobSuccess, "", metrics.StatusSuccess
	if err != nil {
		status, code, result = types.JobFailed, types.ErrorCodeUnknown, metrics.StatusError
		slog.Error("job failed",
			"component", "worker",
			"job", job.Name(),
			"id", id,
			"error", err,
		)
	}
	if err := job.SetStatus(context.WithoutCancel(ctx), id, status, code); err != nil {
		slog.Error("job status update failed",
			"component", "worker",
			"job", job.Name(),
			"id", id,
			"error", err,
		)
	}

	duration := time.Since(start)
	r.metrics.RecordJob(job.Name(), result, duration.Seconds())
	slog.Info("job finished",
		"component", "worker",
		"job", job.Name(),
		"id", id,
		"status", string(status),
		"duration_ms", duration.Milliseconds(),
	)
	return true
}

// execute runs the job and converts a panic into an error.
func (r *Runner) execute(ctx context.Context, job Job, id string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return job.Run(ctx, id)
}
