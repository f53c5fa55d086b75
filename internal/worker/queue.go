package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hyperengineering/deep/internal/metrics"
)

type task struct {
	job Job
	id  string
}

// Queue hands jobs to a fixed pool of workers. Enqueue never blocks: when the
// buffer is full the job is dropped and logged. Jobs are idempotent, so a
// later enqueue repeats the work.
type Queue struct {
	runner  *Runner
	metrics *metrics.Metrics
	workers int
	tasks   chan task

	mu   sync.RWMutex
	jobs map[string]Job
}

// NewQueue creates a Queue with a buffer of size and the given worker count.
func NewQueue(runner *Runner, size, workers int, m *metrics.Metrics) *Queue {
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		runner:  runner,
		metrics: m,
		workers: workers,
		tasks:   make(chan task, size),
		jobs:    make(map[string]Job),
	}
}

// Register makes job available under its name.
func (q *Queue) Register(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[job.Name()] = job
}

// Enqueue schedules job name for resource id and reports whether it was accepted.
func (q *Queue) Enqueue(name, id string) bool {
	q.mu.RLock()
	job, ok := q.jobs[name]
	q.mu.RUnlock()
	if !ok {
		slog.Error("unknown job",
			"component", "worker",
			"action", "enqueue",
			"job", name,
		)
		return false
	}

	select {
	case q.tasks <- task{job: job, id: id}:
		slog.Debug("job enqueued",
			"component", "worker",
			"action", "enqueue",
			"job", name,
			"id", id,
		)
		return true
	default:
		q.metrics.RecordJob(name, metrics.StatusDropped, 0)
		slog.Error("queue full, job dropped",
			"component", "worker",
			"action", "enqueue",
			"job", name,
			"id", id,
		)
		return false
	}
}

// Run starts the workers and blocks until ctx is cancelled and every
// in-flight job has returned. Queued jobs not yet started are abandoned.
func (q *Queue) Run(ctx context.Context) {
	slog.Info("worker pool started",
		"component", "worker",
		"workers", q.workers,
		"queue_size", cap(q.tasks),
	)

	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.work(ctx)
		}()
	}
	wg.Wait()

	slog.Info("worker pool stopped",
		"component", "worker",
		"reason", "context_cancelled",
	)
}

func (q *Queue) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-q.tasks:
			q.runner.Run(ctx, t.job, t.id)
		}
	}
}
