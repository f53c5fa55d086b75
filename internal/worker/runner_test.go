package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperengineering/deep/internal/lock"
	"github.com/hyperengineering/deep/internal/types"
)

// fakeJob records runs and status updates.
type fakeJob struct {
	mu       sync.Mutex
	runs     int
	statuses []statusUpdate
	err      error
	panicMsg string
	block    chan struct{}
	started  chan struct{}
}

type statusUpdate struct {
	id     string
	status types.JobStatus
	code   string
}

func (j *fakeJob) Name() string { return "fake" }

func (j *fakeJob) LockKey(id string) string { return "fake:" + id }

func (j *fakeJob) Run(ctx context.Context, id string) error {
	j.mu.Lock()
	j.runs++
	j.mu.Unlock()
	if j.started != nil {
		j.started <- struct{}{}
	}
	if j.block != nil {
		<-j.block
	}
	if j.panicMsg != "" {
		panic(j.panicMsg)
	}
	return j.err
}

func (j *fakeJob) SetStatus(_ context.Context, id string, status types.JobStatus, code string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.statuses = append(j.statuses, statusUpdate{id: id, status: status, code: code})
	return nil
}

func (j *fakeJob) runCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}

func (j *fakeJob) lastStatus() statusUpdate {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.statuses) == 0 {
		return statusUpdate{}
	}
	return j.statuses[len(j.statuses)-1]
}

func assertReleased(t *testing.T, l lock.Locker, key string) {
	t.Helper()
	ok, err := l.Acquire(context.Background(), key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "lock %s still held", key)
}

func TestRunner_Success(t *testing.T) {
	l := lock.NewMemory(0)
	r := NewRunner(l, time.Minute, nil)
	job := &fakeJob{}

	assert.True(t, r.Run(context.Background(), job, "l1"))
	assert.Equal(t, 1, job.runCount())
	assert.Equal(t, statusUpdate{id: "l1", status: types.JobSuccess}, job.lastStatus())
	assertReleased(t, l, "fake:l1")
}

func TestRunner_ErrorMarksFailed(t *testing.T) {
	l := lock.NewMemory(0)
	r := NewRunner(l, time.Minute, nil)
	job := &fakeJob{err: errors.New("upstream down")}

	assert.True(t, r.Run(context.Background(), job, "l1"))
	assert.Equal(t, statusUpdate{id: "l1", status: types.JobFailed, code: types.ErrorCodeUnknown}, job.lastStatus())
	assertReleased(t, l, "fake:l1")
}

func TestRunner_PanicMarksFailedAndReleasesLock(t *testing.T) {
	l := lock.NewMemory(0)
	r := NewRunner(l, time.Minute, nil)
	job := &fakeJob{panicMsg: "nil map"}

	assert.NotPanics(t, func() { r.Run(context.Background(), job, "l1") })
	assert.Equal(t, types.JobFailed, job.lastStatus().status)
	assert.Equal(t, types.ErrorCodeUnknown, job.lastStatus().code)
	assertReleased(t, l, "fake:l1")
}

func TestRunner_AlreadyRunning(t *testing.T) {
	l := lock.NewMemory(0)
	r := NewRunner(l, time.Minute, nil)
	job := &fakeJob{}

	ok, err := l.Acquire(context.Background(), "fake:l1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	assert.False(t, r.Run(context.Background(), job, "l1"))
	assert.Equal(t, 0, job.runCount())
	assert.Empty(t, job.statuses, "status untouched while another run holds the lock")
}

func TestRunner_CancelledContextStillReleases(t *testing.T) {
	l := lock.NewMemory(0)
	r := NewRunner(l, time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	job := &fakeJob{err: context.Canceled}

	cancel()
	r.Run(ctx, job, "l1")
	assertReleased(t, l, "fake:l1")
}
