// Package lock provides non-blocking named locks that keep two runs of the
// same job from overlapping.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Locker takes and releases named locks. Acquire never blocks: it reports
// false when the key is already held. Locks expire after ttl so a crashed
// holder cannot keep a key forever.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Memory is a process-local Locker.
type Memory struct {
	cache *cache.Cache
}

// NewMemory creates a Memory locker. cleanup is the interval at which expired
// keys are evicted; zero disables the background janitor.
func NewMemory(cleanup time.Duration) *Memory {
	return &Memory{cache: cache.New(cache.NoExpiration, cleanup)}
}

func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if err := m.cache.Add(key, struct{}{}, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

func (m *Memory) Release(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

// Backend is the lock table the SQL locker works on.
type Backend interface {
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) error
}

// SQL is a Locker backed by the database, shared by every process using it.
type SQL struct {
	backend Backend
	owner   string
}

// NewSQL creates a SQL locker with a fresh owner token.
func NewSQL(b Backend) *SQL {
	return &SQL{backend: b, owner: uuid.NewString()}
}

// Owner returns the token identifying this locker's locks.
func (s *SQL) Owner() string { return s.owner }

func (s *SQL) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.backend.AcquireLock(ctx, key, s.owner, ttl)
}

func (s *SQL) Release(ctx context.Context, key string) error {
	return s.backend.ReleaseLock(ctx, key, s.owner)
}
