package store

import (
	"context"
	"fmt"
	"time"
)

// AcquireLock takes key for owner until ttl elapses. It never blocks: when the
// key is held by an unexpired lock it returns false. Expired locks are taken over.
func (s *SQLiteStore) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ts := now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO locks (key, owner, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
		WHERE locks.expires_at <= ?
	`, key, owner, ts.Add(ttl).UnixNano(), ts.UnixNano())
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// ReleaseLock releases key if owner still holds it.
func (s *SQLiteStore) ReleaseLock(ctx context.Context, key, owner string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM locks WHERE key = ? AND owner = ?`, key, owner); err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}

// PurgeExpiredLocks deletes locks whose ttl has elapsed and returns how many
// were removed.
func (s *SQLiteStore) PurgeExpiredLocks(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM locks WHERE expires_at <= ?`, now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purge expired locks: %w", err)
	}
	return res.RowsAffected()
}
