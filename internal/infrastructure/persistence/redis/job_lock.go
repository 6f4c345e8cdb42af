package redis

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB LOCK
// ══════════════════════════════════════════════════════════════════════════════

// lockStore is the slice of the cache the lock needs. *Cache satisfies it.
type lockStore interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// JobLock is a best-effort distributed lock for the background jobs, so
// that two worker instances never sweep the same schedule at once. The
// lease expires on its own if a holder dies mid-run.
type JobLock struct {
	store lockStore
	owner string
	ttl   time.Duration
}

// NewJobLock creates a JobLock. The owner string identifies this worker
// instance in the lock value, which helps when debugging a stuck lease.
func NewJobLock(cache *Cache, owner string) *JobLock {
	return &JobLock{store: cache, owner: owner, ttl: TTLJobLock}
}

// Acquire tries to take the lease for the named job. It returns false
// when another instance holds it.
func (l *JobLock) Acquire(ctx context.Context, job string) (bool, error) {
	return l.store.SetNX(ctx, LockKey(job), l.owner, l.ttl)
}

// Release drops the lease. Safe to call when the lease already expired.
func (l *JobLock) Release(ctx context.Context, job string) error {
	return l.store.Delete(ctx, LockKey(job))
}
