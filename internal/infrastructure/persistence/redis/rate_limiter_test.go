package redis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCounterStore is an in-memory stand-in for the cache's counter and
// key operations.
type fakeCounterStore struct {
	counts   map[string]int64
	expires  map[string]time.Duration
	incrErr  error
	values   map[string]string
	deleted  []string
	patterns []string
}

func newFakeCounterStore() *fakeCounterStore {
	return &fakeCounterStore{
		counts:  make(map[string]int64),
		expires: make(map[string]time.Duration),
		values:  make(map[string]string),
	}
}

func (f *fakeCounterStore) Incr(_ context.Context, key string) (int64, error) {
	if f.incrErr != nil {
		return 0, f.incrErr
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeCounterStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	f.expires[key] = ttl
	return nil
}

func (f *fakeCounterStore) DeleteByPattern(_ context.Context, pattern string) error {
	f.patterns = append(f.patterns, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range f.counts {
		if strings.HasPrefix(key, prefix) {
			delete(f.counts, key)
			f.deleted = append(f.deleted, key)
		}
	}
	return nil
}

func (f *fakeCounterStore) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) (bool, error) {
	if _, held := f.values[key]; held {
		return false, nil
	}
	f.values[key] = "held"
	return true, nil
}

func (f *fakeCounterStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
		f.deleted = append(f.deleted, key)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

func TestRateLimiter_AllowsWithinBudget(t *testing.T) {
	store := newFakeCounterStore()
	limiter := &RateLimiter{store: store, limit: 3}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, 7, "checkin")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := limiter.Allow(ctx, 7, "checkin")
	require.NoError(t, err)
	assert.False(t, allowed, "fourth call in the window must be denied")
}

func TestRateLimiter_WindowStartsOnFirstHit(t *testing.T) {
	store := newFakeCounterStore()
	limiter := &RateLimiter{store: store, limit: 5}
	ctx := context.Background()

	_, err := limiter.Allow(ctx, 7, "profile")
	require.NoError(t, err)
	_, err = limiter.Allow(ctx, 7, "profile")
	require.NoError(t, err)

	key := RateLimitKey(7, "profile")
	assert.Equal(t, TTLRateLimitWindow, store.expires[key])
	assert.Len(t, store.expires, 1, "only the first hit sets the TTL")
}

func TestRateLimiter_ActionsCountSeparately(t *testing.T) {
	store := newFakeCounterStore()
	limiter := &RateLimiter{store: store, limit: 1}
	ctx := context.Background()

	allowed, err := limiter.Allow(ctx, 7, "checkin")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.Allow(ctx, 7, "profile")
	require.NoError(t, err)
	assert.True(t, allowed, "a different action has its own counter")

	allowed, err = limiter.Allow(ctx, 8, "checkin")
	require.NoError(t, err)
	assert.True(t, allowed, "a different user has their own counter")
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	store := newFakeCounterStore()
	store.incrErr = errors.New("connection refused")
	limiter := &RateLimiter{store: store, limit: 1}

	allowed, err := limiter.Allow(context.Background(), 7, "checkin")
	assert.Error(t, err)
	assert.True(t, allowed, "a broken limiter never blocks the user")
}

func TestRateLimiter_ResetClearsOnlyThatUser(t *testing.T) {
	store := newFakeCounterStore()
	limiter := &RateLimiter{store: store, limit: 1}
	ctx := context.Background()

	_, err := limiter.Allow(ctx, 7, "checkin")
	require.NoError(t, err)
	_, err = limiter.Allow(ctx, 7, "profile")
	require.NoError(t, err)
	_, err = limiter.Allow(ctx, 8, "checkin")
	require.NoError(t, err)

	require.NoError(t, limiter.Reset(ctx, 7))

	assert.NotContains(t, store.counts, RateLimitKey(7, "checkin"))
	assert.NotContains(t, store.counts, RateLimitKey(7, "profile"))
	assert.Contains(t, store.counts, RateLimitKey(8, "checkin"))
}

func TestNewRateLimiter_DefaultsLimit(t *testing.T) {
	limiter := NewRateLimiter(nil, 0)
	assert.Equal(t, int64(DefaultCommandLimit), limiter.limit)
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB LOCK
// ══════════════════════════════════════════════════════════════════════════════

func TestJobLock_SecondAcquireIsDenied(t *testing.T) {
	store := newFakeCounterStore()
	lock := &JobLock{store: store, owner: "worker-a", ttl: TTLJobLock}
	ctx := context.Background()

	acquired, err := lock.Acquire(ctx, "quest_expiry")
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = lock.Acquire(ctx, "quest_expiry")
	require.NoError(t, err)
	assert.False(t, acquired, "the lease is exclusive")
}

func TestJobLock_ReleaseFreesTheLease(t *testing.T) {
	store := newFakeCounterStore()
	lock := &JobLock{store: store, owner: "worker-a", ttl: TTLJobLock}
	ctx := context.Background()

	acquired, err := lock.Acquire(ctx, "streak_decay")
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, lock.Release(ctx, "streak_decay"))

	acquired, err = lock.Acquire(ctx, "streak_decay")
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestJobLock_JobsLockIndependently(t *testing.T) {
	store := newFakeCounterStore()
	lock := &JobLock{store: store, owner: "worker-a", ttl: TTLJobLock}
	ctx := context.Background()

	acquired, err := lock.Acquire(ctx, "quest_expiry")
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = lock.Acquire(ctx, "streak_decay")
	require.NoError(t, err)
	assert.True(t, acquired, "each job has its own lease")
}
