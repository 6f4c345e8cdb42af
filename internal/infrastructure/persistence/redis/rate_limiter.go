package redis

import (
	"context"
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// DefaultCommandLimit is how many invocations of one action a user gets
// per rate-limit window.
const DefaultCommandLimit = 20

// counterStore is the slice of the cache the limiter needs. *Cache
// satisfies it.
type counterStore interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// RateLimiter is a fixed-window per-user, per-action counter. Callers
// should treat an error as an allow: a Redis outage must never block
// the bot.
type RateLimiter struct {
	store counterStore
	limit int64
}

// NewRateLimiter creates a RateLimiter with the given per-window limit.
// A non-positive limit falls back to DefaultCommandLimit.
func NewRateLimiter(cache *Cache, limit int64) *RateLimiter {
	if limit <= 0 {
		limit = DefaultCommandLimit
	}
	return &RateLimiter{store: cache, limit: limit}
}

// Allow counts one invocation and reports whether the user is still
// within the window's budget.
func (l *RateLimiter) Allow(ctx context.Context, userID int64, action string) (bool, error) {
	key := RateLimitKey(userID, action)

	count, err := l.store.Incr(ctx, key)
	if err != nil {
		return true, fmt.Errorf("rate limit incr: %w", err)
	}
	// First hit in the window starts the clock.
	if count == 1 {
		if err := l.store.Expire(ctx, key, TTLRateLimitWindow); err != nil {
			return true, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	return count <= l.limit, nil
}

// Reset drops all rate-limit counters for the user. Called when the
// user's data is erased.
func (l *RateLimiter) Reset(ctx context.Context, userID int64) error {
	return l.store.DeleteByPattern(ctx, fmt.Sprintf("%s%d:*", PrefixRateLimit, userID))
}
