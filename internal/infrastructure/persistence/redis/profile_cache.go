package redis

import (
	"context"
	"time"
)

// ProfileCache is a keyed wrapper over the generic cache for per-user
// profile views. It is deliberately untyped on the value: the application
// layer owns the view shape and the cache only moves JSON.
type ProfileCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewProfileCache creates a ProfileCache with the default profile TTL.
func NewProfileCache(cache *Cache) *ProfileCache {
	return &ProfileCache{cache: cache, ttl: TTLProfile}
}

// Get loads the cached profile view into dest. Returns ErrCacheMiss when
// the user has no cached view.
func (p *ProfileCache) Get(ctx context.Context, userID int64, dest interface{}) error {
	return p.cache.Get(ctx, ProfileKey(userID), dest)
}

// Set caches the profile view.
func (p *ProfileCache) Set(ctx context.Context, userID int64, view interface{}) error {
	return p.cache.Set(ctx, ProfileKey(userID), view, p.ttl)
}

// Invalidate drops the cached view. Called on every write that can change
// what the profile shows.
func (p *ProfileCache) Invalidate(ctx context.Context, userID int64) error {
	return p.cache.Delete(ctx, ProfileKey(userID))
}
