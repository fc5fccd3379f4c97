package tenancy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"scopetree.org/internal/obs"
)

// AllowSetCache stores computed allow-sets keyed by (tenant, kind) for a
// short TTL. Tenant membership changes outside this component's control, so
// the TTL is a staleness tunable, not a correctness property.
type AllowSetCache interface {
	Get(ctx context.Context, tenantID int64, kind Kind) (AllowSet, bool, error)
	Set(ctx context.Context, tenantID int64, kind Kind, set AllowSet) error
}

// MemoryCache is an in-process AllowSetCache with lazy expiry.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]memoryCacheEntry
}

type memoryCacheEntry struct {
	set       AllowSet
	expiresAt time.Time
}

// MemoryCacheOption configures MemoryCache.
type MemoryCacheOption func(*MemoryCache)

// WithCacheClock overrides the time source (useful for tests).
func WithCacheClock(fn func() time.Time) MemoryCacheOption {
	return func(c *MemoryCache) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewMemoryCache creates a cache with the given TTL.
func NewMemoryCache(ttl time.Duration, opts ...MemoryCacheOption) *MemoryCache {
	c := &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryCacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cacheKey(tenantID int64, kind Kind) string {
	return fmt.Sprintf("%s:%d", kind, tenantID)
}

func (c *MemoryCache) Get(ctx context.Context, tenantID int64, kind Kind) (AllowSet, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[cacheKey(tenantID, kind)]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false, nil
	}
	// Copy so callers cannot mutate the cached set.
	out := make(AllowSet, len(entry.set))
	for id := range entry.set {
		out.Add(id)
	}
	return out, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, tenantID int64, kind Kind, set AllowSet) error {
	stored := make(AllowSet, len(set))
	for id := range set {
		stored.Add(id)
	}
	c.mu.Lock()
	c.entries[cacheKey(tenantID, kind)] = memoryCacheEntry{set: stored, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

// CachedResolver wraps a Resolver with a read-through AllowSetCache. Cache
// read failures fall through to the resolver; cache write failures are
// dropped after counting them.
type CachedResolver struct {
	resolver *Resolver
	cache    AllowSetCache
}

// NewCachedResolver wraps resolver with cache.
func NewCachedResolver(resolver *Resolver, cache AllowSetCache) (*CachedResolver, error) {
	if resolver == nil || cache == nil {
		return nil, fmt.Errorf("%w: resolver and cache are required", ErrInvalidInput)
	}
	return &CachedResolver{resolver: resolver, cache: cache}, nil
}

func (c *CachedResolver) TenantCategoryIDs(ctx context.Context, tenantID int64) (AllowSet, error) {
	return c.resolve(ctx, tenantID, KindCategory)
}

func (c *CachedResolver) TenantCourseIDs(ctx context.Context, tenantID int64) (AllowSet, error) {
	return c.resolve(ctx, tenantID, KindCourse)
}

func (c *CachedResolver) TenantUserIDs(ctx context.Context, tenantID int64, departmentID *int64) (AllowSet, error) {
	// Department-filtered sets are not cached; the (tenant, kind) key only
	// covers the unfiltered set.
	if departmentID != nil {
		return c.resolver.TenantUserIDs(ctx, tenantID, departmentID)
	}
	return c.resolve(ctx, tenantID, KindUser)
}

func (c *CachedResolver) IsAllowed(ctx context.Context, scope Scope, kind Kind, id int64) (bool, error) {
	if scope.Unscoped() {
		return true, nil
	}
	set, err := c.resolve(ctx, *scope.TenantID, kind)
	if err != nil {
		return false, err
	}
	return set.Contains(id), nil
}

func (c *CachedResolver) resolve(ctx context.Context, tenantID int64, kind Kind) (AllowSet, error) {
	if set, ok, err := c.cache.Get(ctx, tenantID, kind); err == nil && ok {
		obs.CountAllowSetCache("hit")
		return set, nil
	}
	obs.CountAllowSetCache("miss")
	set, err := c.resolver.allowSet(ctx, tenantID, kind)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, tenantID, kind, set); err != nil {
		obs.CountAllowSetCache("write_error")
	}
	return set, nil
}
