package tenancy

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cache := NewMemoryCache(30*time.Second, WithCacheClock(func() time.Time { return now }))
	ctx := context.Background()

	if _, ok, _ := cache.Get(ctx, 1, KindCourse); ok {
		t.Fatal("expected miss on empty cache")
	}
	if err := cache.Set(ctx, 1, KindCourse, NewAllowSet(10, 11)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	set, ok, err := cache.Get(ctx, 1, KindCourse)
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if !set.Contains(10) || !set.Contains(11) || len(set) != 2 {
		t.Fatalf("unexpected cached set: %v", set.IDs())
	}

	// Mutating the returned set must not affect the cached copy.
	set.Add(999)
	again, ok, _ := cache.Get(ctx, 1, KindCourse)
	if !ok || again.Contains(999) {
		t.Fatalf("cache entry was mutated through the returned copy: %v", again.IDs())
	}

	now = now.Add(31 * time.Second)
	if _, ok, _ := cache.Get(ctx, 1, KindCourse); ok {
		t.Fatal("expected expiry after TTL")
	}
}

func TestMemoryCacheKeysAreKindScoped(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	ctx := context.Background()

	_ = cache.Set(ctx, 1, KindCourse, NewAllowSet(10))
	_ = cache.Set(ctx, 1, KindUser, NewAllowSet(20))

	courses, ok, _ := cache.Get(ctx, 1, KindCourse)
	if !ok || !courses.Contains(10) || courses.Contains(20) {
		t.Fatalf("course entry polluted: %v", courses.IDs())
	}
	users, ok, _ := cache.Get(ctx, 1, KindUser)
	if !ok || !users.Contains(20) || users.Contains(10) {
		t.Fatalf("user entry polluted: %v", users.IDs())
	}
}

func TestCachedResolverServesStaleWithinTTL(t *testing.T) {
	d := newTestDirectory()
	d.AddCourse(100, 2)
	r := newTestResolver(t, d)
	cached, err := NewCachedResolver(r, NewMemoryCache(time.Minute))
	if err != nil {
		t.Fatalf("NewCachedResolver: %v", err)
	}
	ctx := context.Background()

	first, err := cached.TenantCourseIDs(ctx, 1)
	if err != nil {
		t.Fatalf("TenantCourseIDs: %v", err)
	}
	if !first.Contains(100) {
		t.Fatalf("missing course: %v", first.IDs())
	}

	// Membership changes land after the cached read; staleness inside the
	// TTL window is expected.
	d.AddCourse(101, 2)
	second, err := cached.TenantCourseIDs(ctx, 1)
	if err != nil {
		t.Fatalf("TenantCourseIDs: %v", err)
	}
	if second.Contains(101) {
		t.Fatal("expected the cached set inside the TTL window")
	}
}

func TestCachedResolverEmptySetIsCached(t *testing.T) {
	d := NewMemoryDirectory()
	d.AddCategory(Category{ID: 1, Path: "/1"})
	d.AddTenant(Tenant{ID: 1, RootCategoryID: 1})
	r := newTestResolver(t, d)
	cached, err := NewCachedResolver(r, NewMemoryCache(time.Minute))
	if err != nil {
		t.Fatalf("NewCachedResolver: %v", err)
	}
	ctx := context.Background()

	set, err := cached.TenantCourseIDs(ctx, 1)
	if err != nil {
		t.Fatalf("TenantCourseIDs: %v", err)
	}
	if len(set) != 0 {
		t.Fatalf("expected empty set, got %v", set.IDs())
	}

	tenantID := int64(1)
	allowed, err := cached.IsAllowed(ctx, Scope{TenantID: &tenantID, RestrictToTenant: true}, KindCourse, 5)
	if err != nil {
		t.Fatalf("IsAllowed: %v", err)
	}
	if allowed {
		t.Fatal("cached empty allow-set must still deny")
	}
}
