package tenancy

import (
	"context"
	"errors"
	"testing"
)

func newTestDirectory() *MemoryDirectory {
	d := NewMemoryDirectory()
	// Root /1 with children /1/2 and /1/3, and /1/2/4 below the first child.
	d.AddCategory(Category{ID: 1, Path: "/1"})
	d.AddCategory(Category{ID: 2, ParentID: 1, Path: "/1/2"})
	d.AddCategory(Category{ID: 3, ParentID: 1, Path: "/1/3"})
	d.AddCategory(Category{ID: 4, ParentID: 2, Path: "/1/2/4"})
	// A sibling root whose ID shares the "/1" prefix textually.
	d.AddCategory(Category{ID: 10, Path: "/10"})
	d.AddCategory(Category{ID: 11, ParentID: 10, Path: "/10/11"})
	d.AddTenant(Tenant{ID: 1, Name: "Acme", ShortName: "acme", RootCategoryID: 1})
	return d
}

func newTestResolver(t *testing.T, d *MemoryDirectory) *Resolver {
	t.Helper()
	r, err := NewResolver(d, d, d, d)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

func TestTenantCategoryIDsSubtree(t *testing.T) {
	d := newTestDirectory()
	r := newTestResolver(t, d)

	set, err := r.TenantCategoryIDs(context.Background(), 1)
	if err != nil {
		t.Fatalf("TenantCategoryIDs: %v", err)
	}
	want := []int64{1, 2, 3, 4}
	got := set.IDs()
	if len(got) != len(want) {
		t.Fatalf("unexpected set %v, want %v", got, want)
	}
	for i, id := range want {
		if got[i] != id {
			t.Fatalf("unexpected set %v, want %v", got, want)
		}
	}
	if set.Contains(10) || set.Contains(11) {
		t.Fatalf("path prefix must not match the /10 subtree: %v", got)
	}
}

func TestTenantCategoryIDsInsertionOrderIndependent(t *testing.T) {
	d := NewMemoryDirectory()
	// Children registered before the root, with explicit paths.
	d.AddCategory(Category{ID: 4, ParentID: 2, Path: "/1/2/4"})
	d.AddCategory(Category{ID: 3, ParentID: 1, Path: "/1/3"})
	d.AddCategory(Category{ID: 2, ParentID: 1, Path: "/1/2"})
	d.AddCategory(Category{ID: 1, Path: "/1"})
	d.AddTenant(Tenant{ID: 1, RootCategoryID: 1})
	r := newTestResolver(t, d)

	set, err := r.TenantCategoryIDs(context.Background(), 1)
	if err != nil {
		t.Fatalf("TenantCategoryIDs: %v", err)
	}
	for _, id := range []int64{1, 2, 3, 4} {
		if !set.Contains(id) {
			t.Fatalf("missing category %d in %v", id, set.IDs())
		}
	}
	if len(set) != 4 {
		t.Fatalf("expected 4 categories, got %v", set.IDs())
	}
}

func TestTenantCourseIDsUnion(t *testing.T) {
	d := newTestDirectory()
	d.AddCourse(100, 2)  // inside the subtree
	d.AddCourse(101, 4)  // deeper inside the subtree
	d.AddCourse(200, 10) // outside
	d.AssignCourse(1, 300)
	r := newTestResolver(t, d)

	set, err := r.TenantCourseIDs(context.Background(), 1)
	if err != nil {
		t.Fatalf("TenantCourseIDs: %v", err)
	}
	for _, id := range []int64{100, 101, 300} {
		if !set.Contains(id) {
			t.Fatalf("missing course %d in %v", id, set.IDs())
		}
	}
	if set.Contains(200) {
		t.Fatalf("course outside the subtree leaked in: %v", set.IDs())
	}
}

func TestEmptyTenantYieldsEmptySetNotUnscoped(t *testing.T) {
	d := NewMemoryDirectory()
	d.AddCategory(Category{ID: 1, Path: "/1"})
	d.AddTenant(Tenant{ID: 1, RootCategoryID: 1})
	r := newTestResolver(t, d)

	set, err := r.TenantCourseIDs(context.Background(), 1)
	if err != nil {
		t.Fatalf("TenantCourseIDs: %v", err)
	}
	if len(set) != 0 {
		t.Fatalf("expected empty course set, got %v", set.IDs())
	}

	tenantID := int64(1)
	scope := Scope{TenantID: &tenantID, RestrictToTenant: true}
	allowed, err := r.IsAllowed(context.Background(), scope, KindCourse, 999)
	if err != nil {
		t.Fatalf("IsAllowed: %v", err)
	}
	if allowed {
		t.Fatal("empty allow-set must deny, not fall back to unscoped")
	}
}

func TestIsAllowedUnscoped(t *testing.T) {
	d := NewMemoryDirectory()
	r := newTestResolver(t, d)

	for _, scope := range []Scope{
		{TenantID: nil, RestrictToTenant: true},
		{TenantID: nil, RestrictToTenant: false},
	} {
		allowed, err := r.IsAllowed(context.Background(), scope, KindCourse, 12345)
		if err != nil {
			t.Fatalf("IsAllowed: %v", err)
		}
		if !allowed {
			t.Fatalf("unscoped restriction must allow everything: %+v", scope)
		}
	}

	tenantID := int64(77) // does not exist, but the scope is not tenant-restricted
	allowed, err := r.IsAllowed(context.Background(), Scope{TenantID: &tenantID, RestrictToTenant: false}, KindUser, 5)
	if err != nil {
		t.Fatalf("IsAllowed: %v", err)
	}
	if !allowed {
		t.Fatal("restrict_to_tenant=false must allow everything")
	}
}

func TestTenantUserIDsExcludesAdministrators(t *testing.T) {
	d := newTestDirectory()
	d.AddMember(1, 100, 0)
	d.AddMember(1, 101, 7)
	d.AddMember(1, 102, 0)
	d.SetAdministrative(102, true)
	r := newTestResolver(t, d)

	set, err := r.TenantUserIDs(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("TenantUserIDs: %v", err)
	}
	if !set.Contains(100) || !set.Contains(101) {
		t.Fatalf("missing members: %v", set.IDs())
	}
	if set.Contains(102) {
		t.Fatalf("administrative principal leaked into allow-set: %v", set.IDs())
	}

	dept := int64(7)
	filtered, err := r.TenantUserIDs(context.Background(), 1, &dept)
	if err != nil {
		t.Fatalf("TenantUserIDs with department: %v", err)
	}
	if len(filtered) != 1 || !filtered.Contains(101) {
		t.Fatalf("unexpected department filter result: %v", filtered.IDs())
	}
}

type countingUsers struct {
	*MemoryDirectory
	adminLookups int
}

func (c *countingUsers) AdministrativeIDs(ctx context.Context, userIDs []int64) ([]int64, error) {
	c.adminLookups++
	return c.MemoryDirectory.AdministrativeIDs(ctx, userIDs)
}

func TestTenantUserIDsBatchesAdminLookup(t *testing.T) {
	d := newTestDirectory()
	for _, userID := range []int64{100, 101, 102, 103} {
		d.AddMember(1, userID, 0)
	}
	d.SetAdministrative(103, true)
	users := &countingUsers{MemoryDirectory: d}
	r, err := NewResolver(d, d, d, users)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	set, err := r.TenantUserIDs(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("TenantUserIDs: %v", err)
	}
	if len(set) != 3 || set.Contains(103) {
		t.Fatalf("unexpected set: %v", set.IDs())
	}
	if users.adminLookups != 1 {
		t.Fatalf("expected one admin lookup for the whole member list, got %d", users.adminLookups)
	}
}

func TestTenantNotFound(t *testing.T) {
	d := NewMemoryDirectory()
	r := newTestResolver(t, d)

	if _, err := r.TenantCategoryIDs(context.Background(), 42); !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}
	if _, err := r.TenantUserIDs(context.Background(), 42, nil); !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestIsAllowedUnknownKind(t *testing.T) {
	d := newTestDirectory()
	r := newTestResolver(t, d)

	tenantID := int64(1)
	scope := Scope{TenantID: &tenantID, RestrictToTenant: true}
	if _, err := r.IsAllowed(context.Background(), scope, Kind("module"), 1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
