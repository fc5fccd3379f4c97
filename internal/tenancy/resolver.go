package tenancy

import (
	"context"
	"errors"
	"fmt"
)

// TenantLookup resolves tenants by ID.
type TenantLookup interface {
	Tenant(ctx context.Context, id int64) (Tenant, error)
}

// HierarchyLookup provides read-only access to the category tree.
type HierarchyLookup interface {
	Category(ctx context.Context, id int64) (Category, error)
	// CategoriesByPathPrefix returns every category whose path starts with
	// the given prefix. The prefix is expected to end with "/" so that
	// "/1/4" does not match "/1/40".
	CategoriesByPathPrefix(ctx context.Context, prefix string) ([]Category, error)
}

// CourseMembership lists course ownership for tenants.
type CourseMembership interface {
	// AssignedCourseIDs returns courses explicitly assigned to the tenant.
	AssignedCourseIDs(ctx context.Context, tenantID int64) ([]int64, error)
	// CourseIDsByCategories returns courses whose category is in the set.
	CourseIDsByCategories(ctx context.Context, categoryIDs []int64) ([]int64, error)
}

// UserMembership lists tenant members and identifies administrative
// principals, which are excluded from every user allow-set.
type UserMembership interface {
	MemberUserIDs(ctx context.Context, tenantID int64, departmentID *int64) ([]int64, error)
	// AdministrativeIDs returns the subset of userIDs that are
	// administrative, in one round trip.
	AdministrativeIDs(ctx context.Context, userIDs []int64) ([]int64, error)
}

// ScopeResolver is the caller-facing contract satisfied by both Resolver
// and CachedResolver.
type ScopeResolver interface {
	TenantCategoryIDs(ctx context.Context, tenantID int64) (AllowSet, error)
	TenantCourseIDs(ctx context.Context, tenantID int64) (AllowSet, error)
	TenantUserIDs(ctx context.Context, tenantID int64, departmentID *int64) (AllowSet, error)
	IsAllowed(ctx context.Context, scope Scope, kind Kind, id int64) (bool, error)
}

var (
	_ ScopeResolver = (*Resolver)(nil)
	_ ScopeResolver = (*CachedResolver)(nil)
)

// Resolver expands a tenant into the concrete allow-sets a scoped request
// may touch, by walking the tenant's category subtree and membership tables.
type Resolver struct {
	tenants   TenantLookup
	hierarchy HierarchyLookup
	courses   CourseMembership
	users     UserMembership
}

// NewResolver constructs a Resolver. All collaborators are required.
func NewResolver(tenants TenantLookup, hierarchy HierarchyLookup, courses CourseMembership, users UserMembership) (*Resolver, error) {
	if tenants == nil || hierarchy == nil || courses == nil || users == nil {
		return nil, errors.New("tenancy: all resolver collaborators are required")
	}
	return &Resolver{tenants: tenants, hierarchy: hierarchy, courses: courses, users: users}, nil
}

// TenantCategoryIDs returns the tenant's root category plus every
// descendant, determined by the materialized path prefix.
func (r *Resolver) TenantCategoryIDs(ctx context.Context, tenantID int64) (AllowSet, error) {
	tenant, err := r.tenants.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	root, err := r.hierarchy.Category(ctx, tenant.RootCategoryID)
	if err != nil {
		if errors.Is(err, ErrCategoryNotFound) {
			return nil, fmt.Errorf("%w: tenant %d root category %d missing", ErrCategoryNotFound, tenantID, tenant.RootCategoryID)
		}
		return nil, err
	}
	set := NewAllowSet(root.ID)
	descendants, err := r.hierarchy.CategoriesByPathPrefix(ctx, root.Path+"/")
	if err != nil {
		return nil, err
	}
	for _, c := range descendants {
		set.Add(c.ID)
	}
	return set, nil
}

// TenantCourseIDs returns the union of courses explicitly assigned to the
// tenant and courses living in any category of the tenant's subtree. Both
// sources are part of the contract; callers must not assume they agree.
func (r *Resolver) TenantCourseIDs(ctx context.Context, tenantID int64) (AllowSet, error) {
	categories, err := r.TenantCategoryIDs(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	assigned, err := r.courses.AssignedCourseIDs(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	set := NewAllowSet(assigned...)
	byCategory, err := r.courses.CourseIDsByCategories(ctx, categories.IDs())
	if err != nil {
		return nil, err
	}
	for _, id := range byCategory {
		set.Add(id)
	}
	return set, nil
}

// TenantUserIDs returns the tenant's members, optionally filtered to one
// department. Administrative principals never appear in the result.
func (r *Resolver) TenantUserIDs(ctx context.Context, tenantID int64, departmentID *int64) (AllowSet, error) {
	if _, err := r.tenants.Tenant(ctx, tenantID); err != nil {
		return nil, err
	}
	members, err := r.users.MemberUserIDs(ctx, tenantID, departmentID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return AllowSet{}, nil
	}
	admins, err := r.users.AdministrativeIDs(ctx, members)
	if err != nil {
		return nil, err
	}
	adminSet := NewAllowSet(admins...)
	set := make(AllowSet, len(members))
	for _, id := range members {
		if adminSet.Contains(id) {
			continue
		}
		set.Add(id)
	}
	return set, nil
}

// IsAllowed reports whether the scope permits touching the given entity.
// Unscoped tokens see everything. For scoped tokens an empty allow-set
// yields false for every ID; it is never treated as unscoped.
func (r *Resolver) IsAllowed(ctx context.Context, scope Scope, kind Kind, id int64) (bool, error) {
	if scope.Unscoped() {
		return true, nil
	}
	set, err := r.allowSet(ctx, *scope.TenantID, kind)
	if err != nil {
		return false, err
	}
	return set.Contains(id), nil
}

func (r *Resolver) allowSet(ctx context.Context, tenantID int64, kind Kind) (AllowSet, error) {
	switch kind {
	case KindCategory:
		return r.TenantCategoryIDs(ctx, tenantID)
	case KindCourse:
		return r.TenantCourseIDs(ctx, tenantID)
	case KindUser:
		return r.TenantUserIDs(ctx, tenantID, nil)
	default:
		return nil, fmt.Errorf("%w: unknown entity kind %q", ErrInvalidInput, kind)
	}
}
