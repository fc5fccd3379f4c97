package tenancy

import (
	"errors"
	"sort"
	"time"
)

var (
	ErrTenantNotFound   = errors.New("tenancy: tenant not found")
	ErrCategoryNotFound = errors.New("tenancy: category not found")
	ErrInvalidInput     = errors.New("tenancy: invalid input")
)

// Tenant is an organization that owns one subtree of the category hierarchy
// and a set of users and courses.
type Tenant struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	ShortName      string    `json:"short_name"`
	RootCategoryID int64     `json:"root_category_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Category is a node in the course-category tree. Path is the materialized
// ancestor chain including the node itself (e.g. "/1/4/9"), so subtree
// membership reduces to a prefix test.
type Category struct {
	ID       int64  `json:"id"`
	ParentID int64  `json:"parent_id"` // 0 for root categories
	Path     string `json:"path"`
}

// Kind selects the entity family an allow-set covers.
type Kind string

const (
	KindCategory Kind = "category"
	KindCourse   Kind = "course"
	KindUser     Kind = "user"
)

// Scope is the slice of a token restriction the resolver needs. A nil
// TenantID or RestrictToTenant=false means the holder is unscoped and sees
// everything; the caller applies its own authorization checks in that case.
type Scope struct {
	TenantID         *int64 `json:"tenant_id,omitempty"`
	RestrictToTenant bool   `json:"restrict_to_tenant"`
}

// Unscoped reports whether the scope places no tenant boundary on access.
func (s Scope) Unscoped() bool {
	return !s.RestrictToTenant || s.TenantID == nil
}

// AllowSet is the computed set of entity IDs a scoped request may touch.
// An empty set is a valid result and means "no results", never "unscoped".
type AllowSet map[int64]struct{}

// NewAllowSet builds a set from the given IDs.
func NewAllowSet(ids ...int64) AllowSet {
	s := make(AllowSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts an ID into the set.
func (s AllowSet) Add(id int64) { s[id] = struct{}{} }

// Contains reports membership.
func (s AllowSet) Contains(id int64) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the members in ascending order.
func (s AllowSet) IDs() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
