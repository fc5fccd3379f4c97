package tenancy

import (
	"context"
	"strconv"
	"strings"
	"sync"
)

// MemoryDirectory implements the resolver collaborators with in-process
// maps. It backs tests and small embedded deployments.
type MemoryDirectory struct {
	mu          sync.RWMutex
	tenants     map[int64]Tenant
	categories  map[int64]Category
	courseCat   map[int64]int64          // course -> category
	assigned    map[int64]map[int64]bool // tenant -> course set
	members     map[int64][]memberRecord // tenant -> users
	administers map[int64]bool           // administrative principals
}

type memberRecord struct {
	userID       int64
	departmentID int64 // 0 when the user is not placed in a department
}

var (
	_ TenantLookup     = (*MemoryDirectory)(nil)
	_ HierarchyLookup  = (*MemoryDirectory)(nil)
	_ CourseMembership = (*MemoryDirectory)(nil)
	_ UserMembership   = (*MemoryDirectory)(nil)
)

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		tenants:     make(map[int64]Tenant),
		categories:  make(map[int64]Category),
		courseCat:   make(map[int64]int64),
		assigned:    make(map[int64]map[int64]bool),
		members:     make(map[int64][]memberRecord),
		administers: make(map[int64]bool),
	}
}

// AddTenant registers a tenant.
func (d *MemoryDirectory) AddTenant(t Tenant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tenants[t.ID] = t
}

// AddCategory registers a category. When Path is empty it is derived from
// the parent's path, so insertion order of siblings does not matter as long
// as parents precede children.
func (d *MemoryDirectory) AddCategory(c Category) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c.Path == "" {
		if parent, ok := d.categories[c.ParentID]; ok {
			c.Path = parent.Path + "/" + formatID(c.ID)
		} else {
			c.Path = "/" + formatID(c.ID)
		}
	}
	d.categories[c.ID] = c
}

// AddCourse places a course in a category.
func (d *MemoryDirectory) AddCourse(courseID, categoryID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.courseCat[courseID] = categoryID
}

// AssignCourse records an explicit tenant-course assignment.
func (d *MemoryDirectory) AssignCourse(tenantID, courseID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.assigned[tenantID]
	if !ok {
		set = make(map[int64]bool)
		d.assigned[tenantID] = set
	}
	set[courseID] = true
}

// AddMember records a tenant membership. departmentID 0 means no department.
func (d *MemoryDirectory) AddMember(tenantID, userID, departmentID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[tenantID] = append(d.members[tenantID], memberRecord{userID: userID, departmentID: departmentID})
}

// SetAdministrative marks a principal as administrative.
func (d *MemoryDirectory) SetAdministrative(userID int64, admin bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.administers[userID] = admin
}

func (d *MemoryDirectory) Tenant(ctx context.Context, id int64) (Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tenants[id]
	if !ok {
		return Tenant{}, ErrTenantNotFound
	}
	return t, nil
}

func (d *MemoryDirectory) Category(ctx context.Context, id int64) (Category, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.categories[id]
	if !ok {
		return Category{}, ErrCategoryNotFound
	}
	return c, nil
}

func (d *MemoryDirectory) CategoriesByPathPrefix(ctx context.Context, prefix string) ([]Category, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Category
	for _, c := range d.categories {
		if strings.HasPrefix(c.Path, prefix) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (d *MemoryDirectory) AssignedCourseIDs(ctx context.Context, tenantID int64) ([]int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []int64
	for courseID := range d.assigned[tenantID] {
		out = append(out, courseID)
	}
	return out, nil
}

func (d *MemoryDirectory) CourseIDsByCategories(ctx context.Context, categoryIDs []int64) ([]int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	wanted := make(map[int64]bool, len(categoryIDs))
	for _, id := range categoryIDs {
		wanted[id] = true
	}
	var out []int64
	for courseID, categoryID := range d.courseCat {
		if wanted[categoryID] {
			out = append(out, courseID)
		}
	}
	return out, nil
}

func (d *MemoryDirectory) MemberUserIDs(ctx context.Context, tenantID int64, departmentID *int64) ([]int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []int64
	for _, m := range d.members[tenantID] {
		if departmentID != nil && m.departmentID != *departmentID {
			continue
		}
		out = append(out, m.userID)
	}
	return out, nil
}

func (d *MemoryDirectory) AdministrativeIDs(ctx context.Context, userIDs []int64) ([]int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []int64
	for _, id := range userIDs {
		if d.administers[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
