package tenancy

import (
	"context"
	"database/sql"
	"errors"
)

// PGDirectory implements the resolver collaborators against PostgreSQL.
type PGDirectory struct {
	db *sql.DB
}

var (
	_ TenantLookup     = (*PGDirectory)(nil)
	_ HierarchyLookup  = (*PGDirectory)(nil)
	_ CourseMembership = (*PGDirectory)(nil)
	_ UserMembership   = (*PGDirectory)(nil)
)

// NewPGDirectory wraps an open database handle.
func NewPGDirectory(db *sql.DB) *PGDirectory {
	return &PGDirectory{db: db}
}

func (d *PGDirectory) Tenant(ctx context.Context, id int64) (Tenant, error) {
	row := d.db.QueryRowContext(ctx,
		`select id, name, short_name, root_category_id, created_at from tenants where id=$1`, id)
	var t Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.ShortName, &t.RootCategoryID, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Tenant{}, ErrTenantNotFound
		}
		return Tenant{}, err
	}
	return t, nil
}

func (d *PGDirectory) Category(ctx context.Context, id int64) (Category, error) {
	row := d.db.QueryRowContext(ctx,
		`select id, coalesce(parent_id, 0), path from course_categories where id=$1`, id)
	var c Category
	if err := row.Scan(&c.ID, &c.ParentID, &c.Path); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Category{}, ErrCategoryNotFound
		}
		return Category{}, err
	}
	return c, nil
}

func (d *PGDirectory) CategoriesByPathPrefix(ctx context.Context, prefix string) ([]Category, error) {
	rows, err := d.db.QueryContext(ctx,
		`select id, coalesce(parent_id, 0), path from course_categories where path like $1 || '%' order by path`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.ParentID, &c.Path); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (d *PGDirectory) AssignedCourseIDs(ctx context.Context, tenantID int64) ([]int64, error) {
	rows, err := d.db.QueryContext(ctx,
		`select course_id from tenant_courses where tenant_id=$1 order by course_id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (d *PGDirectory) CourseIDsByCategories(ctx context.Context, categoryIDs []int64) ([]int64, error) {
	if len(categoryIDs) == 0 {
		return nil, nil
	}
	// pgx's database/sql driver maps []int64 to a bigint[] parameter.
	rows, err := d.db.QueryContext(ctx,
		`select id from courses where category_id = any($1) order by id`, categoryIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (d *PGDirectory) MemberUserIDs(ctx context.Context, tenantID int64, departmentID *int64) ([]int64, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if departmentID != nil {
		rows, err = d.db.QueryContext(ctx,
			`select user_id from tenant_users where tenant_id=$1 and department_id=$2 order by user_id`,
			tenantID, *departmentID)
	} else {
		rows, err = d.db.QueryContext(ctx,
			`select user_id from tenant_users where tenant_id=$1 order by user_id`, tenantID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (d *PGDirectory) AdministrativeIDs(ctx context.Context, userIDs []int64) ([]int64, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := d.db.QueryContext(ctx,
		`select user_id from administrative_users where user_id = any($1) order by user_id`, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
