package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/izposoja/internal/model"
)

const departmentSelect = `SELECT id, name, code, created_at, deleted_at FROM departments`

// CreateDepartment creates a department.
func (s *Store) CreateDepartment(ctx context.Context, name, code string) (*model.Department, error) {
	id, err := s.insert(ctx, "department",
		`INSERT INTO departments (name, code) VALUES (?, ?)`, name, code)
	if err != nil {
		return nil, err
	}
	return s.Department(ctx, id)
}

// Department returns a department by ID.
func (s *Store) Department(ctx context.Context, id int64) (*model.Department, error) {
	d := &model.Department{}
	if err := s.get(ctx, "department", d, departmentSelect+` WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return d, nil
}

// DepartmentByName returns the active department called name.
func (s *Store) DepartmentByName(ctx context.Context, name string) (*model.Department, error) {
	d := &model.Department{}
	err := s.get(ctx, "department", d, departmentSelect+` WHERE name = ? AND deleted_at IS NULL`, name)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Departments returns all active departments ordered by name.
func (s *Store) Departments(ctx context.Context) ([]model.Department, error) {
	depts := []model.Department{}
	if err := sqlx.SelectContext(ctx, s.q, &depts,
		departmentSelect+` WHERE deleted_at IS NULL ORDER BY name`); err != nil {
		return nil, failed("listing departments", err)
	}
	return depts, nil
}

// UpdateDepartment renames a department. Owner assignments refer to
// departments by name, so they are renamed along with it.
func (s *Store) UpdateDepartment(ctx context.Context, id int64, name, code string) error {
	return s.inTx(ctx, func(tx *Store) error {
		old, err := tx.Department(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.execOne(ctx, "updating department", model.ErrNotFound,
			`UPDATE departments SET name = ?, code = ? WHERE id = ? AND deleted_at IS NULL`,
			name, code, id,
		); err != nil {
			return err
		}
		if old.Name == name {
			return nil
		}
		if _, err := tx.q.ExecContext(ctx,
			`UPDATE role_assignments SET department = ? WHERE department = ?`, name, old.Name,
		); err != nil {
			return failed("renaming department in role assignments", err)
		}
		return nil
	})
}

// DeleteDepartment soft-deletes a department.
func (s *Store) DeleteDepartment(ctx context.Context, id int64) error {
	return s.execOne(ctx, "deleting department", model.ErrNotFound,
		`UPDATE departments SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		time.Now().UTC(), id,
	)
}

// CreateCategory creates an item category.
func (s *Store) CreateCategory(ctx context.Context, name string, requiresHeadmaster bool) (*model.Category, error) {
	id, err := s.insert(ctx, "category",
		`INSERT INTO categories (name, requires_headmaster) VALUES (?, ?)`, name, requiresHeadmaster)
	if err != nil {
		return nil, err
	}
	c := &model.Category{}
	if err := s.get(ctx, "category", c,
		`SELECT id, name, requires_headmaster, created_at FROM categories WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return c, nil
}

// Categories returns all categories ordered by name.
func (s *Store) Categories(ctx context.Context) ([]model.Category, error) {
	cats := []model.Category{}
	if err := sqlx.SelectContext(ctx, s.q, &cats,
		`SELECT id, name, requires_headmaster, created_at FROM categories ORDER BY name`); err != nil {
		return nil, failed("listing categories", err)
	}
	return cats, nil
}

// UpdateCategory changes a category. Requests already created keep the
// approval path they were created with.
func (s *Store) UpdateCategory(ctx context.Context, id int64, name string, requiresHeadmaster bool) error {
	return s.execOne(ctx, "updating category", model.ErrNotFound,
		`UPDATE categories SET name = ?, requires_headmaster = ? WHERE id = ?`,
		name, requiresHeadmaster, id,
	)
}
