package store

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/izposoja/internal/model"
)

const assignmentSelect = `SELECT id, user_id, role, department, created_at FROM role_assignments`

// AssignRole grants role to a user. Granting an assignment the user
// already holds is a no-op that returns the existing row.
func (s *Store) AssignRole(ctx context.Context, userID int64, role string, department *string) (*model.RoleAssignment, error) {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO role_assignments (user_id, role, department) VALUES (?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		userID, role, department,
	)
	if err != nil {
		return nil, failed("assigning role", err)
	}

	a := &model.RoleAssignment{}
	err = s.get(ctx, "role assignment", a,
		assignmentSelect+` WHERE user_id = ? AND role = ? AND COALESCE(department, '') = COALESCE(?, '')`,
		userID, role, department)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// RoleAssignment returns an assignment by ID.
func (s *Store) RoleAssignment(ctx context.Context, id int64) (*model.RoleAssignment, error) {
	a := &model.RoleAssignment{}
	if err := s.get(ctx, "role assignment", a, assignmentSelect+` WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return a, nil
}

// RevokeRole deletes an assignment.
func (s *Store) RevokeRole(ctx context.Context, id int64) error {
	return s.execOne(ctx, "revoking role", model.ErrNotFound,
		`DELETE FROM role_assignments WHERE id = ?`, id)
}

// RoleAssignments returns a user's assignments, oldest first.
func (s *Store) RoleAssignments(ctx context.Context, userID int64) ([]model.RoleAssignment, error) {
	out := []model.RoleAssignment{}
	if err := sqlx.SelectContext(ctx, s.q, &out,
		assignmentSelect+` WHERE user_id = ? ORDER BY id`, userID); err != nil {
		return nil, failed("listing role assignments", err)
	}
	return out, nil
}

// UsersWithRole returns the active users holding role.
func (s *Store) UsersWithRole(ctx context.Context, role string) ([]model.User, error) {
	users := []model.User{}
	if err := sqlx.SelectContext(ctx, s.q, &users,
		`SELECT DISTINCT u.id, u.username, u.full_name, u.phone, u.password_hash, u.created_at, u.deleted_at
		 FROM users u JOIN role_assignments ra ON ra.user_id = u.id
		 WHERE ra.role = ? AND u.deleted_at IS NULL ORDER BY u.id`, role); err != nil {
		return nil, failed("listing users with role", err)
	}
	return users, nil
}
