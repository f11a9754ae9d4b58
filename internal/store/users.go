package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/izposoja/internal/model"
)

const userSelect = `SELECT id, username, full_name, phone, password_hash, created_at, deleted_at FROM users`

// CreateUser creates a new user.
func (s *Store) CreateUser(ctx context.Context, username, fullName, phone, passwordHash string) (*model.User, error) {
	id, err := s.insert(ctx, "user",
		`INSERT INTO users (username, full_name, phone, password_hash) VALUES (?, ?, ?, ?)`,
		username, fullName, phone, passwordHash,
	)
	if err != nil {
		return nil, err
	}
	return s.User(ctx, id)
}

// User returns a user by ID, including soft-deleted ones.
func (s *Store) User(ctx context.Context, id int64) (*model.User, error) {
	u := &model.User{}
	if err := s.get(ctx, "user", u, userSelect+` WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return u, nil
}

// UserByUsername returns the active user with the given name, or the most
// recently deleted one if none is active.
func (s *Store) UserByUsername(ctx context.Context, username string) (*model.User, error) {
	u := &model.User{}
	err := s.get(ctx, "user", u,
		userSelect+` WHERE username = ? ORDER BY deleted_at IS NOT NULL, id DESC LIMIT 1`, username)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Users returns all non-deleted users.
func (s *Store) Users(ctx context.Context) ([]model.User, error) {
	users := []model.User{}
	if err := sqlx.SelectContext(ctx, s.q, &users,
		userSelect+` WHERE deleted_at IS NULL ORDER BY id`); err != nil {
		return nil, failed("listing users", err)
	}
	return users, nil
}

// UpdateProfile updates a user's profile fields.
func (s *Store) UpdateProfile(ctx context.Context, id int64, fullName, phone string) error {
	return s.execOne(ctx, "updating profile", model.ErrNotFound,
		`UPDATE users SET full_name = ?, phone = ? WHERE id = ? AND deleted_at IS NULL`,
		fullName, phone, id,
	)
}

// UpdateUserPassword updates a user's password hash.
func (s *Store) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	return s.execOne(ctx, "updating user password", model.ErrNotFound,
		`UPDATE users SET password_hash = ? WHERE id = ? AND deleted_at IS NULL`,
		passwordHash, id,
	)
}

// DeleteUser soft-deletes a user and drops their role assignments.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *Store) error {
		if err := tx.execOne(ctx, "deleting user", model.ErrNotFound,
			`UPDATE users SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
			time.Now().UTC(), id,
		); err != nil {
			return err
		}
		if _, err := tx.q.ExecContext(ctx, `DELETE FROM role_assignments WHERE user_id = ?`, id); err != nil {
			return failed("dropping role assignments", err)
		}
		return nil
	})
}
