// Package bootstrap prepares a fresh installation: it creates the first
// administrator so someone can sign in and grant the remaining roles.
package bootstrap

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/erazemk/izposoja/internal/auth"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/store"
)

// Admin describes the account created by EnsureAdmin.
type Admin struct {
	Username string
	Password string
}

// EnsureAdmin creates username with the admin role and a random password
// when no user holds the admin role yet. It returns nil when an admin
// already exists.
func EnsureAdmin(ctx context.Context, s *store.Store, username string) (*Admin, error) {
	admins, err := s.UsersWithRole(ctx, model.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if len(admins) > 0 {
		return nil, nil
	}

	password, err := GeneratePassword(16)
	if err != nil {
		return nil, fmt.Errorf("generating password: %w", err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	err = s.WithTx(ctx, func(tx *store.Store) error {
		u, err := tx.CreateUser(ctx, username, "Administrator", "", hash)
		if err != nil {
			return fmt.Errorf("creating admin user: %w", err)
		}
		_, err = tx.AssignRole(ctx, u.ID, model.RoleAdmin, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Admin{Username: username, Password: password}, nil
}

// GeneratePassword creates a random password of the given length.
func GeneratePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
