package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// JWTSecret returns the token signing secret, generating and storing one
// on first use. Concurrent first calls agree on a single value.
func (s *Store) JWTSecret(ctx context.Context) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}

	_, err := s.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES ('jwt_secret', ?)`,
		hex.EncodeToString(buf),
	)
	if err != nil {
		return "", failed("storing jwt_secret", err)
	}

	var secret string
	if err := s.get(ctx, "jwt_secret", &secret,
		`SELECT value FROM settings WHERE key = 'jwt_secret'`); err != nil {
		return "", err
	}
	return secret, nil
}
