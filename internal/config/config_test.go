package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func missing(t *testing.T) string {
	return filepath.Join(t.TempDir(), "none.env")
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(missing(t))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "izposoja.db", cfg.DBPath)
	assert.Equal(t, CacheMemory, cfg.RoleCache)
	assert.Equal(t, 15*time.Minute, cfg.RoleCacheTTL)
	assert.Equal(t, "IZP", cfg.LetterPrefix)
}

func TestLoadCustomValues(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9000")
	t.Setenv("DB_PATH", "/custom/db.sqlite")
	t.Setenv("ROLE_CACHE", "Redis")
	t.Setenv("ROLE_CACHE_TTL", "90s")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("PUBLIC_BASE_URL", "https://loans.example.org/")

	cfg, err := Load(missing(t))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "/custom/db.sqlite", cfg.DBPath)
	assert.Equal(t, CacheRedis, cfg.RoleCache)
	assert.Equal(t, 90*time.Second, cfg.RoleCacheTTL)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "https://loans.example.org", cfg.PublicBaseURL)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LETTER_PREFIX=SMA\nLISTEN_ADDR=:7000\n"), 0o600))
	// The environment wins over the file.
	t.Setenv("LISTEN_ADDR", ":9000")
	// godotenv sets variables process-wide; make sure the test cleans up.
	t.Setenv("LETTER_PREFIX", "")
	require.NoError(t, os.Unsetenv("LETTER_PREFIX"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "SMA", cfg.LetterPrefix)
	assert.Equal(t, ":9000", cfg.ListenAddr)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"ROLE_CACHE":     "memcached",
		"ROLE_CACHE_TTL": "soon",
		"REDIS_DB":       "zero",
		"LOG_FORMAT":     "xml",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load(missing(t))
			assert.Error(t, err)
		})
	}
}
