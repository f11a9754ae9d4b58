// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Role cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type Config struct {
	ListenAddr    string
	DBPath        string
	LogLevel      string
	LogFormat     string
	LogFile       string
	AdminUser     string
	PublicBaseURL string
	LetterPrefix  string
	RoleCache     string
	RoleCacheTTL  time.Duration
	Redis         RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Load reads the configuration. Variables from the given .env files (".env"
// when none are named) fill in whatever the environment does not already
// set; missing files are skipped.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	cfg := &Config{
		ListenAddr:    getEnv("LISTEN_ADDR", ":8080"),
		DBPath:        getEnv("DB_PATH", "izposoja.db"),
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:     strings.ToLower(getEnv("LOG_FORMAT", "text")),
		LogFile:       getEnv("LOG_FILE", ""),
		AdminUser:     getEnv("ADMIN_USER", "admin"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		LetterPrefix:  getEnv("LETTER_PREFIX", "IZP"),
		RoleCache:     strings.ToLower(getEnv("ROLE_CACHE", CacheMemory)),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
	}

	var err error
	if cfg.RoleCacheTTL, err = getEnvDuration("ROLE_CACHE_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Redis.DB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be caught while parsing. It is also
// called after command-line flags have been applied.
func (c *Config) Validate() error {
	switch c.RoleCache {
	case CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("ROLE_CACHE must be %q or %q, got %q", CacheMemory, CacheRedis, c.RoleCache)
	}
	if c.RoleCacheTTL <= 0 {
		return fmt.Errorf("ROLE_CACHE_TTL must be positive, got %s", c.RoleCacheTTL)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	if c.DBPath == "" {
		return errors.New("DB_PATH is empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return i, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
