package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/erazemk/izposoja/internal/api"
	"github.com/erazemk/izposoja/internal/bootstrap"
	"github.com/erazemk/izposoja/internal/config"
	"github.com/erazemk/izposoja/internal/db"
	"github.com/erazemk/izposoja/internal/logging"
	"github.com/erazemk/izposoja/internal/roles"
	"github.com/erazemk/izposoja/internal/store"
	"github.com/erazemk/izposoja/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fs := flag.NewFlagSet("izposoja", flag.ContinueOnError)

	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "")
	fs.StringVar(&cfg.DBPath, "d", cfg.DBPath, "")
	fs.StringVar(&cfg.ListenAddr, "addr", cfg.ListenAddr, "")
	fs.StringVar(&cfg.ListenAddr, "a", cfg.ListenAddr, "")
	fs.StringVar(&cfg.AdminUser, "user", cfg.AdminUser, "")
	fs.StringVar(&cfg.AdminUser, "u", cfg.AdminUser, "")
	fs.StringVar(&cfg.LogFile, "log", cfg.LogFile, "")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "")

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: izposoja [flags]

Flags:
  -d, -db <path>          SQLite database path (env DB_PATH, default: izposoja.db)
  -a, -addr <host:port>   listen address (env LISTEN_ADDR, default: :8080)
  -u, -user <name>        admin username on first run (env ADMIN_USER, default: admin)
  -l, -log <path>         log file path (env LOG_FILE, default: stdout/stderr only)
  -h, -help               show this help and exit

Other settings are read from the environment or a .env file:
  LOG_LEVEL, LOG_FORMAT, PUBLIC_BASE_URL, LETTER_PREFIX,
  ROLE_CACHE (memory|redis), ROLE_CACHE_TTL, REDIS_ADDR, REDIS_PASSWORD, REDIS_DB
`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected argument: %s\n", fs.Arg(0))
		fs.Usage()
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	closeLog, err := logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg); err != nil {
		slog.Error("server failed", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	slog.Info("database ready", "path", cfg.DBPath)

	s := store.New(database)

	admin, err := bootstrap.EnsureAdmin(ctx, s, cfg.AdminUser)
	if err != nil {
		return fmt.Errorf("creating admin account: %w", err)
	}
	if admin != nil {
		printAdmin(admin)
	}

	jwtSecret, err := s.JWTSecret(ctx)
	if err != nil {
		return fmt.Errorf("loading JWT secret: %w", err)
	}

	cache, closeCache, err := roleCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	router := api.NewRouter(api.Config{
		Store:         s,
		Roles:         roles.NewService(s, cache),
		Engine:        workflow.NewEngine(s, workflow.WithLetterPrefix(cfg.LetterPrefix)),
		JWTSecret:     jwtSecret,
		PublicBaseURL: cfg.PublicBaseURL,
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.LoggingMiddleware(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server started", "addr", cfg.ListenAddr, "public_url", cfg.PublicBaseURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped, closing database")
	return nil
}

// roleCache builds the configured role snapshot cache.
func roleCache(ctx context.Context, cfg *config.Config) (roles.Cache, func(), error) {
	if cfg.RoleCache != config.CacheRedis {
		return roles.NewMemoryCache(cfg.RoleCacheTTL), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
	}

	slog.Info("role cache ready", "backend", "redis", "addr", cfg.Redis.Addr)
	return roles.NewRedisCache(rdb, cfg.RoleCacheTTL), func() { rdb.Close() }, nil
}

func printAdmin(a *bootstrap.Admin) {
	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", a.Username)
	fmt.Printf("  Password: %s\n", a.Password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
	fmt.Println()
}
