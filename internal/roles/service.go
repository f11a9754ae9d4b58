package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/erazemk/izposoja/internal/model"
)

// ErrUnavailable means role data could not be loaded. It is distinct from a
// user that simply has no roles.
var ErrUnavailable = errors.New("role data unavailable")

// Loader reads role data from the system of record.
type Loader interface {
	RoleAssignments(ctx context.Context, userID int64) ([]model.RoleAssignment, error)
	Departments(ctx context.Context) ([]model.Department, error)
}

// ErrSuperseded is returned by Cache.Set when the user's state was dropped
// after the snapshot's generation was read.
var ErrSuperseded = errors.New("role snapshot superseded")

// Cache holds snapshots between requests of one session. Get returns nil
// without error on a miss. Every Delete advances the user's generation, and
// Set only stores a snapshot loaded under the current generation.
type Cache interface {
	Get(ctx context.Context, userID int64) (*Snapshot, error)
	Generation(ctx context.Context, userID int64) (uint64, error)
	Set(ctx context.Context, snap *Snapshot, gen uint64) error
	Delete(ctx context.Context, userID int64) error
}

const (
	// maxLoadAttempts bounds reloads when assignments keep changing while
	// a snapshot is being read.
	maxLoadAttempts = 3
	loadTimeout     = 10 * time.Second
)

// Service owns the role state of signed-in users: it is created on session
// start, dropped and reloaded when assignments change, and removed on
// sign-out.
type Service struct {
	loader Loader
	cache  Cache
	group  singleflight.Group
	now    func() time.Time
}

// NewService creates a Service. A nil cache selects an in-process cache with
// DefaultTTL.
func NewService(loader Loader, cache Cache) *Service {
	if cache == nil {
		cache = NewMemoryCache(DefaultTTL)
	}
	return &Service{loader: loader, cache: cache, now: time.Now}
}

// Start initializes role state for a fresh session, discarding anything
// cached for the user before.
func (s *Service) Start(ctx context.Context, userID int64) (*Resolver, error) {
	if err := s.drop(ctx, userID); err != nil {
		slog.Warn("clearing cached roles failed", "user_id", userID, "error", err)
	}
	r, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	slog.Info("role session started", "user_id", userID, "roles", r.Roles())
	return r, nil
}

// Resolve returns the user's resolver, loading it when nothing is cached.
func (s *Service) Resolve(ctx context.Context, userID int64) (*Resolver, error) {
	snap, err := s.cache.Get(ctx, userID)
	if err != nil {
		slog.Warn("reading cached roles failed", "user_id", userID, "error", err)
	} else if snap != nil {
		return NewResolver(*snap), nil
	}
	return s.load(ctx, userID)
}

// Invalidate drops cached state after the user's assignments changed. The
// next Resolve reloads it.
func (s *Service) Invalidate(ctx context.Context, userID int64) error {
	if err := s.drop(ctx, userID); err != nil {
		return fmt.Errorf("invalidating roles: %w", err)
	}
	return nil
}

// End tears down role state when the user signs out.
func (s *Service) End(ctx context.Context, userID int64) error {
	if err := s.drop(ctx, userID); err != nil {
		return fmt.Errorf("ending role session: %w", err)
	}
	slog.Info("role session ended", "user_id", userID)
	return nil
}

func (s *Service) drop(ctx context.Context, userID int64) error {
	s.group.Forget(strconv.FormatInt(userID, 10))
	return s.cache.Delete(ctx, userID)
}

// load fetches and caches the user's snapshot. Callers share one fetch,
// which outlives any single caller's cancellation. A snapshot whose
// generation was dropped mid-fetch is never cached; it is read again.
func (s *Service) load(ctx context.Context, userID int64) (*Resolver, error) {
	v, err, _ := s.group.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		var snap *Snapshot
		for range maxLoadAttempts {
			gen, genErr := s.cache.Generation(ctx, userID)
			if genErr != nil {
				slog.Warn("reading role generation failed", "user_id", userID, "error", genErr)
			}

			var err error
			if snap, err = s.fetch(ctx, userID); err != nil {
				return nil, err
			}
			if genErr != nil {
				// Without a generation the snapshot cannot be cached safely.
				return snap, nil
			}

			err = s.cache.Set(ctx, snap, gen)
			if errors.Is(err, ErrSuperseded) {
				slog.Debug("role snapshot superseded, reloading", "user_id", userID)
				continue
			}
			if err != nil {
				slog.Warn("caching roles failed", "user_id", userID, "error", err)
			}
			return snap, nil
		}
		slog.Warn("roles kept changing during load, serving uncached", "user_id", userID)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return NewResolver(*v.(*Snapshot)), nil
}

func (s *Service) fetch(ctx context.Context, userID int64) (*Snapshot, error) {
	assignments, err := s.loader.RoleAssignments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading role assignments: %w", ErrUnavailable, err)
	}
	departments, err := s.loader.Departments(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: loading departments: %w", ErrUnavailable, err)
	}
	return &Snapshot{
		UserID:      userID,
		Assignments: assignments,
		Departments: departments,
		LoadedAt:    s.now().UTC(),
	}, nil
}
