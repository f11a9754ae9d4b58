package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/erazemk/izposoja/internal/auth"
	"github.com/erazemk/izposoja/internal/roles"
	"github.com/erazemk/izposoja/internal/workflow"
)

type contextKey string

const (
	claimsKey contextKey = "claims"
	rolesKey  contextKey = "roles"
)

// TokenChecker reports whether a token id was revoked by logout.
type TokenChecker interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// AuthMiddleware validates the bearer token, rejects revoked tokens, and
// adds the claims and the user's resolved roles to the context.
func AuthMiddleware(secret string, tokens TokenChecker, svc *roles.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				jsonError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}

			claims, err := auth.ValidateToken(secret, strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				jsonError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			revoked, err := tokens.IsTokenRevoked(r.Context(), claims.ID)
			if err != nil {
				slog.Error("failed to check token revocation", "error", err)
				jsonError(w, http.StatusServiceUnavailable, "storage unavailable, try again")
				return
			}
			if revoked {
				jsonError(w, http.StatusUnauthorized, "token revoked")
				return
			}

			resolver, err := svc.Resolve(r.Context(), claims.UserID)
			if err != nil {
				writeError(w, err, "resolving roles")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			ctx = context.WithValue(ctx, rolesKey, resolver)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Require returns middleware that lets the request through only when the
// user's roles satisfy allowed.
func Require(allowed func(*roles.Resolver) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allowed(GetRoles(r.Context())) {
				jsonError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetClaims retrieves the JWT claims from the context.
func GetClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// GetRoles retrieves the signed-in user's roles from the context. The
// result may be nil, which grants nothing.
func GetRoles(ctx context.Context) *roles.Resolver {
	r, _ := ctx.Value(rolesKey).(*roles.Resolver)
	return r
}

func actorFrom(ctx context.Context) workflow.Actor {
	a := workflow.Actor{Roles: GetRoles(ctx)}
	if c := GetClaims(ctx); c != nil {
		a.UserID = c.UserID
	}
	return a
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs HTTP requests with method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.RequestURI(),
			"status", rec.status,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	})
}
