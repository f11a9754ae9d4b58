// Package api exposes the loan service over JSON HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/erazemk/izposoja/internal/roles"
	"github.com/erazemk/izposoja/internal/store"
	"github.com/erazemk/izposoja/internal/workflow"
)

// Config holds what the handlers depend on.
type Config struct {
	Store         *store.Store
	Roles         *roles.Service
	Engine        *workflow.Engine
	JWTSecret     string
	PublicBaseURL string
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(cfg Config) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{Store: cfg.Store, Roles: cfg.Roles, JWTSecret: cfg.JWTSecret}
	usersHandler := &UsersHandler{Store: cfg.Store, Roles: cfg.Roles}
	rolesHandler := &RolesHandler{Store: cfg.Store, Roles: cfg.Roles}
	departmentsHandler := &DepartmentsHandler{Store: cfg.Store}
	itemsHandler := &ItemsHandler{Store: cfg.Store}
	requestsHandler := &RequestsHandler{Store: cfg.Store, Engine: cfg.Engine, PublicBaseURL: cfg.PublicBaseURL}
	verifyHandler := &VerifyHandler{Store: cfg.Store, PublicBaseURL: cfg.PublicBaseURL}

	authMW := AuthMiddleware(cfg.JWTSecret, cfg.Store, cfg.Roles)
	requireAdmin := Require((*roles.Resolver).IsAdmin)
	requireInventory := Require((*roles.Resolver).CanManageInventory)

	// Public.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("GET /api/verify/{code}", verifyHandler.Verify)
	mux.HandleFunc("GET /healthz", health(cfg.Store))

	// Session.
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("GET /api/me", authMW(http.HandlerFunc(authHandler.Me)))
	mux.Handle("PUT /api/me", authMW(http.HandlerFunc(authHandler.UpdateProfile)))

	// Users and roles (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))
	mux.Handle("GET /api/users/{id}/roles", authMW(requireAdmin(http.HandlerFunc(rolesHandler.List))))
	mux.Handle("POST /api/users/{id}/roles", authMW(requireAdmin(http.HandlerFunc(rolesHandler.Grant))))
	mux.Handle("DELETE /api/roles/{id}", authMW(requireAdmin(http.HandlerFunc(rolesHandler.Revoke))))

	// Departments and categories: read (all), write (admin).
	mux.Handle("GET /api/departments", authMW(http.HandlerFunc(departmentsHandler.List)))
	mux.Handle("POST /api/departments", authMW(requireAdmin(http.HandlerFunc(departmentsHandler.Create))))
	mux.Handle("PUT /api/departments/{id}", authMW(requireAdmin(http.HandlerFunc(departmentsHandler.Update))))
	mux.Handle("DELETE /api/departments/{id}", authMW(requireAdmin(http.HandlerFunc(departmentsHandler.Delete))))
	mux.Handle("GET /api/categories", authMW(http.HandlerFunc(departmentsHandler.ListCategories)))
	mux.Handle("POST /api/categories", authMW(requireAdmin(http.HandlerFunc(departmentsHandler.CreateCategory))))
	mux.Handle("PUT /api/categories/{id}", authMW(requireAdmin(http.HandlerFunc(departmentsHandler.UpdateCategory))))

	// Items: read (all), write (owners of the department, admins).
	mux.Handle("GET /api/items", authMW(http.HandlerFunc(itemsHandler.List)))
	mux.Handle("POST /api/items", authMW(requireInventory(http.HandlerFunc(itemsHandler.Create))))
	mux.Handle("GET /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Get)))
	mux.Handle("PUT /api/items/{id}", authMW(requireInventory(http.HandlerFunc(itemsHandler.Update))))
	mux.Handle("DELETE /api/items/{id}", authMW(requireInventory(http.HandlerFunc(itemsHandler.Delete))))
	mux.Handle("PUT /api/items/{id}/image", authMW(requireInventory(http.HandlerFunc(itemsHandler.UploadImage))))
	mux.Handle("GET /api/items/{id}/image", authMW(http.HandlerFunc(itemsHandler.GetImage)))

	// Requests. Per-request permissions are checked by the engine.
	mux.Handle("GET /api/requests", authMW(http.HandlerFunc(requestsHandler.List)))
	mux.Handle("POST /api/requests", authMW(http.HandlerFunc(requestsHandler.Create)))
	mux.Handle("GET /api/requests/{id}", authMW(http.HandlerFunc(requestsHandler.Get)))
	mux.Handle("PUT /api/requests/{id}", authMW(http.HandlerFunc(requestsHandler.Update)))
	mux.Handle("GET /api/requests/{id}/letter", authMW(http.HandlerFunc(requestsHandler.Letter)))
	mux.Handle("POST /api/requests/{id}/{action}", authMW(http.HandlerFunc(requestsHandler.Transition)))

	return mux
}

func health(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.Ping(ctx); err != nil {
			jsonError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
