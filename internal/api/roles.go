package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/roles"
	"github.com/erazemk/izposoja/internal/store"
)

// RolesHandler grants and revokes role assignments (admin only). Every
// change invalidates the user's cached roles so it applies on their next
// request.
type RolesHandler struct {
	Store *store.Store
	Roles *roles.Service
}

type grantRoleRequest struct {
	Role       string `json:"role"`
	Department string `json:"department"`
}

// List handles GET /api/users/{id}/roles.
func (h *RolesHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if _, err := h.Store.User(r.Context(), id); err != nil {
		writeError(w, err, "loading user")
		return
	}

	assignments, err := h.Store.RoleAssignments(r.Context(), id)
	if err != nil {
		writeError(w, err, "listing roles")
		return
	}
	jsonResponse(w, http.StatusOK, assignments)
}

// Grant handles POST /api/users/{id}/roles. Owner grants must name an
// existing department; other roles are school-wide.
func (h *RolesHandler) Grant(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req grantRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !model.ValidRole(req.Role) {
		jsonError(w, http.StatusBadRequest, "invalid role")
		return
	}

	var dept *string
	req.Department = strings.TrimSpace(req.Department)
	switch {
	case req.Role == model.RoleOwner && req.Department == "":
		jsonError(w, http.StatusBadRequest, "owner role requires a department")
		return
	case req.Role != model.RoleOwner && req.Department != "":
		jsonError(w, http.StatusBadRequest, "only the owner role is tied to a department")
		return
	case req.Role == model.RoleOwner:
		known, err := h.departmentExists(r, req.Department)
		if err != nil {
			writeError(w, err, "loading departments")
			return
		}
		if !known {
			jsonError(w, http.StatusBadRequest, "unknown department")
			return
		}
		dept = &req.Department
	}

	user, err := h.Store.User(r.Context(), id)
	if err != nil {
		writeError(w, err, "loading user")
		return
	}
	if user.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}

	a, err := h.Store.AssignRole(r.Context(), id, req.Role, dept)
	if err != nil {
		writeError(w, err, "granting role")
		return
	}
	if !refreshRoles(w, r, h.Roles, id) {
		return
	}

	slog.Info("role granted", "user", GetClaims(r.Context()).Username,
		"target_user", user.Username, "role", req.Role, "department", req.Department)
	jsonResponse(w, http.StatusCreated, a)
}

// Revoke handles DELETE /api/roles/{id}.
func (h *RolesHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid role assignment id")
		return
	}

	a, err := h.Store.RoleAssignment(r.Context(), id)
	if err != nil {
		writeError(w, err, "loading role assignment")
		return
	}

	claims := GetClaims(r.Context())
	if a.UserID == claims.UserID && a.Role == model.RoleAdmin {
		jsonError(w, http.StatusBadRequest, "cannot revoke your own admin role")
		return
	}

	if err := h.Store.RevokeRole(r.Context(), id); err != nil {
		writeError(w, err, "revoking role")
		return
	}
	if !refreshRoles(w, r, h.Roles, a.UserID) {
		return
	}

	slog.Info("role revoked", "user", claims.Username, "target_user_id", a.UserID, "role", a.Role)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "role revoked"})
}

func (h *RolesHandler) departmentExists(r *http.Request, name string) (bool, error) {
	_, err := h.Store.DepartmentByName(r.Context(), name)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// refreshRoles drops userID's cached roles after a change. On failure the
// change is stored but would not apply until the cached entry expires, so
// a gateway error is written and false returned.
func refreshRoles(w http.ResponseWriter, r *http.Request, svc *roles.Service, userID int64) bool {
	if err := svc.Invalidate(r.Context(), userID); err != nil {
		slog.Error("invalidating roles failed", "user_id", userID, "error", err)
		jsonResponse(w, http.StatusServiceUnavailable, errorBody{
			Error: "change saved but cached roles could not be refreshed, they apply once the cache expires",
			Kind:  "gateway",
		})
		return false
	}
	return true
}
