package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/izposoja/internal/auth"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/roles"
	"github.com/erazemk/izposoja/internal/store"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	Store     *store.Store
	Roles     *roles.Service
	JWTSecret string
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type updateProfileRequest struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

type capabilities struct {
	IsBorrower         bool `json:"is_borrower"`
	IsOwner            bool `json:"is_owner"`
	IsHeadmaster       bool `json:"is_headmaster"`
	IsAdmin            bool `json:"is_admin"`
	CanManageInventory bool `json:"can_manage_inventory"`
	CanApproveRequests bool `json:"can_approve_requests"`
}

type meResponse struct {
	User         *model.User  `json:"user"`
	Roles        []string     `json:"roles"`
	Capabilities capabilities `json:"capabilities"`
	Department   string       `json:"department,omitempty"`
	DepartmentID int64        `json:"department_id,omitempty"`
}

// Login handles POST /api/auth/login. A successful login starts the user's
// role session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		jsonError(w, http.StatusBadRequest, "username and password required")
		return
	}

	user, err := h.Store.UserByUsername(r.Context(), req.Username)
	if errors.Is(err, model.ErrNotFound) || (err == nil && user.DeletedAt != nil) {
		jsonError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		writeError(w, err, "login")
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		slog.Warn("login failed", "username", req.Username, "remote", r.RemoteAddr)
		jsonError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if _, err := h.Roles.Start(r.Context(), user.ID); err != nil {
		writeError(w, err, "loading roles")
		return
	}

	token, err := auth.GenerateToken(h.JWTSecret, user.ID, user.Username)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	slog.Info("user logged in", "user", user.Username)
	jsonResponse(w, http.StatusOK, loginResponse{Token: token, User: user})
}

// Logout handles POST /api/auth/logout. The token is revoked and the
// user's cached roles are dropped.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	if err := h.Store.RevokeToken(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
		writeError(w, err, "logout")
		return
	}
	if err := h.Roles.End(r.Context(), claims.UserID); err != nil {
		slog.Warn("dropping cached roles failed", "user", claims.Username, "error", err)
	}

	slog.Info("user logged out", "user", claims.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// ChangePassword handles PUT /api/auth/password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.CurrentPassword == "" || req.NewPassword == "" {
		jsonError(w, http.StatusBadRequest, "current and new password required")
		return
	}
	if err := model.ValidatePassword(req.NewPassword); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.Store.User(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, err, "loading user")
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.CurrentPassword); err != nil {
		jsonError(w, http.StatusForbidden, "current password is incorrect")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	if err := h.Store.UpdateUserPassword(r.Context(), claims.UserID, hash); err != nil {
		writeError(w, err, "updating password")
		return
	}

	slog.Info("user changed own password", "user", claims.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// Me handles GET /api/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	rs := GetRoles(r.Context())

	user, err := h.Store.User(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, err, "loading user")
		return
	}

	resp := meResponse{
		User:  user,
		Roles: rs.Roles(),
		Capabilities: capabilities{
			IsBorrower:         rs.IsBorrower(),
			IsOwner:            rs.IsOwner(),
			IsHeadmaster:       rs.IsHeadmaster(),
			IsAdmin:            rs.IsAdmin(),
			CanManageInventory: rs.CanManageInventory(),
			CanApproveRequests: rs.CanApproveRequests(),
		},
	}
	resp.Department, _ = rs.UserDepartment()
	resp.DepartmentID, _ = rs.UserDepartmentID()
	jsonResponse(w, http.StatusOK, resp)
}

// UpdateProfile handles PUT /api/me.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Store.UpdateProfile(r.Context(), claims.UserID,
		strings.TrimSpace(req.FullName), strings.TrimSpace(req.Phone)); err != nil {
		writeError(w, err, "updating profile")
		return
	}

	user, err := h.Store.User(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, err, "loading user")
		return
	}
	jsonResponse(w, http.StatusOK, user)
}
