package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/izposoja/internal/store"
)

// DepartmentsHandler handles departments and item categories. Reads are
// open to every user, writes to admins.
type DepartmentsHandler struct {
	Store *store.Store
}

type departmentRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type categoryRequest struct {
	Name               string `json:"name"`
	RequiresHeadmaster bool   `json:"requires_headmaster"`
}

// List handles GET /api/departments.
func (h *DepartmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	depts, err := h.Store.Departments(r.Context())
	if err != nil {
		writeError(w, err, "listing departments")
		return
	}
	jsonResponse(w, http.StatusOK, depts)
}

// Create handles POST /api/departments.
func (h *DepartmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req departmentRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}

	d, err := h.Store.CreateDepartment(r.Context(), req.Name, strings.TrimSpace(req.Code))
	if err != nil {
		writeError(w, err, "creating department")
		return
	}

	slog.Info("department created", "user", GetClaims(r.Context()).Username, "department", d.Name)
	jsonResponse(w, http.StatusCreated, d)
}

// Update handles PUT /api/departments/{id}.
func (h *DepartmentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid department id")
		return
	}

	var req departmentRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}

	if err := h.Store.UpdateDepartment(r.Context(), id, req.Name, strings.TrimSpace(req.Code)); err != nil {
		writeError(w, err, "updating department")
		return
	}

	d, err := h.Store.Department(r.Context(), id)
	if err != nil {
		writeError(w, err, "loading department")
		return
	}
	jsonResponse(w, http.StatusOK, d)
}

// Delete handles DELETE /api/departments/{id}.
func (h *DepartmentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid department id")
		return
	}

	if err := h.Store.DeleteDepartment(r.Context(), id); err != nil {
		writeError(w, err, "deleting department")
		return
	}

	slog.Info("department deleted", "user", GetClaims(r.Context()).Username, "department_id", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "department deleted"})
}

// ListCategories handles GET /api/categories.
func (h *DepartmentsHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Store.Categories(r.Context())
	if err != nil {
		writeError(w, err, "listing categories")
		return
	}
	jsonResponse(w, http.StatusOK, cats)
}

// CreateCategory handles POST /api/categories.
func (h *DepartmentsHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}

	c, err := h.Store.CreateCategory(r.Context(), req.Name, req.RequiresHeadmaster)
	if err != nil {
		writeError(w, err, "creating category")
		return
	}
	jsonResponse(w, http.StatusCreated, c)
}

// UpdateCategory handles PUT /api/categories/{id}.
func (h *DepartmentsHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid category id")
		return
	}

	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}

	if err := h.Store.UpdateCategory(r.Context(), id, req.Name, req.RequiresHeadmaster); err != nil {
		writeError(w, err, "updating category")
		return
	}

	slog.Info("category updated", "user", GetClaims(r.Context()).Username,
		"category", req.Name, "requires_headmaster", req.RequiresHeadmaster)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "category updated"})
}
