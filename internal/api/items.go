package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/izposoja/internal/imaging"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/roles"
	"github.com/erazemk/izposoja/internal/store"
)

// ItemsHandler handles equipment endpoints. Anyone signed in can browse;
// owners edit their own department's items and admins edit all.
type ItemsHandler struct {
	Store *store.Store
}

type itemRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	DepartmentID  int64  `json:"department_id"`
	CategoryID    *int64 `json:"category_id"`
	TotalQuantity int    `json:"total_quantity"`
	Status        string `json:"status"`
}

func (req *itemRequest) validate() string {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	switch {
	case req.Name == "":
		return "name required"
	case req.TotalQuantity < 0:
		return "total quantity cannot be negative"
	case req.Status != "" && !model.ValidItemStatus(req.Status):
		return "invalid status"
	}
	return ""
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dept, ok1 := queryID(r, "department_id")
	cat, ok2 := queryID(r, "category_id")
	if !ok1 || !ok2 {
		jsonError(w, http.StatusBadRequest, "invalid filter")
		return
	}

	items, err := h.Store.ListItems(r.Context(), store.ItemFilter{
		DepartmentID: dept,
		CategoryID:   cat,
		Status:       q.Get("status"),
		Search:       strings.TrimSpace(q.Get("q")),
	})
	if err != nil {
		writeError(w, err, "listing items")
		return
	}
	jsonResponse(w, http.StatusOK, items)
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, ok := h.load(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Create handles POST /api/items. Owners may leave the department out to
// use their own.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		jsonError(w, http.StatusBadRequest, msg)
		return
	}

	rs := GetRoles(r.Context())
	if req.DepartmentID == 0 {
		req.DepartmentID, _ = rs.UserDepartmentID()
	}
	if !canEditDepartment(rs, req.DepartmentID) {
		jsonError(w, http.StatusForbidden, "you do not manage this department")
		return
	}
	if !h.checkRefs(w, r, req.DepartmentID, req.CategoryID) {
		return
	}

	status := req.Status
	if status == "" || status == model.ItemStatusBorrowed {
		status = model.DisplayStatus(model.ItemStatusAvailable, req.TotalQuantity)
	}

	item, err := h.Store.CreateItem(r.Context(), &model.Item{
		Name:          req.Name,
		Description:   req.Description,
		DepartmentID:  req.DepartmentID,
		CategoryID:    req.CategoryID,
		TotalQuantity: req.TotalQuantity,
		Status:        status,
	})
	if err != nil {
		writeError(w, err, "creating item")
		return
	}

	slog.Info("item created", "user", GetClaims(r.Context()).Username,
		"item", item.Name, "department_id", item.DepartmentID, "quantity", item.TotalQuantity)
	jsonResponse(w, http.StatusCreated, item)
}

// Update handles PUT /api/items/{id}. Lowering the total below the units
// currently on loan is refused.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	cur, ok := h.load(w, r)
	if !ok {
		return
	}

	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		jsonError(w, http.StatusBadRequest, msg)
		return
	}
	if req.DepartmentID == 0 {
		req.DepartmentID = cur.DepartmentID
	}

	rs := GetRoles(r.Context())
	if !canEditDepartment(rs, cur.DepartmentID) || !canEditDepartment(rs, req.DepartmentID) {
		jsonError(w, http.StatusForbidden, "you do not manage this department")
		return
	}
	if !h.checkRefs(w, r, req.DepartmentID, req.CategoryID) {
		return
	}

	onLoan := cur.TotalQuantity - cur.AvailableQuantity
	if req.TotalQuantity < onLoan {
		jsonError(w, http.StatusConflict, "total quantity is below the units on loan")
		return
	}

	status := req.Status
	switch status {
	case "", model.ItemStatusAvailable, model.ItemStatusBorrowed:
		status = model.DisplayStatus(model.ItemStatusAvailable, req.TotalQuantity-onLoan)
	}

	cur.Name = req.Name
	cur.Description = req.Description
	cur.DepartmentID = req.DepartmentID
	cur.CategoryID = req.CategoryID
	cur.TotalQuantity = req.TotalQuantity
	cur.Status = status
	if err := h.Store.UpdateItem(r.Context(), cur); err != nil {
		writeError(w, err, "updating item")
		return
	}

	item, err := h.Store.Item(r.Context(), cur.ID)
	if err != nil {
		writeError(w, err, "loading item")
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Delete handles DELETE /api/items/{id}.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	item, ok := h.load(w, r)
	if !ok {
		return
	}
	if !canEditDepartment(GetRoles(r.Context()), item.DepartmentID) {
		jsonError(w, http.StatusForbidden, "you do not manage this department")
		return
	}
	if item.AvailableQuantity < item.TotalQuantity {
		jsonError(w, http.StatusConflict, "item has units on loan")
		return
	}

	if err := h.Store.DeleteItem(r.Context(), item.ID); err != nil {
		writeError(w, err, "deleting item")
		return
	}

	slog.Info("item deleted", "user", GetClaims(r.Context()).Username, "item", item.Name)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "item deleted"})
}

// UploadImage handles PUT /api/items/{id}/image with a multipart "image"
// field.
func (h *ItemsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	item, ok := h.load(w, r)
	if !ok {
		return
	}
	if !canEditDepartment(GetRoles(r.Context()), item.DepartmentID) {
		jsonError(w, http.StatusForbidden, "you do not manage this department")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	img, err := imaging.Process(file)
	if errors.Is(err, imaging.ErrUnsupported) || errors.Is(err, imaging.ErrTooLarge) {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		jsonError(w, http.StatusBadRequest, "could not read image")
		return
	}

	if err := h.Store.SetItemImage(r.Context(), item.ID, img.Image, img.Thumbnail, img.MIME); err != nil {
		writeError(w, err, "saving image")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "image uploaded"})
}

// GetImage handles GET /api/items/{id}/image. With ?thumb=1 the thumbnail
// is returned.
func (h *ItemsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	thumb := r.URL.Query().Get("thumb") == "1"
	data, mime, err := h.Store.ItemImage(r.Context(), id, thumb)
	if err != nil {
		writeError(w, err, "loading image")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}

func (h *ItemsHandler) load(w http.ResponseWriter, r *http.Request) (*model.Item, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return nil, false
	}

	item, err := h.Store.Item(r.Context(), id)
	if err == nil && item.DeletedAt != nil {
		err = model.ErrNotFound
	}
	if err != nil {
		writeError(w, err, "loading item")
		return nil, false
	}
	return item, true
}

// checkRefs verifies the department and category an item points at.
func (h *ItemsHandler) checkRefs(w http.ResponseWriter, r *http.Request, deptID int64, catID *int64) bool {
	d, err := h.Store.Department(r.Context(), deptID)
	if err == nil && d.DeletedAt != nil {
		err = model.ErrNotFound
	}
	if errors.Is(err, model.ErrNotFound) {
		jsonError(w, http.StatusBadRequest, "unknown department")
		return false
	}
	if err != nil {
		writeError(w, err, "loading department")
		return false
	}

	if catID == nil {
		return true
	}
	cats, err := h.Store.Categories(r.Context())
	if err != nil {
		writeError(w, err, "loading categories")
		return false
	}
	for _, c := range cats {
		if c.ID == *catID {
			return true
		}
	}
	jsonError(w, http.StatusBadRequest, "unknown category")
	return false
}

func canEditDepartment(rs *roles.Resolver, deptID int64) bool {
	return rs.IsAdmin() || rs.OwnsDepartment(deptID)
}
