package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/roles"
	"github.com/erazemk/izposoja/internal/workflow"
)

// errorBody is the shape of every error response. Kind lets clients pick a
// message without parsing Error.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

var kindStatus = map[string]int{
	"validation":         http.StatusBadRequest,
	"unauthenticated":    http.StatusUnauthorized,
	"unauthorized":       http.StatusForbidden,
	"not_found":          http.StatusNotFound,
	"invalid_state":      http.StatusConflict,
	"insufficient_stock": http.StatusConflict,
	"conflict":           http.StatusConflict,
	"inconsistent_state": http.StatusInternalServerError,
	"internal":           http.StatusInternalServerError,
	"gateway":            http.StatusServiceUnavailable,
}

var statusKind = map[int]string{
	http.StatusBadRequest:            "validation",
	http.StatusUnauthorized:          "unauthenticated",
	http.StatusForbidden:             "unauthorized",
	http.StatusNotFound:              "not_found",
	http.StatusConflict:              "conflict",
	http.StatusRequestEntityTooLarge: "validation",
	http.StatusInternalServerError:   "internal",
	http.StatusServiceUnavailable:    "gateway",
}

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response failed", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	kind, ok := statusKind[status]
	if !ok {
		kind = "internal"
	}
	jsonResponse(w, status, errorBody{Error: message, Kind: kind})
}

// errorKind classifies errors from the engine, the store and the role
// service.
func errorKind(err error) string {
	if kind := workflow.Kind(err); kind != "internal" {
		return kind
	}
	switch {
	case errors.Is(err, roles.ErrUnavailable), errors.Is(err, model.ErrStorage):
		return "gateway"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrConflict):
		return "conflict"
	case errors.Is(err, model.ErrStale):
		return "invalid_state"
	}
	return "internal"
}

// writeError reports err with the status of its kind. Server-side failures
// are logged and their details withheld, except inconsistent state which
// must reach the user.
func writeError(w http.ResponseWriter, err error, what string) {
	kind := errorKind(err)
	status := kindStatus[kind]

	msg := err.Error()
	switch kind {
	case "inconsistent_state":
		slog.Error(what+" left data inconsistent", "error", err)
	case "gateway":
		slog.Error(what+" failed", "error", err)
		msg = "storage unavailable, try again"
	case "internal":
		slog.Error(what+" failed", "error", err)
		msg = what + " failed"
	}
	jsonResponse(w, status, errorBody{Error: msg, Kind: kind})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// pathID parses the {name} path wildcard as an id.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id, err == nil && id > 0
}

// queryID parses an optional numeric query parameter. Missing is 0.
func queryID(r *http.Request, name string) (int64, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(v, 10, 64)
	return id, err == nil && id > 0
}
