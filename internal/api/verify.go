package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/store"
	"github.com/erazemk/izposoja/internal/timeline"
)

// VerifyHandler serves the public check behind the QR code printed on loan
// letters. It needs no login and exposes no contact details.
type VerifyHandler struct {
	Store         *store.Store
	PublicBaseURL string
}

type verifiedItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type verifyResponse struct {
	LetterNumber    *string          `json:"letter_number,omitempty"`
	Status          model.Status     `json:"status"`
	Borrower        string           `json:"borrower"`
	Department      string           `json:"department"`
	Purpose         string           `json:"purpose"`
	StartDate       time.Time        `json:"start_date"`
	EndDate         time.Time        `json:"end_date"`
	Items           []verifiedItem   `json:"items"`
	Timeline        []timeline.Step  `json:"timeline"`
	Outcome         *timeline.Marker `json:"outcome,omitempty"`
	VerificationURL string           `json:"verification_url"`
}

// Verify handles GET /api/verify/{code}. Drafts are not verifiable.
func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	req, err := h.Store.RequestByCode(r.Context(), r.PathValue("code"))
	if err == nil && req.Status == model.StatusDraft {
		err = model.ErrNotFound
	}
	if errors.Is(err, model.ErrNotFound) {
		jsonError(w, http.StatusNotFound, "no request with this code")
		return
	}
	if err != nil {
		writeError(w, err, "verifying request")
		return
	}

	items := make([]verifiedItem, len(req.Items))
	for i, li := range req.Items {
		items[i] = verifiedItem{Name: li.ItemName, Quantity: li.Quantity}
	}

	jsonResponse(w, http.StatusOK, verifyResponse{
		LetterNumber:    req.LetterNumber,
		Status:          req.Status,
		Borrower:        req.BorrowerName,
		Department:      req.DepartmentName,
		Purpose:         req.Purpose,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		Items:           items,
		Timeline:        timeline.Project(req),
		Outcome:         timeline.Outcome(req),
		VerificationURL: verificationURL(h.PublicBaseURL, req.VerificationCode),
	})
}
