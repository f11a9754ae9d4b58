package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/store"
	"github.com/erazemk/izposoja/internal/timeline"
	"github.com/erazemk/izposoja/internal/workflow"
)

// RequestsHandler handles borrow requests and their lifecycle.
type RequestsHandler struct {
	Store         *store.Store
	Engine        *workflow.Engine
	PublicBaseURL string
}

type requestBody struct {
	Purpose        string          `json:"purpose"`
	Location       string          `json:"location"`
	StartDate      string          `json:"start_date"`
	EndDate        string          `json:"end_date"`
	PICName        string          `json:"pic_name"`
	PICContact     string          `json:"pic_contact"`
	RequiresLetter bool            `json:"requires_letter"`
	Items          []workflow.Line `json:"items"`
	Submit         bool            `json:"submit"`
}

type transitionBody struct {
	Reason string `json:"reason"`
}

// requestView is a request as its viewer sees it.
type requestView struct {
	*model.Request
	Timeline        []timeline.Step   `json:"timeline"`
	Outcome         *timeline.Marker  `json:"outcome,omitempty"`
	Actions         []workflow.Action `json:"actions"`
	VerificationURL string            `json:"verification_url"`
}

type letterParty struct {
	Name    string `json:"name"`
	Contact string `json:"contact,omitempty"`
}

type letterView struct {
	LetterNumber    string           `json:"letter_number"`
	IssuedAt        *time.Time       `json:"issued_at"`
	Department      string           `json:"department"`
	Borrower        letterParty      `json:"borrower"`
	PersonInCharge  letterParty      `json:"person_in_charge"`
	OwnerReviewer   string           `json:"owner_reviewer,omitempty"`
	Headmaster      string           `json:"headmaster,omitempty"`
	Purpose         string           `json:"purpose"`
	Location        string           `json:"location"`
	StartDate       time.Time        `json:"start_date"`
	EndDate         time.Time        `json:"end_date"`
	Items           []model.LineItem `json:"items"`
	VerificationURL string           `json:"verification_url"`
}

func (b *requestBody) draft() (workflow.Draft, string) {
	start, err := time.Parse(time.DateOnly, b.StartDate)
	if err != nil {
		return workflow.Draft{}, "start_date must be YYYY-MM-DD"
	}
	end, err := time.Parse(time.DateOnly, b.EndDate)
	if err != nil {
		return workflow.Draft{}, "end_date must be YYYY-MM-DD"
	}
	return workflow.Draft{
		Purpose:        b.Purpose,
		Location:       b.Location,
		StartDate:      start,
		EndDate:        end,
		PICName:        b.PICName,
		PICContact:     b.PICContact,
		RequiresLetter: b.RequiresLetter,
		Lines:          b.Items,
	}, ""
}

// List handles GET /api/requests. Borrowers see their own requests, owners
// also their departments' requests, headmasters and admins everything.
// Filters: status (repeatable), mine=1, limit.
func (h *RequestsHandler) List(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	q := r.URL.Query()

	f := store.RequestFilter{}
	switch {
	case q.Get("mine") == "1":
		f.BorrowerID = actor.UserID
	case actor.Roles.IsAdmin() || actor.Roles.IsHeadmaster():
	case actor.Roles.IsOwner():
		f.Owned = true
		f.BorrowerID = actor.UserID
		f.DepartmentIDs = actor.Roles.OwnedDepartmentIDs()
	default:
		f.BorrowerID = actor.UserID
	}

	for _, s := range q["status"] {
		st := model.Status(s)
		if !st.Valid() {
			jsonError(w, http.StatusBadRequest, "invalid status "+strconv.Quote(s))
			return
		}
		f.Statuses = append(f.Statuses, st)
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			jsonError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}

	reqs, err := h.Store.ListRequests(r.Context(), f)
	if err != nil {
		writeError(w, err, "listing requests")
		return
	}

	out := make([]requestView, len(reqs))
	for i := range reqs {
		out[i] = h.view(actor, &reqs[i])
	}
	jsonResponse(w, http.StatusOK, out)
}

// Create handles POST /api/requests.
func (h *RequestsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	if err := decodeJSON(r, &body); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d, msg := body.draft()
	if msg != "" {
		jsonError(w, http.StatusBadRequest, msg)
		return
	}

	actor := actorFrom(r.Context())
	req, err := h.Engine.Create(r.Context(), actor, d, body.Submit)
	if err != nil {
		writeError(w, err, "creating request")
		return
	}
	h.respond(w, r, actor, req.ID, http.StatusCreated)
}

// Get handles GET /api/requests/{id}.
func (h *RequestsHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	h.respond(w, r, actor, id, http.StatusOK)
}

// Update handles PUT /api/requests/{id}, editing a draft.
func (h *RequestsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	var body requestBody
	if err := decodeJSON(r, &body); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d, msg := body.draft()
	if msg != "" {
		jsonError(w, http.StatusBadRequest, msg)
		return
	}

	actor := actorFrom(r.Context())
	if _, err := h.Engine.UpdateDraft(r.Context(), actor, id, d); err != nil {
		writeError(w, err, "updating request")
		return
	}
	h.respond(w, r, actor, id, http.StatusOK)
}

// Transition handles POST /api/requests/{id}/{action}, where action is one
// of the workflow actions. Rejections take an optional reason.
func (h *RequestsHandler) Transition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	var body transitionBody
	if err := decodeJSON(r, &body); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	actor := actorFrom(ctx)
	action := workflow.Action(strings.ReplaceAll(r.PathValue("action"), "-", "_"))

	var err error
	switch action {
	case workflow.ActionSubmit:
		_, err = h.Engine.Submit(ctx, actor, id)
	case workflow.ActionOwnerApprove:
		_, err = h.Engine.ReviewByOwner(ctx, actor, id, workflow.Approve, "")
	case workflow.ActionOwnerReject:
		_, err = h.Engine.ReviewByOwner(ctx, actor, id, workflow.Reject, body.Reason)
	case workflow.ActionHeadmasterApprove:
		_, err = h.Engine.ReviewByHeadmaster(ctx, actor, id, workflow.Approve, "")
	case workflow.ActionHeadmasterReject:
		_, err = h.Engine.ReviewByHeadmaster(ctx, actor, id, workflow.Reject, body.Reason)
	case workflow.ActionStart:
		_, err = h.Engine.StartLoan(ctx, actor, id)
	case workflow.ActionComplete:
		_, err = h.Engine.CompleteLoan(ctx, actor, id)
	case workflow.ActionCancel:
		_, err = h.Engine.Cancel(ctx, actor, id)
	default:
		jsonError(w, http.StatusNotFound, "unknown action")
		return
	}
	if err != nil {
		writeError(w, err, string(action))
		return
	}
	h.respond(w, r, actor, id, http.StatusOK)
}

// Letter handles GET /api/requests/{id}/letter: the contents of the formal
// loan letter for requests that have one.
func (h *RequestsHandler) Letter(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	req, ok := h.load(w, r, actor)
	if !ok {
		return
	}
	if req.LetterNumber == nil {
		jsonResponse(w, http.StatusConflict, errorBody{Error: "request has no letter", Kind: "invalid_state"})
		return
	}

	borrower, err := h.Store.User(r.Context(), req.BorrowerID)
	if err != nil {
		writeError(w, err, "loading borrower")
		return
	}

	lv := letterView{
		LetterNumber:    *req.LetterNumber,
		IssuedAt:        req.ApprovedAt(),
		Department:      req.DepartmentName,
		Borrower:        letterParty{Name: req.BorrowerName, Contact: borrower.Phone},
		PersonInCharge:  letterParty{Name: req.PICName, Contact: req.PICContact},
		OwnerReviewer:   h.userName(r, req.OwnerReviewerID),
		Headmaster:      h.userName(r, req.HeadmasterID),
		Purpose:         req.Purpose,
		Location:        req.Location,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		Items:           req.Items,
		VerificationURL: verificationURL(h.PublicBaseURL, req.VerificationCode),
	}
	jsonResponse(w, http.StatusOK, lv)
}

// respond writes the current state of request id as seen by actor.
func (h *RequestsHandler) respond(w http.ResponseWriter, r *http.Request, actor workflow.Actor, id int64, status int) {
	req, err := h.Store.Request(r.Context(), id)
	if err != nil {
		writeError(w, err, "loading request")
		return
	}
	if !workflow.CanView(actor, req) {
		jsonError(w, http.StatusForbidden, "you cannot view this request")
		return
	}
	jsonResponse(w, status, h.view(actor, req))
}

func (h *RequestsHandler) load(w http.ResponseWriter, r *http.Request, actor workflow.Actor) (*model.Request, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid request id")
		return nil, false
	}
	req, err := h.Store.Request(r.Context(), id)
	if err != nil {
		writeError(w, err, "loading request")
		return nil, false
	}
	if !workflow.CanView(actor, req) {
		jsonError(w, http.StatusForbidden, "you cannot view this request")
		return nil, false
	}
	return req, true
}

func (h *RequestsHandler) view(actor workflow.Actor, req *model.Request) requestView {
	return requestView{
		Request:         req,
		Timeline:        timeline.Project(req),
		Outcome:         timeline.Outcome(req),
		Actions:         workflow.VisibleActions(actor, req),
		VerificationURL: verificationURL(h.PublicBaseURL, req.VerificationCode),
	}
}

func (h *RequestsHandler) userName(r *http.Request, id *int64) string {
	if id == nil {
		return ""
	}
	u, err := h.Store.User(r.Context(), *id)
	if err != nil {
		return ""
	}
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

func verificationURL(base, code string) string {
	return base + "/api/verify/" + code
}
