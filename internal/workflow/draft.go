package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/izposoja/internal/model"
)

// Draft is the borrower-editable part of a request.
type Draft struct {
	Purpose        string
	Location       string
	StartDate      time.Time
	EndDate        time.Time
	PICName        string
	PICContact     string
	RequiresLetter bool
	Lines          []Line
}

// Line asks for quantity units of one item.
type Line struct {
	ItemID   int64 `json:"item_id"`
	Quantity int   `json:"quantity"`
}

// Create stores a new request for actor. With submit set the request goes
// straight to the owner instead of staying a draft.
func (e *Engine) Create(ctx context.Context, actor Actor, d Draft, submit bool) (*model.Request, error) {
	if !actor.Roles.IsBorrower() && !actor.Roles.IsAdmin() {
		return nil, fmt.Errorf("%w: user %d may not borrow equipment", ErrUnauthorized, actor.UserID)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}

	var out *model.Request
	err := e.unit(ctx, func(s Store, _ bool) error {
		now := e.now().UTC()
		req := &model.Request{
			BorrowerID:       actor.UserID,
			VerificationCode: uuid.NewString(),
			Status:           model.StatusDraft,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := e.fill(ctx, s, req, d); err != nil {
			return err
		}
		if submit {
			req.Status = model.StatusPendingOwner
			req.SubmittedAt = &now
		}
		if err := s.CreateRequest(ctx, req); err != nil {
			return gatewayErr("creating request", err)
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, gatewayErr("create", err)
	}

	slog.Info("request created", "request_id", out.ID, "borrower", actor.UserID,
		"status", string(out.Status), "items", len(out.Items))
	return out, nil
}

// UpdateDraft replaces the contents of a draft. Only the borrower or an
// admin may edit, and only before submission.
func (e *Engine) UpdateDraft(ctx context.Context, actor Actor, id int64, d Draft) (*model.Request, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}

	var out *model.Request
	err := e.unit(ctx, func(s Store, _ bool) error {
		req, err := s.Request(ctx, id)
		if err != nil {
			return gatewayErr("loading request", err)
		}
		if req.BorrowerID != actor.UserID && !actor.Roles.IsAdmin() {
			return fmt.Errorf("%w: user %d may not edit request %d", ErrUnauthorized, actor.UserID, id)
		}
		if req.Status != model.StatusDraft {
			return fmt.Errorf("%w: only drafts can be edited, request is %s", ErrInvalidState, req.Status)
		}
		if err := e.fill(ctx, s, req, d); err != nil {
			return err
		}
		req.UpdatedAt = e.now().UTC()
		if err := s.UpdateDraft(ctx, req); err != nil {
			return gatewayErr("saving draft", err)
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, gatewayErr("update draft", err)
	}
	return out, nil
}

// validate checks what can be checked without reading the store.
func (d *Draft) validate() error {
	if strings.TrimSpace(d.Purpose) == "" {
		return validationf("purpose is required")
	}
	if err := validateSchedule(d.StartDate, d.EndDate); err != nil {
		return err
	}
	if len(d.Lines) == 0 {
		return validationf("request has no items")
	}
	for _, l := range d.Lines {
		if l.Quantity <= 0 {
			return validationf("quantity for item %d must be positive", l.ItemID)
		}
	}
	return nil
}

func validateSchedule(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return validationf("start and end date are required")
	}
	if end.Before(start) {
		return validationf("end date %s is before start date %s",
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	return nil
}

// fill copies d onto req and resolves its items. All items must belong to
// one department; the request inherits it, and needs headmaster approval
// when any item's category does.
func (e *Engine) fill(ctx context.Context, s Store, req *model.Request, d Draft) error {
	req.Purpose = strings.TrimSpace(d.Purpose)
	req.Location = strings.TrimSpace(d.Location)
	req.StartDate = d.StartDate.UTC()
	req.EndDate = d.EndDate.UTC()
	req.PICName = strings.TrimSpace(d.PICName)
	req.PICContact = strings.TrimSpace(d.PICContact)
	req.RequiresHeadmaster = false
	req.Items = nil

	merged := make(map[int64]int)
	var order []int64
	for _, l := range d.Lines {
		if _, ok := merged[l.ItemID]; !ok {
			order = append(order, l.ItemID)
		}
		merged[l.ItemID] += l.Quantity
	}

	for i, id := range order {
		item, err := s.Item(ctx, id)
		if errors.Is(err, model.ErrNotFound) || (err == nil && item.DeletedAt != nil) {
			return validationf("unknown item %d", id)
		}
		if err != nil {
			return gatewayErr(fmt.Sprintf("loading item %d", id), err)
		}
		if item.Status == model.ItemStatusRetired {
			return validationf("%s is retired", item.Name)
		}
		if i == 0 {
			req.DepartmentID = item.DepartmentID
		} else if item.DepartmentID != req.DepartmentID {
			return validationf("all items must belong to one department")
		}
		if merged[id] > item.TotalQuantity {
			return validationf("%s: %d requested, only %d exist", item.Name, merged[id], item.TotalQuantity)
		}
		if item.RequiresHeadmaster {
			req.RequiresHeadmaster = true
		}
		req.Items = append(req.Items, model.LineItem{ItemID: id, Quantity: merged[id], ItemName: item.Name})
	}

	req.RequiresLetter = d.RequiresLetter || req.RequiresHeadmaster
	return nil
}
