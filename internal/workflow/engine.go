package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/erazemk/izposoja/internal/model"
)

// Store is what the engine needs from persistence. Updates are conditional:
// UpdateRequestStatus only matches a row still in status from, and
// UpdateItemStock only one whose available quantity is still fromAvailable.
// Both return model.ErrStale when the guard fails.
type Store interface {
	Request(ctx context.Context, id int64) (*model.Request, error)
	CreateRequest(ctx context.Context, req *model.Request) error
	UpdateDraft(ctx context.Context, req *model.Request) error
	UpdateRequestStatus(ctx context.Context, req *model.Request, from model.Status) error
	Item(ctx context.Context, id int64) (*model.Item, error)
	UpdateItemStock(ctx context.Context, id int64, fromAvailable, toAvailable int, status string) error
	NextLetterSequence(ctx context.Context, year int) (int, error)
}

// Transactor is implemented by stores that can run a function atomically.
// Every Store call made through the argument of fn joins the transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(Store) error) error
}

// Decision is a reviewer's verdict.
type Decision string

// Decisions.
const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
)

// Engine applies lifecycle transitions to borrow requests.
type Engine struct {
	store  Store
	prefix string
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLetterPrefix sets the middle part of letter numbers.
func WithLetterPrefix(prefix string) Option {
	return func(e *Engine) {
		if prefix != "" {
			e.prefix = prefix
		}
	}
}

// NewEngine creates an engine over store. When store also implements
// Transactor every operation runs in one transaction; otherwise stock
// changes are undone by compensation when a later write fails.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{store: store, prefix: DefaultLetterPrefix, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit sends a draft to the owner of its department.
func (e *Engine) Submit(ctx context.Context, actor Actor, id int64) (*model.Request, error) {
	return e.transition(ctx, actor, id, ActionSubmit, 0, func(_ context.Context, _ Store, req *model.Request, now time.Time) error {
		if len(req.Items) == 0 {
			return validationf("request has no items")
		}
		if err := validateSchedule(req.StartDate, req.EndDate); err != nil {
			return err
		}
		req.SubmittedAt = &now
		return nil
	})
}

// ReviewByOwner records the department owner's decision.
func (e *Engine) ReviewByOwner(ctx context.Context, actor Actor, id int64, decision Decision, reason string) (*model.Request, error) {
	switch decision {
	case Approve:
		return e.transition(ctx, actor, id, ActionOwnerApprove, 0, func(ctx context.Context, s Store, req *model.Request, now time.Time) error {
			req.OwnerReviewedAt = &now
			req.OwnerReviewerID = &actor.UserID
			if req.Status == model.StatusApproved && needsLetter(req) {
				return e.assignLetter(ctx, s, req, now)
			}
			return nil
		})
	case Reject:
		return e.transition(ctx, actor, id, ActionOwnerReject, 0, reject(actor, reason))
	}
	return nil, validationf("unknown decision %q", decision)
}

// ReviewByHeadmaster records the headmaster's decision on a request that
// needs a second approval.
func (e *Engine) ReviewByHeadmaster(ctx context.Context, actor Actor, id int64, decision Decision, reason string) (*model.Request, error) {
	switch decision {
	case Approve:
		return e.transition(ctx, actor, id, ActionHeadmasterApprove, 0, func(ctx context.Context, s Store, req *model.Request, now time.Time) error {
			req.HeadmasterApprovedAt = &now
			req.HeadmasterID = &actor.UserID
			return e.assignLetter(ctx, s, req, now)
		})
	case Reject:
		return e.transition(ctx, actor, id, ActionHeadmasterReject, 0, reject(actor, reason))
	}
	return nil, validationf("unknown decision %q", decision)
}

// StartLoan hands the equipment out, taking it off the available stock.
func (e *Engine) StartLoan(ctx context.Context, actor Actor, id int64) (*model.Request, error) {
	return e.transition(ctx, actor, id, ActionStart, -1, func(_ context.Context, _ Store, req *model.Request, now time.Time) error {
		req.StartedAt = &now
		return nil
	})
}

// CompleteLoan takes the equipment back, returning it to stock.
func (e *Engine) CompleteLoan(ctx context.Context, actor Actor, id int64) (*model.Request, error) {
	return e.transition(ctx, actor, id, ActionComplete, 1, func(_ context.Context, _ Store, req *model.Request, now time.Time) error {
		req.CompletedAt = &now
		return nil
	})
}

// Cancel withdraws a request that has not been approved yet.
func (e *Engine) Cancel(ctx context.Context, actor Actor, id int64) (*model.Request, error) {
	return e.transition(ctx, actor, id, ActionCancel, 0, func(_ context.Context, _ Store, req *model.Request, now time.Time) error {
		req.CancelledAt = &now
		req.CancelledBy = &actor.UserID
		return nil
	})
}

// mutation sets the fields a transition records. It runs after
// authorization and state checks and may issue extra writes.
type mutation func(ctx context.Context, s Store, req *model.Request, now time.Time) error

func reject(actor Actor, reason string) mutation {
	return func(_ context.Context, _ Store, req *model.Request, now time.Time) error {
		req.RejectedAt = &now
		req.RejectedBy = &actor.UserID
		if reason = strings.TrimSpace(reason); reason != "" {
			req.RejectionReason = &reason
		}
		return nil
	}
}

// transition loads the request, checks permission then state, applies
// mutate, and persists the result. A non-zero stock moves every line item's
// quantity in that direction together with the status write.
func (e *Engine) transition(ctx context.Context, actor Actor, id int64, action Action, stock int, mutate mutation) (*model.Request, error) {
	var out *model.Request
	var from model.Status

	err := e.unit(ctx, func(s Store, tx bool) error {
		req, err := s.Request(ctx, id)
		if err != nil {
			return gatewayErr("loading request", err)
		}
		if !Permitted(actor, req, action) {
			return fmt.Errorf("%w: user %d may not %s request %d", ErrUnauthorized, actor.UserID, action, id)
		}
		to, ok := Next(req, action)
		if !ok {
			return fmt.Errorf("%w: cannot %s a request that is %s", ErrInvalidState, action, req.Status)
		}

		now := e.now().UTC()
		from = req.Status
		req.Status = to
		req.UpdatedAt = now
		if err := mutate(ctx, s, req, now); err != nil {
			return err
		}

		save := func() error {
			if err := s.UpdateRequestStatus(ctx, req, from); err != nil {
				return gatewayErr("saving request", err)
			}
			return nil
		}
		if stock != 0 {
			err = e.moveStock(ctx, s, req, stock, tx, save)
		} else {
			err = save()
		}
		if err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, gatewayErr(string(action), err)
	}

	slog.Info("request transitioned",
		"request_id", out.ID, "action", string(action),
		"from", string(from), "to", string(out.Status), "actor", actor.UserID)
	return out, nil
}

// unit runs fn as one unit of work. tx reports whether fn runs inside a
// transaction that discards all its writes on error.
func (e *Engine) unit(ctx context.Context, fn func(s Store, tx bool) error) error {
	if t, ok := e.store.(Transactor); ok {
		return t.InTx(ctx, func(s Store) error { return fn(s, true) })
	}
	return fn(e.store, false)
}

func needsLetter(req *model.Request) bool {
	return req.RequiresLetter || req.RequiresHeadmaster
}

// assignLetter gives req its letter number unless it already has one.
func (e *Engine) assignLetter(ctx context.Context, s Store, req *model.Request, now time.Time) error {
	if req.LetterNumber != nil {
		return nil
	}
	seq, err := s.NextLetterSequence(ctx, now.Year())
	if err != nil {
		return gatewayErr("allocating letter number", err)
	}
	n := FormatLetterNumber(seq, e.prefix, now)
	req.LetterNumber = &n
	return nil
}
