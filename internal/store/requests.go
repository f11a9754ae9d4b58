package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/izposoja/internal/model"
)

const requestSelect = `
SELECT r.id, r.borrower_id, r.department_id, r.purpose, r.location, r.start_date, r.end_date,
       r.pic_name, r.pic_contact, r.requires_headmaster, r.requires_letter, r.letter_number,
       r.verification_code, r.status, r.rejection_reason,
       r.owner_reviewer_id, r.headmaster_id, r.rejected_by, r.cancelled_by,
       r.submitted_at, r.owner_reviewed_at, r.headmaster_approved_at, r.started_at,
       r.completed_at, r.rejected_at, r.cancelled_at, r.created_at, r.updated_at,
       COALESCE(NULLIF(u.full_name, ''), u.username) AS borrower_name,
       d.name AS department_name
FROM borrow_requests r
JOIN users u ON u.id = r.borrower_id
JOIN departments d ON d.id = r.department_id`

// CreateRequest inserts req with its line items and sets the new ids.
func (s *Store) CreateRequest(ctx context.Context, req *model.Request) error {
	return s.inTx(ctx, func(tx *Store) error {
		id, err := tx.insert(ctx, "request",
			`INSERT INTO borrow_requests (borrower_id, department_id, purpose, location, start_date, end_date,
			     pic_name, pic_contact, requires_headmaster, requires_letter, verification_code, status,
			     submitted_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			req.BorrowerID, req.DepartmentID, req.Purpose, req.Location, req.StartDate, req.EndDate,
			req.PICName, req.PICContact, req.RequiresHeadmaster, req.RequiresLetter, req.VerificationCode,
			string(req.Status), req.SubmittedAt, req.CreatedAt, req.UpdatedAt,
		)
		if err != nil {
			return err
		}
		req.ID = id
		return tx.insertLines(ctx, req)
	})
}

// UpdateDraft rewrites the editable fields and line items of a draft.
func (s *Store) UpdateDraft(ctx context.Context, req *model.Request) error {
	return s.inTx(ctx, func(tx *Store) error {
		err := tx.execOne(ctx, "updating draft", model.ErrStale,
			`UPDATE borrow_requests
			 SET department_id = ?, purpose = ?, location = ?, start_date = ?, end_date = ?,
			     pic_name = ?, pic_contact = ?, requires_headmaster = ?, requires_letter = ?, updated_at = ?
			 WHERE id = ? AND status = 'draft'`,
			req.DepartmentID, req.Purpose, req.Location, req.StartDate, req.EndDate,
			req.PICName, req.PICContact, req.RequiresHeadmaster, req.RequiresLetter, req.UpdatedAt,
			req.ID,
		)
		if err != nil {
			return err
		}
		if _, err := tx.q.ExecContext(ctx, `DELETE FROM request_items WHERE request_id = ?`, req.ID); err != nil {
			return failed("clearing line items", err)
		}
		return tx.insertLines(ctx, req)
	})
}

func (s *Store) insertLines(ctx context.Context, req *model.Request) error {
	for i := range req.Items {
		li := &req.Items[i]
		li.RequestID = req.ID
		id, err := s.insert(ctx, "line item",
			`INSERT INTO request_items (request_id, item_id, quantity) VALUES (?, ?, ?)`,
			req.ID, li.ItemID, li.Quantity,
		)
		if err != nil {
			return err
		}
		li.ID = id
	}
	return nil
}

// UpdateRequestStatus writes the status and stage fields of req, provided
// the stored status is still from.
func (s *Store) UpdateRequestStatus(ctx context.Context, req *model.Request, from model.Status) error {
	return s.execOne(ctx, "updating request status", model.ErrStale,
		`UPDATE borrow_requests
		 SET status = ?, letter_number = ?, rejection_reason = ?,
		     owner_reviewer_id = ?, headmaster_id = ?, rejected_by = ?, cancelled_by = ?,
		     submitted_at = ?, owner_reviewed_at = ?, headmaster_approved_at = ?, started_at = ?,
		     completed_at = ?, rejected_at = ?, cancelled_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(req.Status), req.LetterNumber, req.RejectionReason,
		req.OwnerReviewerID, req.HeadmasterID, req.RejectedBy, req.CancelledBy,
		req.SubmittedAt, req.OwnerReviewedAt, req.HeadmasterApprovedAt, req.StartedAt,
		req.CompletedAt, req.RejectedAt, req.CancelledAt, req.UpdatedAt,
		req.ID, string(from),
	)
}

// Request returns a request with its line items.
func (s *Store) Request(ctx context.Context, id int64) (*model.Request, error) {
	req := &model.Request{}
	if err := s.get(ctx, "request", req, requestSelect+` WHERE r.id = ?`, id); err != nil {
		return nil, err
	}
	if err := s.attachLines(ctx, []*model.Request{req}); err != nil {
		return nil, err
	}
	return req, nil
}

// RequestByCode looks a request up by its verification code.
func (s *Store) RequestByCode(ctx context.Context, code string) (*model.Request, error) {
	req := &model.Request{}
	if err := s.get(ctx, "request", req, requestSelect+` WHERE r.verification_code = ?`, code); err != nil {
		return nil, err
	}
	if err := s.attachLines(ctx, []*model.Request{req}); err != nil {
		return nil, err
	}
	return req, nil
}

// RequestFilter narrows ListRequests. Zero fields do not filter. Owned
// matches requests that are either the borrower's own or belong to one of
// DepartmentIDs, which is how an owner sees their queue next to their own
// loans.
type RequestFilter struct {
	BorrowerID    int64
	DepartmentIDs []int64
	Owned         bool
	Statuses      []model.Status
	Limit         int
}

// ListRequests returns matching requests, most recently updated first.
func (s *Store) ListRequests(ctx context.Context, f RequestFilter) ([]model.Request, error) {
	var where []string
	var args []any

	switch {
	case f.Owned:
		cond := `r.borrower_id = ?`
		args = append(args, f.BorrowerID)
		if len(f.DepartmentIDs) > 0 {
			cond = `(r.borrower_id = ? OR r.department_id IN (?))`
			args = append(args, f.DepartmentIDs)
		}
		where = append(where, cond)
	default:
		if f.BorrowerID > 0 {
			where = append(where, `r.borrower_id = ?`)
			args = append(args, f.BorrowerID)
		}
		if len(f.DepartmentIDs) > 0 {
			where = append(where, `r.department_id IN (?)`)
			args = append(args, f.DepartmentIDs)
		}
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		where = append(where, `r.status IN (?)`)
		args = append(args, statuses)
	}

	query := requestSelect
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY r.updated_at DESC, r.id DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, failed("building request query", err)
	}

	var reqs []model.Request
	if err := sqlx.SelectContext(ctx, s.q, &reqs, s.q.Rebind(query), args...); err != nil {
		return nil, failed("listing requests", err)
	}

	ptrs := make([]*model.Request, len(reqs))
	for i := range reqs {
		ptrs[i] = &reqs[i]
	}
	if err := s.attachLines(ctx, ptrs); err != nil {
		return nil, err
	}
	return reqs, nil
}

func (s *Store) attachLines(ctx context.Context, reqs []*model.Request) error {
	if len(reqs) == 0 {
		return nil
	}
	ids := make([]int64, len(reqs))
	byID := make(map[int64]*model.Request, len(reqs))
	for i, r := range reqs {
		ids[i] = r.ID
		r.Items = []model.LineItem{}
		byID[r.ID] = r
	}

	query, args, err := sqlx.In(
		`SELECT ri.id, ri.request_id, ri.item_id, ri.quantity, i.name AS item_name
		 FROM request_items ri
		 JOIN items i ON i.id = ri.item_id
		 WHERE ri.request_id IN (?)
		 ORDER BY ri.id`, ids)
	if err != nil {
		return failed("building line item query", err)
	}

	var lines []model.LineItem
	if err := sqlx.SelectContext(ctx, s.q, &lines, s.q.Rebind(query), args...); err != nil {
		return failed("listing line items", err)
	}
	for _, li := range lines {
		r := byID[li.RequestID]
		r.Items = append(r.Items, li)
	}
	return nil
}

// NextLetterSequence returns the next letter sequence number for year,
// starting at 1.
func (s *Store) NextLetterSequence(ctx context.Context, year int) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, s.q, &n,
		`INSERT INTO letter_sequences (year, last_number) VALUES (?, 1)
		 ON CONFLICT (year) DO UPDATE SET last_number = last_number + 1
		 RETURNING last_number`, year)
	if err != nil {
		return 0, failed("allocating letter sequence", err)
	}
	return n, nil
}
