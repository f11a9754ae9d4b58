package model

import "time"

// Status is the lifecycle state of a borrow request.
type Status string

// Request statuses.
const (
	StatusDraft             Status = "draft"
	StatusPendingOwner      Status = "pending_owner"
	StatusPendingHeadmaster Status = "pending_headmaster"
	StatusApproved          Status = "approved"
	StatusActive            Status = "active"
	StatusCompleted         Status = "completed"
	StatusRejected          Status = "rejected"
	StatusCancelled         Status = "cancelled"
)

// Valid reports whether s is a defined status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingOwner, StatusPendingHeadmaster, StatusApproved,
		StatusActive, StatusCompleted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusCancelled
}

// Request is one loan transaction for one or more items of a single
// department.
type Request struct {
	ID                 int64     `db:"id" json:"id"`
	BorrowerID         int64     `db:"borrower_id" json:"borrower_id"`
	DepartmentID       int64     `db:"department_id" json:"department_id"`
	Purpose            string    `db:"purpose" json:"purpose"`
	Location           string    `db:"location" json:"location"`
	StartDate          time.Time `db:"start_date" json:"start_date"`
	EndDate            time.Time `db:"end_date" json:"end_date"`
	PICName            string    `db:"pic_name" json:"pic_name"`
	PICContact         string    `db:"pic_contact" json:"pic_contact"`
	RequiresHeadmaster bool      `db:"requires_headmaster" json:"requires_headmaster"`
	RequiresLetter     bool      `db:"requires_letter" json:"requires_letter"`
	LetterNumber       *string   `db:"letter_number" json:"letter_number,omitempty"`
	VerificationCode   string    `db:"verification_code" json:"verification_code"`
	Status             Status    `db:"status" json:"status"`
	RejectionReason    *string   `db:"rejection_reason" json:"rejection_reason,omitempty"`

	OwnerReviewerID *int64 `db:"owner_reviewer_id" json:"owner_reviewer_id,omitempty"`
	HeadmasterID    *int64 `db:"headmaster_id" json:"headmaster_id,omitempty"`
	RejectedBy      *int64 `db:"rejected_by" json:"rejected_by,omitempty"`
	CancelledBy     *int64 `db:"cancelled_by" json:"cancelled_by,omitempty"`

	SubmittedAt          *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	OwnerReviewedAt      *time.Time `db:"owner_reviewed_at" json:"owner_reviewed_at,omitempty"`
	HeadmasterApprovedAt *time.Time `db:"headmaster_approved_at" json:"headmaster_approved_at,omitempty"`
	StartedAt            *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt          *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	RejectedAt           *time.Time `db:"rejected_at" json:"rejected_at,omitempty"`
	CancelledAt          *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`

	// Joined fields.
	BorrowerName   string `db:"borrower_name" json:"borrower_name,omitempty"`
	DepartmentName string `db:"department_name" json:"department_name,omitempty"`

	Items []LineItem `db:"-" json:"items"`
}

// ApprovedAt returns the time the request entered approved, if it has.
func (r *Request) ApprovedAt() *time.Time {
	if r.RequiresHeadmaster {
		return r.HeadmasterApprovedAt
	}
	return r.OwnerReviewedAt
}

// LineItem is one (item, quantity) pair of a request.
type LineItem struct {
	ID        int64 `db:"id" json:"id"`
	RequestID int64 `db:"request_id" json:"request_id"`
	ItemID    int64 `db:"item_id" json:"item_id"`
	Quantity  int   `db:"quantity" json:"quantity"`

	// Joined fields.
	ItemName string `db:"item_name" json:"item_name,omitempty"`
}
