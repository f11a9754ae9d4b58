// Package timeline projects a borrow request onto the progress steps shown
// to borrowers and on the public verification page.
package timeline

import (
	"time"

	"github.com/erazemk/izposoja/internal/model"
)

// Step is one stage of a request's progress.
type Step struct {
	Key       string     `json:"key"`
	Label     string     `json:"label"`
	Icon      string     `json:"icon"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Reached   bool       `json:"reached"`
}

// Marker describes how a request left the normal path.
type Marker struct {
	Status    model.Status `json:"status"`
	Label     string       `json:"label"`
	Timestamp *time.Time   `json:"timestamp,omitempty"`
	Reason    string       `json:"reason,omitempty"`
}

// Position of each status along the normal path.
var rank = map[model.Status]int{
	model.StatusDraft:             0,
	model.StatusPendingOwner:      1,
	model.StatusPendingHeadmaster: 2,
	model.StatusApproved:          3,
	model.StatusActive:            4,
	model.StatusCompleted:         5,
}

type stage struct {
	key, label, icon string
	rank             int
	at               func(*model.Request) *time.Time
	headmaster       bool
}

var stages = []stage{
	{"submitted", "Submitted", "send", 1, func(r *model.Request) *time.Time { return r.SubmittedAt }, false},
	{"owner_reviewed", "Approved by owner", "user-check", 2, func(r *model.Request) *time.Time { return r.OwnerReviewedAt }, false},
	{"headmaster_approved", "Approved by headmaster", "shield-check", 3, func(r *model.Request) *time.Time { return r.HeadmasterApprovedAt }, true},
	{"letter_ready", "Letter ready", "file-text", 3, (*model.Request).ApprovedAt, false},
	{"loan_active", "On loan", "package", 4, func(r *model.Request) *time.Time { return r.StartedAt }, false},
	{"completed", "Returned", "check-circle", 5, func(r *model.Request) *time.Time { return r.CompletedAt }, false},
}

// Project returns the steps of req in display order. It only reads req.
func Project(req *model.Request) []Step {
	current := progress(req)
	steps := make([]Step, 0, len(stages))
	for _, st := range stages {
		if st.headmaster && !req.RequiresHeadmaster {
			continue
		}
		s := Step{Key: st.key, Label: st.label, Icon: st.icon, Reached: current >= st.rank}
		if s.Reached {
			s.Timestamp = copyTime(st.at(req))
		}
		steps = append(steps, s)
	}
	return steps
}

// Outcome reports a rejection or cancellation, or nil for any other status.
func Outcome(req *model.Request) *Marker {
	switch req.Status {
	case model.StatusRejected:
		m := &Marker{Status: req.Status, Label: "Rejected", Timestamp: copyTime(req.RejectedAt)}
		if req.RejectionReason != nil {
			m.Reason = *req.RejectionReason
		}
		return m
	case model.StatusCancelled:
		return &Marker{Status: req.Status, Label: "Cancelled", Timestamp: copyTime(req.CancelledAt)}
	}
	return nil
}

// progress is the rank of the furthest stage req reached. Rejected and
// cancelled requests stopped at the last pending stage their timestamps
// show.
func progress(req *model.Request) int {
	if r, ok := rank[req.Status]; ok {
		return r
	}
	switch {
	case req.OwnerReviewedAt != nil:
		return rank[model.StatusPendingHeadmaster]
	case req.SubmittedAt != nil:
		return rank[model.StatusPendingOwner]
	}
	return rank[model.StatusDraft]
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
