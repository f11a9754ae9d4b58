// Package workflow drives a borrow request through its lifecycle and keeps
// equipment stock in step with it.
package workflow

import "github.com/erazemk/izposoja/internal/model"

// Action is an event that moves a request between statuses.
type Action string

// Actions.
const (
	ActionSubmit            Action = "submit"
	ActionOwnerApprove      Action = "owner_approve"
	ActionOwnerReject       Action = "owner_reject"
	ActionHeadmasterApprove Action = "headmaster_approve"
	ActionHeadmasterReject  Action = "headmaster_reject"
	ActionStart             Action = "start"
	ActionComplete          Action = "complete"
	ActionCancel            Action = "cancel"
)

// allActions fixes the order VisibleActions reports actions in.
var allActions = []Action{
	ActionSubmit,
	ActionOwnerApprove,
	ActionOwnerReject,
	ActionHeadmasterApprove,
	ActionHeadmasterReject,
	ActionStart,
	ActionComplete,
	ActionCancel,
}

// transitions lists every edge of the lifecycle. The owner-approve edge is
// redirected to pending_headmaster by Next when the request needs a second
// approval.
var transitions = map[model.Status]map[Action]model.Status{
	model.StatusDraft: {
		ActionSubmit: model.StatusPendingOwner,
		ActionCancel: model.StatusCancelled,
	},
	model.StatusPendingOwner: {
		ActionOwnerApprove: model.StatusApproved,
		ActionOwnerReject:  model.StatusRejected,
		ActionCancel:       model.StatusCancelled,
	},
	model.StatusPendingHeadmaster: {
		ActionHeadmasterApprove: model.StatusApproved,
		ActionHeadmasterReject:  model.StatusRejected,
		ActionCancel:            model.StatusCancelled,
	},
	model.StatusApproved: {
		ActionStart: model.StatusActive,
	},
	model.StatusActive: {
		ActionComplete: model.StatusCompleted,
	},
}

// Next returns the status req moves to on action, or false when the
// current status has no such edge.
func Next(req *model.Request, action Action) (model.Status, bool) {
	to, ok := transitions[req.Status][action]
	if !ok {
		return "", false
	}
	if action == ActionOwnerApprove && req.RequiresHeadmaster {
		return model.StatusPendingHeadmaster, true
	}
	return to, true
}
