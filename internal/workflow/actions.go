package workflow

import (
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/roles"
)

// Actor is the signed-in user performing an operation.
type Actor struct {
	UserID int64
	Roles  *roles.Resolver
}

// Permitted reports whether actor holds the capability for action on req,
// regardless of the request's current status.
func Permitted(actor Actor, req *model.Request, action Action) bool {
	r := actor.Roles
	if r.IsAdmin() {
		return true
	}
	switch action {
	case ActionSubmit, ActionCancel:
		return req.BorrowerID == actor.UserID
	case ActionOwnerApprove, ActionOwnerReject, ActionStart, ActionComplete:
		return r.OwnsDepartment(req.DepartmentID)
	case ActionHeadmasterApprove, ActionHeadmasterReject:
		return r.IsHeadmaster()
	}
	return false
}

// VisibleActions returns the actions actor can perform on req right now.
// The engine authorizes with the same rules, so a listed action never fails
// on permission or state grounds against the same snapshot.
func VisibleActions(actor Actor, req *model.Request) []Action {
	out := []Action{}
	for _, a := range allActions {
		if _, ok := Next(req, a); ok && Permitted(actor, req, a) {
			out = append(out, a)
		}
	}
	return out
}

// CanView reports whether actor may read req.
func CanView(actor Actor, req *model.Request) bool {
	r := actor.Roles
	return req.BorrowerID == actor.UserID ||
		r.IsAdmin() ||
		r.IsHeadmaster() ||
		r.OwnsDepartment(req.DepartmentID)
}
