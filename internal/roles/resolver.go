// Package roles derives a user's capabilities from their role assignments
// and keeps that derivation cached for the lifetime of a session.
package roles

import (
	"slices"
	"time"

	"github.com/erazemk/izposoja/internal/model"
)

// Snapshot is the role data of one user as loaded at LoadedAt.
type Snapshot struct {
	UserID      int64                  `json:"user_id"`
	Assignments []model.RoleAssignment `json:"assignments"`
	Departments []model.Department     `json:"departments"`
	LoadedAt    time.Time              `json:"loaded_at"`
}

// Resolver answers capability questions for one user. A nil Resolver, or one
// built from a snapshot without assignments, answers false to everything.
type Resolver struct {
	snap Snapshot
}

// NewResolver wraps a snapshot.
func NewResolver(snap Snapshot) *Resolver {
	return &Resolver{snap: snap}
}

// UserID returns the user the resolver was built for.
func (r *Resolver) UserID() int64 {
	if r == nil {
		return 0
	}
	return r.snap.UserID
}

// HasRole reports whether the user holds role in any department.
func (r *Resolver) HasRole(role string) bool {
	if r == nil {
		return false
	}
	for _, a := range r.snap.Assignments {
		if a.Role == role {
			return true
		}
	}
	return false
}

func (r *Resolver) IsBorrower() bool   { return r.HasRole(model.RoleBorrower) }
func (r *Resolver) IsOwner() bool      { return r.HasRole(model.RoleOwner) }
func (r *Resolver) IsHeadmaster() bool { return r.HasRole(model.RoleHeadmaster) }
func (r *Resolver) IsAdmin() bool      { return r.HasRole(model.RoleAdmin) }

// CanManageInventory reports whether the user may edit equipment records.
func (r *Resolver) CanManageInventory() bool {
	return r.IsAdmin() || r.IsOwner()
}

// CanApproveRequests reports whether the user takes part in any approval stage.
func (r *Resolver) CanApproveRequests() bool {
	return r.IsAdmin() || r.IsOwner() || r.IsHeadmaster()
}

// UserDepartment returns the department name of the user's owner
// assignment. With several owner assignments the oldest one wins.
func (r *Resolver) UserDepartment() (string, bool) {
	if r == nil {
		return "", false
	}
	for _, a := range r.snap.Assignments {
		if a.Role == model.RoleOwner && a.Department != nil && *a.Department != "" {
			return *a.Department, true
		}
	}
	return "", false
}

// UserDepartmentID resolves UserDepartment against the known departments.
func (r *Resolver) UserDepartmentID() (int64, bool) {
	name, ok := r.UserDepartment()
	if !ok {
		return 0, false
	}
	return r.departmentID(name)
}

// OwnsDepartment reports whether any of the user's owner assignments
// names the department with the given id.
func (r *Resolver) OwnsDepartment(id int64) bool {
	if r == nil {
		return false
	}
	for _, a := range r.snap.Assignments {
		if a.Role != model.RoleOwner || a.Department == nil {
			continue
		}
		if deptID, ok := r.departmentID(*a.Department); ok && deptID == id {
			return true
		}
	}
	return false
}

// OwnedDepartmentIDs returns the ids of every department the user owns.
func (r *Resolver) OwnedDepartmentIDs() []int64 {
	if r == nil {
		return nil
	}
	var out []int64
	for _, a := range r.snap.Assignments {
		if a.Role != model.RoleOwner || a.Department == nil {
			continue
		}
		if id, ok := r.departmentID(*a.Department); ok && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// Roles returns the distinct roles the user holds, sorted.
func (r *Resolver) Roles() []string {
	if r == nil {
		return []string{}
	}
	out := make([]string, 0, len(r.snap.Assignments))
	for _, a := range r.snap.Assignments {
		if !slices.Contains(out, a.Role) {
			out = append(out, a.Role)
		}
	}
	slices.Sort(out)
	return out
}

func (r *Resolver) departmentID(name string) (int64, bool) {
	for _, d := range r.snap.Departments {
		if d.Name == name {
			return d.ID, true
		}
	}
	return 0, false
}
