package model

import "time"

// Roles. A user may hold several at once.
const (
	RoleBorrower   = "borrower"
	RoleOwner      = "owner"
	RoleHeadmaster = "headmaster"
	RoleAdmin      = "admin"
)

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleBorrower, RoleOwner, RoleHeadmaster, RoleAdmin:
		return true
	}
	return false
}

// RoleAssignment grants a role to a user. Department names the department
// an owner is responsible for; it is empty for the other roles.
type RoleAssignment struct {
	ID         int64     `db:"id" json:"id"`
	UserID     int64     `db:"user_id" json:"user_id"`
	Role       string    `db:"role" json:"role"`
	Department *string   `db:"department" json:"department,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Department is an organisational unit that owns equipment.
type Department struct {
	ID        int64      `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Code      string     `db:"code" json:"code"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Category groups items. Borrowing anything from a category flagged with
// RequiresHeadmaster needs a second approval.
type Category struct {
	ID                 int64     `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	RequiresHeadmaster bool      `db:"requires_headmaster" json:"requires_headmaster"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}
