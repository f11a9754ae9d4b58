package model

import "time"

// Item is a quantity-tracked piece of equipment held by one department.
type Item struct {
	ID                int64      `db:"id" json:"id"`
	Name              string     `db:"name" json:"name"`
	Description       string     `db:"description" json:"description,omitempty"`
	DepartmentID      int64      `db:"department_id" json:"department_id"`
	CategoryID        *int64     `db:"category_id" json:"category_id,omitempty"`
	TotalQuantity     int        `db:"total_quantity" json:"total_quantity"`
	AvailableQuantity int        `db:"available_quantity" json:"available_quantity"`
	Status            string     `db:"status" json:"status"`
	ImageMime         *string    `db:"image_mime" json:"image_mime,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt         *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`

	// Joined fields.
	DepartmentName     string `db:"department_name" json:"department_name,omitempty"`
	CategoryName       string `db:"category_name" json:"category_name,omitempty"`
	RequiresHeadmaster bool   `db:"requires_headmaster" json:"requires_headmaster"`
}

// Item statuses.
const (
	ItemStatusAvailable   = "available"
	ItemStatusBorrowed    = "borrowed"
	ItemStatusMaintenance = "maintenance"
	ItemStatusRetired     = "retired"
)

// ValidItemStatus reports whether s is a known item status.
func ValidItemStatus(s string) bool {
	switch s {
	case ItemStatusAvailable, ItemStatusBorrowed, ItemStatusMaintenance, ItemStatusRetired:
		return true
	}
	return false
}

// DisplayStatus returns the status an item should show once its available
// quantity becomes available. Only the available/borrowed pair is derived
// from stock; maintenance and retired are set by hand and kept.
func DisplayStatus(current string, available int) string {
	switch current {
	case ItemStatusAvailable, ItemStatusBorrowed:
		if available == 0 {
			return ItemStatusBorrowed
		}
		return ItemStatusAvailable
	}
	return current
}
