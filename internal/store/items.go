package store

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/izposoja/internal/model"
)

const itemSelect = `
SELECT i.id, i.name, i.description, i.department_id, i.category_id, i.total_quantity,
       i.available_quantity, i.status, i.image_mime, i.created_at, i.updated_at, i.deleted_at,
       d.name AS department_name,
       COALESCE(c.name, '') AS category_name,
       COALESCE(c.requires_headmaster, 0) AS requires_headmaster
FROM items i
JOIN departments d ON d.id = i.department_id
LEFT JOIN categories c ON c.id = i.category_id`

// CreateItem adds equipment with all units available.
func (s *Store) CreateItem(ctx context.Context, item *model.Item) (*model.Item, error) {
	if item.Status == "" {
		item.Status = model.ItemStatusAvailable
	}
	res, err := sqlx.NamedExecContext(ctx, s.q,
		`INSERT INTO items (name, description, department_id, category_id, total_quantity, available_quantity, status)
		 VALUES (:name, :description, :department_id, :category_id, :total_quantity, :total_quantity, :status)`,
		item,
	)
	if err != nil {
		return nil, failed("creating item", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, failed("getting item id", err)
	}
	return s.Item(ctx, id)
}

// Item returns an item by ID, including soft-deleted ones.
func (s *Store) Item(ctx context.Context, id int64) (*model.Item, error) {
	item := &model.Item{}
	if err := s.get(ctx, "item", item, itemSelect+` WHERE i.id = ?`, id); err != nil {
		return nil, err
	}
	return item, nil
}

// ItemFilter narrows ListItems. Zero fields do not filter.
type ItemFilter struct {
	DepartmentID int64
	CategoryID   int64
	Status       string
	Search       string
}

// ListItems returns non-deleted items ordered by name.
func (s *Store) ListItems(ctx context.Context, f ItemFilter) ([]model.Item, error) {
	where := []string{`i.deleted_at IS NULL`}
	var args []any
	if f.DepartmentID > 0 {
		where = append(where, `i.department_id = ?`)
		args = append(args, f.DepartmentID)
	}
	if f.CategoryID > 0 {
		where = append(where, `i.category_id = ?`)
		args = append(args, f.CategoryID)
	}
	if f.Status != "" {
		where = append(where, `i.status = ?`)
		args = append(args, f.Status)
	}
	if f.Search != "" {
		where = append(where, `(i.name LIKE ? OR i.description LIKE ?)`)
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern)
	}

	items := []model.Item{}
	query := itemSelect + ` WHERE ` + strings.Join(where, ` AND `) + ` ORDER BY i.name, i.id`
	if err := sqlx.SelectContext(ctx, s.q, &items, query, args...); err != nil {
		return nil, failed("listing items", err)
	}
	return items, nil
}

// UpdateItem writes an item's metadata and total quantity. Changing the
// total moves the available quantity by the same amount; the update is
// refused with model.ErrStale if the units currently on loan no longer fit.
func (s *Store) UpdateItem(ctx context.Context, item *model.Item) error {
	return s.execOne(ctx, "updating item", model.ErrStale,
		`UPDATE items
		 SET name = ?, description = ?, department_id = ?, category_id = ?, status = ?,
		     available_quantity = available_quantity + (? - total_quantity),
		     total_quantity = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL AND total_quantity - available_quantity <= ?`,
		item.Name, item.Description, item.DepartmentID, item.CategoryID, item.Status,
		item.TotalQuantity, item.TotalQuantity, time.Now().UTC(),
		item.ID, item.TotalQuantity,
	)
}

// UpdateItemStock moves an item's available quantity from one value to
// another, failing with model.ErrStale if it is no longer fromAvailable.
func (s *Store) UpdateItemStock(ctx context.Context, id int64, fromAvailable, toAvailable int, status string) error {
	return s.execOne(ctx, "updating item stock", model.ErrStale,
		`UPDATE items SET available_quantity = ?, status = ?, updated_at = ?
		 WHERE id = ? AND available_quantity = ?`,
		toAvailable, status, time.Now().UTC(), id, fromAvailable,
	)
}

// DeleteItem soft-deletes an item.
func (s *Store) DeleteItem(ctx context.Context, id int64) error {
	return s.execOne(ctx, "deleting item", model.ErrNotFound,
		`UPDATE items SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		time.Now().UTC(), id,
	)
}

// SetItemImage stores an item's photo and its thumbnail.
func (s *Store) SetItemImage(ctx context.Context, id int64, image, thumbnail []byte, mime string) error {
	return s.execOne(ctx, "setting item image", model.ErrNotFound,
		`UPDATE items SET image = ?, thumbnail = ?, image_mime = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		image, thumbnail, mime, time.Now().UTC(), id,
	)
}

// ItemImage returns an item's photo, or its thumbnail when thumb is set.
func (s *Store) ItemImage(ctx context.Context, id int64, thumb bool) ([]byte, string, error) {
	column := "image"
	if thumb {
		column = "thumbnail"
	}
	var row struct {
		Data []byte  `db:"data"`
		Mime *string `db:"image_mime"`
	}
	err := s.get(ctx, "item image", &row,
		`SELECT `+column+` AS data, image_mime FROM items
		 WHERE id = ? AND deleted_at IS NULL AND `+column+` IS NOT NULL`, id)
	if err != nil {
		return nil, "", err
	}
	mime := ""
	if row.Mime != nil {
		mime = *row.Mime
	}
	return row.Data, mime, nil
}
