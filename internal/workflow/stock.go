package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/erazemk/izposoja/internal/model"
)

type stockChange struct {
	itemID     int64
	from, to   int
	fromStatus string
	toStatus   string
}

// planStock computes the new stock of every item on req moved by sign.
// Nothing is written; a request that cannot be served in full fails here.
func planStock(ctx context.Context, s Store, req *model.Request, sign int) ([]stockChange, error) {
	qty := make(map[int64]int)
	var order []int64
	for _, li := range req.Items {
		if _, ok := qty[li.ItemID]; !ok {
			order = append(order, li.ItemID)
		}
		qty[li.ItemID] += li.Quantity
	}

	changes := make([]stockChange, 0, len(order))
	for _, id := range order {
		item, err := s.Item(ctx, id)
		if err != nil {
			return nil, gatewayErr(fmt.Sprintf("loading item %d", id), err)
		}
		to := item.AvailableQuantity + sign*qty[id]
		if to < 0 {
			return nil, fmt.Errorf("%w: %s has %d available, %d requested",
				ErrInsufficientStock, item.Name, item.AvailableQuantity, qty[id])
		}
		if to > item.TotalQuantity {
			return nil, fmt.Errorf("%w: returning %d of %s would exceed its total of %d",
				ErrInconsistentState, qty[id], item.Name, item.TotalQuantity)
		}
		changes = append(changes, stockChange{
			itemID:     id,
			from:       item.AvailableQuantity,
			to:         to,
			fromStatus: item.Status,
			toStatus:   model.DisplayStatus(item.Status, to),
		})
	}
	return changes, nil
}

// moveStock applies the stock changes for req and then calls save. Inside
// a transaction a failure is simply returned. Outside one, the changes
// already applied are reversed, and a failed reversal is reported as
// ErrInconsistentState.
func (e *Engine) moveStock(ctx context.Context, s Store, req *model.Request, sign int, tx bool, save func() error) error {
	changes, err := planStock(ctx, s, req, sign)
	if err != nil {
		return err
	}

	var applied []stockChange
	var cause error
	for _, c := range changes {
		if err := s.UpdateItemStock(ctx, c.itemID, c.from, c.to, c.toStatus); err != nil {
			cause = gatewayErr(fmt.Sprintf("updating stock of item %d", c.itemID), err)
			break
		}
		applied = append(applied, c)
	}
	if cause == nil {
		if cause = save(); cause == nil {
			return nil
		}
	}
	if tx {
		return cause
	}
	return compensate(ctx, s, req, applied, cause)
}

func compensate(ctx context.Context, s Store, req *model.Request, applied []stockChange, cause error) error {
	var failed []error
	for i := len(applied) - 1; i >= 0; i-- {
		c := applied[i]
		if err := s.UpdateItemStock(ctx, c.itemID, c.to, c.from, c.fromStatus); err != nil {
			failed = append(failed, fmt.Errorf("item %d back to %d: %w", c.itemID, c.from, err))
		}
	}
	if len(failed) == 0 {
		if len(applied) > 0 {
			slog.Warn("stock changes reverted", "request_id", req.ID, "items", len(applied), "cause", cause)
		}
		return cause
	}

	undo := errors.Join(failed...)
	slog.Error("stock left out of step with request, manual repair needed",
		"request_id", req.ID, "cause", cause, "error", undo)
	return fmt.Errorf("%w: request %d: %w; reverting stock: %w", ErrInconsistentState, req.ID, cause, undo)
}
