package workflow

import (
	"errors"
	"fmt"

	"github.com/erazemk/izposoja/internal/model"
)

// Error classes returned by the engine. Callers match them with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrUnauthorized      = errors.New("not permitted")
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInconsistentState = errors.New("inconsistent state")
	ErrGateway           = errors.New("storage unavailable")
	ErrNotFound          = errors.New("request not found")
)

var classes = []struct {
	err  error
	kind string
}{
	// Inconsistent state wraps its cause, so it is matched first.
	{ErrInconsistentState, "inconsistent_state"},
	{ErrValidation, "validation"},
	{ErrUnauthorized, "unauthorized"},
	{ErrInvalidState, "invalid_state"},
	{ErrInsufficientStock, "insufficient_stock"},
	{ErrNotFound, "not_found"},
	{ErrGateway, "gateway"},
}

// Kind returns a stable name for the class of err, or "internal" for
// errors the engine did not produce.
func Kind(err error) string {
	for _, c := range classes {
		if errors.Is(err, c.err) {
			return c.kind
		}
	}
	return "internal"
}

func classified(err error) bool {
	return Kind(err) != "internal"
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// gatewayErr classifies an error returned by the Store.
func gatewayErr(op string, err error) error {
	switch {
	case classified(err):
		return err
	case errors.Is(err, model.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, model.ErrStale):
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidState, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrGateway, err)
}
