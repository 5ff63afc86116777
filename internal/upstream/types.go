package upstream

import (
	"context"
	"fmt"

	"cellmux/internal/cellref"
	"cellmux/internal/grid"
)

// SheetService is the contract the coalescing layer needs from the
// tabular-data backend: read or write one rectangular region. Both
// operations are slow, fallible and rate limited; retrying is the
// caller's responsibility, never this layer's.
type SheetService interface {
	ReadRange(ctx context.Context, sheetID string, rng cellref.Range) (grid.Matrix, error)
	WriteRange(ctx context.Context, sheetID string, rng cellref.Range, values grid.Matrix) error
}

// CallError is an upstream failure. It is opaque to the coalescing core
// and propagated as-is to every request served by the failed call.
type CallError struct {
	Op      string
	SheetID string
	Range   cellref.Range
	Status  int
	Message string
}

func (e *CallError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream %s %s %s: status %d: %s", e.Op, e.SheetID, e.Range, e.Status, e.Message)
	}
	return fmt.Sprintf("upstream %s %s %s: %s", e.Op, e.SheetID, e.Range, e.Message)
}
