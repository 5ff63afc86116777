// Package split maps merged upstream results back onto the original
// requests: slicing a fetched covering matrix into per-caller sub-results,
// and composing per-caller write payloads into one covering payload.
package split

import (
	"fmt"
	"sort"
	"time"

	"cellmux/internal/cellref"
	"cellmux/internal/grid"
)

// OutOfBoundsError indicates a member range that is not contained in its
// unit's covering range. The merge engine guarantees containment, so this
// is an internal invariant check, not a user-facing error.
type OutOfBoundsError struct {
	Covering cellref.Range
	Member   cellref.Range
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("member range %s not contained in covering range %s", e.Member, e.Covering)
}

// SliceRead extracts the sub-matrix a member request must see from the
// matrix fetched for the covering range. The result always has the
// member's full shape: upstream responses trim trailing empty rows and
// cells, and those positions come back as nil, exactly as an unmerged
// call for the member range would have returned them.
func SliceRead(covering, member cellref.Range, fetched grid.Matrix) (grid.Matrix, error) {
	if !covering.Contains(member) {
		return nil, &OutOfBoundsError{Covering: covering, Member: member}
	}

	rowOff := member.StartRow - covering.StartRow
	colOff := member.StartCol - covering.StartCol

	rows := member.Rows()
	if rows == cellref.Open {
		rows = max(fetched.Rows()-rowOff, 0)
	}
	cols := member.Cols()
	if cols == cellref.Open {
		cols = max(fetched.Cols()-colOff, 0)
	}

	return fetched.Slice(rowOff, colOff, rows, cols), nil
}

// WritePiece is one member's contribution to a merged write.
type WritePiece struct {
	Range     cellref.Range
	Payload   grid.Matrix
	CreatedAt time.Time
	Seq       uint64
}

// ComposeWrite lays every piece's payload into a single matrix sized to
// the covering range. Cells no piece covers stay grid.Untouched, so the
// combined upstream write cannot clobber cells nobody asked to change.
// A piece whose range, or whose payload extent, falls outside the
// covering rectangle fails with *OutOfBoundsError.
//
// When pieces overlap on a cell, the later piece wins: pieces are applied
// in (CreatedAt, Seq) order, so the policy is deterministic for a given
// submission order.
func ComposeWrite(covering cellref.Range, pieces []WritePiece) (grid.Matrix, error) {
	for i := range pieces {
		if !covering.Contains(pieces[i].Range) {
			return nil, &OutOfBoundsError{Covering: covering, Member: pieces[i].Range}
		}
	}

	ordered := make([]WritePiece, len(pieces))
	copy(ordered, pieces)
	sort.SliceStable(ordered, func(a, b int) bool {
		if !ordered[a].CreatedAt.Equal(ordered[b].CreatedAt) {
			return ordered[a].CreatedAt.Before(ordered[b].CreatedAt)
		}
		return ordered[a].Seq < ordered[b].Seq
	})

	rows := covering.Rows()
	cols := covering.Cols()
	if rows == cellref.Open || cols == cellref.Open {
		rows, cols = openExtent(covering, ordered)
	}

	combined := grid.New(rows, cols)
	for _, p := range ordered {
		rowOff := p.Range.StartRow - covering.StartRow
		colOff := p.Range.StartCol - covering.StartCol
		if rowOff+p.Payload.Rows() > rows || colOff+p.Payload.Cols() > cols {
			return nil, &OutOfBoundsError{Covering: covering, Member: p.Range}
		}
		combined.Overlay(p.Payload, rowOff, colOff)
	}
	return combined, nil
}

// openExtent sizes the combined matrix for an open-bounded covering range
// from the payloads actually present.
func openExtent(covering cellref.Range, pieces []WritePiece) (rows, cols int) {
	rows = covering.Rows()
	cols = covering.Cols()
	if rows == cellref.Open {
		rows = 0
		for _, p := range pieces {
			if ext := p.Range.StartRow - covering.StartRow + p.Payload.Rows(); ext > rows {
				rows = ext
			}
		}
	}
	if cols == cellref.Open {
		cols = 0
		for _, p := range pieces {
			if ext := p.Range.StartCol - covering.StartCol + p.Payload.Cols(); ext > cols {
				cols = ext
			}
		}
	}
	return rows, cols
}
