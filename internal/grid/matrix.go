// Package grid holds the cell matrix type shared by the splitter, the
// coordinator and the upstream clients.
package grid

import "encoding/json"

// untouched is the type of the Untouched sentinel. It marshals to JSON
// null so a combined upstream write skips cells no caller asked to write.
type untouched struct{}

func (untouched) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// Untouched marks a cell that no write request covered. An upstream write
// carrying this value must leave the cell as it is.
var Untouched any = untouched{}

// IsUntouched reports whether v is the Untouched sentinel.
func IsUntouched(v any) bool {
	_, ok := v.(untouched)
	return ok
}

// Matrix is a row-major rectangle of cell values. Reads produce matrices
// sized exactly to the requested range; write payloads are matrices sized
// to the range being written.
type Matrix [][]any

// New returns a rows x cols matrix with every cell set to Untouched.
func New(rows, cols int) Matrix {
	m := make(Matrix, rows)
	for i := range m {
		row := make([]any, cols)
		for j := range row {
			row[j] = Untouched
		}
		m[i] = row
	}
	return m
}

// Rows returns the number of rows.
func (m Matrix) Rows() int {
	return len(m)
}

// Cols returns the width of the widest row. Upstream responses may trim
// trailing empty cells, leaving rows ragged.
func (m Matrix) Cols() int {
	cols := 0
	for _, row := range m {
		if len(row) > cols {
			cols = len(row)
		}
	}
	return cols
}

// Cell returns the value at (row, col), or nil when the position lies
// beyond the stored data (trimmed trailing cells read as empty).
func (m Matrix) Cell(row, col int) any {
	if row >= len(m) || col >= len(m[row]) {
		return nil
	}
	return m[row][col]
}

// Slice copies the sub-rectangle starting at (row, col) with the given
// size. Positions beyond the stored data come back as nil, so a slice of
// a trimmed upstream response still has the full requested shape.
func (m Matrix) Slice(row, col, rows, cols int) Matrix {
	out := make(Matrix, rows)
	for i := 0; i < rows; i++ {
		r := make([]any, cols)
		for j := 0; j < cols; j++ {
			r[j] = m.Cell(row+i, col+j)
		}
		out[i] = r
	}
	return out
}

// Overlay writes src into m starting at (row, col). Cells of src that are
// Untouched are skipped, so overlaying never widens what a payload wrote.
// Cells that would land outside m are dropped rather than panicking; the
// splitter rejects out-of-bounds payloads before they get here.
func (m Matrix) Overlay(src Matrix, row, col int) {
	for i, srcRow := range src {
		if row+i >= len(m) {
			return
		}
		dst := m[row+i]
		for j, v := range srcRow {
			if col+j >= len(dst) {
				break
			}
			if IsUntouched(v) {
				continue
			}
			dst[col+j] = v
		}
	}
}

// MarshalJSON keeps a nil matrix distinguishable from an empty one.
func (m Matrix) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	return json.Marshal([][]any(m))
}
