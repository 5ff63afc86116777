package cellref

import "math"

// Open is the sentinel bound for an unbounded row or column, as in
// the column range "A:C" (all rows) or the row range "3:9" (all columns).
const Open = math.MaxInt32

// Range is an axis-aligned rectangular region of cells on one named sheet.
// All bounds are inclusive and zero-based. Ranges are immutable values:
// every operation returns a new Range.
type Range struct {
	Sheet    string
	StartRow int
	EndRow   int
	StartCol int
	EndCol   int
}

// Valid reports whether the range satisfies its invariants:
// non-empty sheet name and ordered bounds.
func (r Range) Valid() bool {
	return r.Sheet != "" && r.StartRow <= r.EndRow && r.StartCol <= r.EndCol
}

// SingleCell reports whether the range covers exactly one cell.
func (r Range) SingleCell() bool {
	return r.StartRow == r.EndRow && r.StartCol == r.EndCol && r.EndRow != Open && r.EndCol != Open
}

// Rows returns the number of rows in the range, or Open for an open row bound.
func (r Range) Rows() int {
	if r.EndRow == Open {
		return Open
	}
	return r.EndRow - r.StartRow + 1
}

// Cols returns the number of columns, or Open for an open column bound.
func (r Range) Cols() int {
	if r.EndCol == Open {
		return Open
	}
	return r.EndCol - r.StartCol + 1
}

// Area returns the cell count of the range, saturating at math.MaxInt64
// when either axis is open. Used for merge cost comparisons.
func (r Range) Area() int64 {
	rows := int64(r.EndRow) - int64(r.StartRow) + 1
	cols := int64(r.EndCol) - int64(r.StartCol) + 1
	if rows <= 0 || cols <= 0 {
		return 0
	}
	if rows > math.MaxInt64/cols {
		return math.MaxInt64
	}
	return rows * cols
}

// Overlaps reports whether a and b share at least one cell. Ranges on
// different sheets never overlap. Touching edges do not count: the
// coordinate intervals must actually intersect on both axes.
func (a Range) Overlaps(b Range) bool {
	if a.Sheet != b.Sheet {
		return false
	}
	return a.StartRow <= b.EndRow && b.StartRow <= a.EndRow &&
		a.StartCol <= b.EndCol && b.StartCol <= a.EndCol
}

// Adjacent reports whether a and b are on the same sheet and close enough
// to merge: they overlap on one axis while the gap on the other axis is
// at most within cells. within = 0 means only directly touching boxes.
func (a Range) Adjacent(b Range, within int) bool {
	if a.Sheet != b.Sheet {
		return false
	}
	rowGap := axisGap(a.StartRow, a.EndRow, b.StartRow, b.EndRow)
	colGap := axisGap(a.StartCol, a.EndCol, b.StartCol, b.EndCol)
	return rowGap <= within && colGap <= within
}

// axisGap returns the number of cells strictly between two inclusive
// intervals, or 0 if they intersect or touch.
func axisGap(aStart, aEnd, bStart, bEnd int) int {
	if aStart > bEnd {
		return aStart - bEnd - 1
	}
	if bStart > aEnd {
		return bStart - aEnd - 1
	}
	return 0
}

// Contains reports whether inner lies entirely within r on the same sheet.
func (r Range) Contains(inner Range) bool {
	if r.Sheet != inner.Sheet {
		return false
	}
	return r.StartRow <= inner.StartRow && inner.EndRow <= r.EndRow &&
		r.StartCol <= inner.StartCol && inner.EndCol <= r.EndCol
}

// BoundingBox returns the minimal Range containing both a and b.
// Fails with *CrossSheetError if the sheets differ.
func (a Range) BoundingBox(b Range) (Range, error) {
	if a.Sheet != b.Sheet {
		return Range{}, &CrossSheetError{A: a.Sheet, B: b.Sheet}
	}
	return Range{
		Sheet:    a.Sheet,
		StartRow: min(a.StartRow, b.StartRow),
		EndRow:   max(a.EndRow, b.EndRow),
		StartCol: min(a.StartCol, b.StartCol),
		EndCol:   max(a.EndCol, b.EndCol),
	}, nil
}
