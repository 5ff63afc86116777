package split

import (
	"fmt"
	"testing"
	"time"

	"cellmux/internal/cellref"
	"cellmux/internal/grid"
)

func rng(startRow, endRow, startCol, endCol int) cellref.Range {
	return cellref.Range{Sheet: "Sheet1", StartRow: startRow, EndRow: endRow, StartCol: startCol, EndCol: endCol}
}

// fill builds a matrix for covering where every cell names its absolute
// sheet position, so slices can be verified by content.
func fill(covering cellref.Range) grid.Matrix {
	m := make(grid.Matrix, covering.Rows())
	for i := range m {
		row := make([]any, covering.Cols())
		for j := range row {
			row[j] = fmt.Sprintf("r%dc%d", covering.StartRow+i, covering.StartCol+j)
		}
		m[i] = row
	}
	return m
}

func TestSliceRead_Offsets(t *testing.T) {
	covering := rng(0, 14, 0, 3) // Sheet1!A1:D15
	fetched := fill(covering)

	member := rng(4, 14, 1, 3) // Sheet1!B5:D15
	got, err := SliceRead(covering, member, fetched)
	if err != nil {
		t.Fatalf("SliceRead: %v", err)
	}
	if got.Rows() != 11 || got.Cols() != 3 {
		t.Fatalf("got %dx%d, want 11x3", got.Rows(), got.Cols())
	}
	if got[0][0] != "r4c1" {
		t.Errorf("top-left = %v, want r4c1", got[0][0])
	}
	if got[10][2] != "r14c3" {
		t.Errorf("bottom-right = %v, want r14c3", got[10][2])
	}
}

func TestSliceRead_FullCovering(t *testing.T) {
	covering := rng(4, 4, 1, 1)
	got, err := SliceRead(covering, covering, fill(covering))
	if err != nil {
		t.Fatalf("SliceRead: %v", err)
	}
	if got.Rows() != 1 || got.Cols() != 1 || got[0][0] != "r4c1" {
		t.Errorf("got %+v", got)
	}
}

func TestSliceRead_PadsTrimmedResponse(t *testing.T) {
	covering := rng(0, 3, 0, 2)
	// Upstream trimmed trailing empty rows and cells.
	fetched := grid.Matrix{
		{"a", "b", "c"},
		{"d"},
	}

	member := rng(1, 3, 0, 2)
	got, err := SliceRead(covering, member, fetched)
	if err != nil {
		t.Fatalf("SliceRead: %v", err)
	}
	if got.Rows() != 3 || got.Cols() != 3 {
		t.Fatalf("got %dx%d, want 3x3", got.Rows(), got.Cols())
	}
	if got[0][0] != "d" {
		t.Errorf("got[0][0] = %v, want d", got[0][0])
	}
	if got[0][1] != nil || got[2][2] != nil {
		t.Errorf("trimmed cells must read as nil, got %v, %v", got[0][1], got[2][2])
	}
}

func TestSliceRead_OutOfBounds(t *testing.T) {
	covering := rng(0, 9, 0, 2)
	member := rng(4, 14, 1, 3)

	_, err := SliceRead(covering, member, fill(covering))
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(*OutOfBoundsError); !ok {
		t.Errorf("error type = %T, want *OutOfBoundsError", err)
	}
}

func TestComposeWrite_LaysOutPayloads(t *testing.T) {
	covering := rng(0, 2, 0, 2)
	base := time.Now()
	pieces := []WritePiece{
		{Range: rng(0, 0, 0, 1), Payload: grid.Matrix{{"a", "b"}}, CreatedAt: base, Seq: 1},
		{Range: rng(2, 2, 1, 2), Payload: grid.Matrix{{"c", "d"}}, CreatedAt: base.Add(time.Millisecond), Seq: 2},
	}

	got, err := ComposeWrite(covering, pieces)
	if err != nil {
		t.Fatalf("ComposeWrite: %v", err)
	}
	if got[0][0] != "a" || got[0][1] != "b" || got[2][1] != "c" || got[2][2] != "d" {
		t.Errorf("payloads misplaced: %+v", got)
	}

	// Cells outside every member's range stay untouched.
	for _, pos := range [][2]int{{0, 2}, {1, 0}, {1, 1}, {1, 2}, {2, 0}} {
		if !grid.IsUntouched(got[pos[0]][pos[1]]) {
			t.Errorf("cell %v = %v, want untouched", pos, got[pos[0]][pos[1]])
		}
	}
}

func TestComposeWrite_LaterSubmissionWins(t *testing.T) {
	covering := rng(0, 0, 0, 0)
	base := time.Now()

	// Pieces arrive out of order; the later CreatedAt must win the
	// overlapped cell regardless of slice position.
	pieces := []WritePiece{
		{Range: covering, Payload: grid.Matrix{{"later"}}, CreatedAt: base.Add(time.Millisecond), Seq: 2},
		{Range: covering, Payload: grid.Matrix{{"earlier"}}, CreatedAt: base, Seq: 1},
	}

	for i := 0; i < 5; i++ {
		got, err := ComposeWrite(covering, pieces)
		if err != nil {
			t.Fatalf("ComposeWrite: %v", err)
		}
		if got[0][0] != "later" {
			t.Fatalf("run %d: got %v, want later", i, got[0][0])
		}
	}
}

func TestComposeWrite_TieBrokenBySeq(t *testing.T) {
	covering := rng(0, 0, 0, 0)
	at := time.Now()

	pieces := []WritePiece{
		{Range: covering, Payload: grid.Matrix{{"second"}}, CreatedAt: at, Seq: 2},
		{Range: covering, Payload: grid.Matrix{{"first"}}, CreatedAt: at, Seq: 1},
	}

	got, err := ComposeWrite(covering, pieces)
	if err != nil {
		t.Fatalf("ComposeWrite: %v", err)
	}
	if got[0][0] != "second" {
		t.Errorf("got %v, want second (higher submission seq)", got[0][0])
	}
}

func TestComposeWrite_OversizedPayload(t *testing.T) {
	// The range is in bounds but the payload is taller than it declares.
	covering := rng(0, 0, 0, 0)
	pieces := []WritePiece{
		{Range: covering, Payload: grid.Matrix{{"x"}, {"y"}}},
	}

	_, err := ComposeWrite(covering, pieces)
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(*OutOfBoundsError); !ok {
		t.Errorf("error type = %T, want *OutOfBoundsError", err)
	}

	// Same for a payload wider than its range.
	pieces = []WritePiece{
		{Range: rng(0, 1, 0, 0), Payload: grid.Matrix{{"x", "y"}}},
	}
	covering = rng(0, 1, 0, 0)
	if _, err := ComposeWrite(covering, pieces); err == nil {
		t.Fatal("expected error for payload wider than its range")
	}
}

func TestComposeWrite_OutOfBounds(t *testing.T) {
	covering := rng(0, 1, 0, 1)
	pieces := []WritePiece{
		{Range: rng(0, 2, 0, 1), Payload: grid.Matrix{{"x"}, {"y"}, {"z"}}},
	}

	_, err := ComposeWrite(covering, pieces)
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(*OutOfBoundsError); !ok {
		t.Errorf("error type = %T, want *OutOfBoundsError", err)
	}
}
