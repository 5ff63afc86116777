package merge

import (
	"reflect"
	"testing"

	"cellmux/internal/cellref"
)

func rng(startRow, endRow, startCol, endCol int) cellref.Range {
	return cellref.Range{Sheet: "Sheet1", StartRow: startRow, EndRow: endRow, StartCol: startCol, EndCol: endCol}
}

func TestMerge_OverlappingCluster(t *testing.T) {
	// Sheet1!A1:C10, Sheet1!B5:D15, Sheet1!A1:A10
	ranges := []cellref.Range{
		rng(0, 9, 0, 2),
		rng(4, 14, 1, 3),
		rng(0, 9, 0, 0),
	}

	e := &Engine{}
	units, err := e.Merge(ranges)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("got %d units, want 1", len(units))
	}

	// Covering box is Sheet1!A1:D15.
	want := rng(0, 14, 0, 3)
	if units[0].Covering != want {
		t.Errorf("covering = %s, want %s", units[0].Covering, want)
	}
	if len(units[0].Members) != 3 {
		t.Errorf("members = %v, want all three", units[0].Members)
	}
}

func TestMerge_SingleRange(t *testing.T) {
	r := rng(98, 98, 25, 25)

	e := &Engine{}
	units, err := e.Merge([]cellref.Range{r})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(units) != 1 || units[0].Covering != r {
		t.Fatalf("single range must map to one unit of itself, got %+v", units)
	}
}

func TestMerge_IdenticalRangesCollapse(t *testing.T) {
	r := rng(0, 9, 0, 2)

	e := &Engine{}
	units, err := e.Merge([]cellref.Range{r, r, r})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("got %d units, want 1", len(units))
	}
	if units[0].Covering != r {
		t.Errorf("covering = %s, want %s (no expansion)", units[0].Covering, r)
	}
}

func TestMerge_DisjointRangesStaySeparate(t *testing.T) {
	ranges := []cellref.Range{
		rng(0, 0, 0, 0),
		rng(98, 98, 25, 25),
	}

	e := &Engine{}
	units, err := e.Merge(ranges)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("got %d units, want 2", len(units))
	}
}

func TestMerge_ChainedAdjacencyReachesFixedPoint(t *testing.T) {
	// C3:C3 only becomes adjacent after A1:A1 has absorbed B2:B2.
	// The diagonal chain merges, but its 3x3 box covers 9 cells for 3
	// requested, so the cost guard splits it back apart.
	ranges := []cellref.Range{
		rng(0, 0, 0, 0),
		rng(1, 1, 1, 1),
		rng(2, 2, 2, 2),
	}

	e := &Engine{WasteFactor: 2}
	units, err := e.Merge(ranges)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(units) != 3 {
		t.Fatalf("cost guard should split the chain: got %d units", len(units))
	}
	for i, u := range units {
		if len(u.Members) != 1 {
			t.Errorf("unit %d: members = %v, want one", i, u.Members)
		}
	}

	// With a looser guard the same chain merges into one call.
	e = &Engine{WasteFactor: 3}
	units, err = e.Merge(ranges)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("got %d units, want 1", len(units))
	}
	if want := rng(0, 2, 0, 2); units[0].Covering != want {
		t.Errorf("covering = %s, want %s", units[0].Covering, want)
	}
}

func TestMerge_WasteGuardBound(t *testing.T) {
	e := &Engine{WasteFactor: 2}
	ranges := []cellref.Range{
		rng(0, 9, 0, 0),
		rng(0, 0, 0, 9),
		rng(5, 5, 5, 5),
		rng(0, 9, 9, 9),
		rng(20, 29, 0, 1),
		rng(20, 29, 2, 3),
	}

	units, err := e.Merge(ranges)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	for _, u := range units {
		var sum int64
		for _, m := range u.Members {
			sum += ranges[m].Area()
		}
		if float64(u.Covering.Area()) > 2*float64(sum) {
			t.Errorf("unit %s wastes too much: area %d, member sum %d", u.Covering, u.Covering.Area(), sum)
		}
	}
}

func TestMerge_CoversEveryInput(t *testing.T) {
	ranges := []cellref.Range{
		rng(0, 9, 0, 2),
		rng(4, 14, 1, 3),
		rng(0, 9, 0, 0),
		rng(50, 51, 0, 1),
		rng(98, 98, 25, 25),
	}

	e := &Engine{}
	units, err := e.Merge(ranges)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	seen := make(map[int]int)
	for _, u := range units {
		for _, m := range u.Members {
			seen[m]++
			if !u.Covering.Contains(ranges[m]) {
				t.Errorf("member %s not covered by %s", ranges[m], u.Covering)
			}
		}
	}
	for i := range ranges {
		if seen[i] != 1 {
			t.Errorf("input %d appears in %d units, want exactly 1", i, seen[i])
		}
	}
}

func TestMerge_Deterministic(t *testing.T) {
	ranges := []cellref.Range{
		rng(4, 14, 1, 3),
		rng(0, 9, 0, 2),
		rng(50, 51, 0, 1),
		rng(0, 9, 0, 0),
	}

	e := &Engine{}
	first, err := e.Merge(ranges)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := e.Merge(ranges)
		if err != nil {
			t.Fatalf("Merge: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %+v vs %+v", i, first, again)
		}
	}
}

func TestMerge_DifferentSheetsNeverCluster(t *testing.T) {
	ranges := []cellref.Range{
		{Sheet: "One", StartRow: 0, EndRow: 9, StartCol: 0, EndCol: 2},
		{Sheet: "Two", StartRow: 0, EndRow: 9, StartCol: 0, EndCol: 2},
	}

	e := &Engine{}
	units, err := e.Merge(ranges)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("got %d units, want 2", len(units))
	}
	for _, u := range units {
		if len(u.Members) != 1 {
			t.Errorf("cross-sheet ranges merged: %+v", u)
		}
	}
}

func TestMerge_Empty(t *testing.T) {
	e := &Engine{}
	units, err := e.Merge(nil)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if units != nil {
		t.Errorf("got %+v, want nil", units)
	}
}
