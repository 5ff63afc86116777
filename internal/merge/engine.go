// Package merge clusters overlapping and adjacent ranges into a minimal
// covering set, so one upstream call can serve many original requests.
package merge

import (
	"math"
	"sort"

	"cellmux/internal/cellref"
)

// Unit is one merged upstream call: the covering range plus the indices
// (into the engine's input slice) of the member ranges it serves. The
// covering range is the minimal bounding box of the members.
type Unit struct {
	Covering cellref.Range
	Members  []int
}

// Engine merges a group of ranges from one sheet. The zero value merges
// only directly touching ranges and never tolerates a covering box more
// than twice the member area.
type Engine struct {
	// Adjacency is the maximum gap, in cells, between a cluster's
	// bounding box and a range for the range to still be absorbed.
	Adjacency int

	// WasteFactor caps how much larger a covering box may be than the
	// sum of its member areas. A cluster exceeding the cap is split back
	// into single-member units. Values below 1 fall back to the default.
	WasteFactor float64
}

// DefaultWasteFactor is the cost-guard cap applied when the engine's
// WasteFactor is unset.
const DefaultWasteFactor = 2.0

// Merge clusters the given ranges, which must all belong to one sheet.
// The output is deterministic for identical input: clusters grow in
// (StartRow, StartCol) order and units are emitted in the order their
// first member was reached. Every input index appears in exactly one
// unit, and every unit's covering range contains all its members.
func (e *Engine) Merge(ranges []cellref.Range) ([]Unit, error) {
	if len(ranges) == 0 {
		return nil, nil
	}

	waste := e.WasteFactor
	if waste < 1 {
		waste = DefaultWasteFactor
	}

	order := make([]int, len(ranges))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := ranges[order[a]], ranges[order[b]]
		if ra.StartRow != rb.StartRow {
			return ra.StartRow < rb.StartRow
		}
		if ra.StartCol != rb.StartCol {
			return ra.StartCol < rb.StartCol
		}
		return order[a] < order[b]
	})

	assigned := make([]bool, len(ranges))
	units := make([]Unit, 0, len(ranges))

	for _, seed := range order {
		if assigned[seed] {
			continue
		}
		assigned[seed] = true
		members := []int{seed}
		box := ranges[seed]

		// Absorb to a fixed point: growing the box can pull ranges
		// into adjacency that did not qualify on earlier passes.
		for changed := true; changed; {
			changed = false
			for _, j := range order {
				if assigned[j] {
					continue
				}
				if !ranges[j].Overlaps(box) && !ranges[j].Adjacent(box, e.Adjacency) {
					continue
				}
				grown, err := box.BoundingBox(ranges[j])
				if err != nil {
					return nil, err
				}
				box = grown
				assigned[j] = true
				members = append(members, j)
				changed = true
			}
		}

		if len(members) > 1 && tooWasteful(box, ranges, members, waste) {
			for _, m := range members {
				units = append(units, Unit{Covering: ranges[m], Members: []int{m}})
			}
			continue
		}
		units = append(units, Unit{Covering: box, Members: members})
	}

	return units, nil
}

// tooWasteful reports whether the covering box would fetch or write more
// than waste times the cells the members actually asked for.
func tooWasteful(box cellref.Range, ranges []cellref.Range, members []int, waste float64) bool {
	var sum int64
	for _, m := range members {
		a := ranges[m].Area()
		if sum > math.MaxInt64-a {
			sum = math.MaxInt64
			break
		}
		sum += a
	}
	return float64(box.Area()) > waste*float64(sum)
}
