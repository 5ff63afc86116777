package coalesce

import (
	"sync"
	"time"

	"cellmux/internal/cellref"
	"cellmux/internal/grid"
)

// Kind distinguishes read and write requests. Reads and writes are never
// merged into one upstream call, even when their ranges overlap.
type Kind int

const (
	KindRead Kind = iota
	KindWrite
)

func (k Kind) String() string {
	if k == KindWrite {
		return "write"
	}
	return "read"
}

// Result is what a caller's future resolves to: the fetched sub-matrix
// for a read, a nil-error acknowledgment for a write, or the error an
// unmerged direct call would have produced.
type Result struct {
	Values grid.Matrix
	Err    error
}

// Future resolves exactly once, after the request's window has executed.
type Future <-chan Result

// Request is one caller's in-flight operation. It is owned by the
// coalescer from submission to resolution.
type Request struct {
	ID        uint64
	SheetID   string
	Range     cellref.Range
	Kind      Kind
	Payload   grid.Matrix
	CreatedAt time.Time
	Seq       uint64

	done chan Result
	once sync.Once
}

// resolve fills the result slot. The window pipeline resolves each
// request exactly once; the once guard keeps a pipeline bug from ever
// double-sending.
func (r *Request) resolve(res Result) {
	r.once.Do(func() {
		r.done <- res
	})
}

// window accumulates one sheet's requests between open and close. Its
// fields are guarded by the coalescer's mutex; the coalescer is the
// single serialization point for window state.
type window struct {
	requests []*Request
	timer    *time.Timer
	openedAt time.Time
}
