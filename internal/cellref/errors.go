package cellref

import "fmt"

// MalformedRangeError is returned when a range address does not match the
// A1-notation grammar. It is rejected at the submission boundary and never
// enters a batching window.
type MalformedRangeError struct {
	Input  string
	Reason string
}

func (e *MalformedRangeError) Error() string {
	return fmt.Sprintf("malformed range %q: %s", e.Input, e.Reason)
}

// CrossSheetError indicates an attempt to combine ranges from different
// sheets. The merge engine never produces such a combination; seeing this
// error means an internal invariant was violated.
type CrossSheetError struct {
	A string
	B string
}

func (e *CrossSheetError) Error() string {
	return fmt.Sprintf("cannot combine ranges across sheets %q and %q", e.A, e.B)
}
