package stack

import (
	"errors"
	"fmt"
)

// ErrDimensionMismatch is matched by every DimensionMismatchError
var ErrDimensionMismatch = errors.New("dimension mismatch")

// DimensionMismatchError reports an array whose shape does not fit what the
// operation expects, e.g. a rank-3 array declared as TCYX, or background
// levels that are not (C) for a CYX stack.
type DimensionMismatchError struct {
	What     string
	Expected []int
	Got      []int
}

func (e *DimensionMismatchError) Error() string {
	if e.Expected == nil {
		return fmt.Sprintf("%s: got shape %v", e.What, e.Got)
	}
	return fmt.Sprintf("%s: expected shape %v, got %v", e.What, e.Expected, e.Got)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

func mismatch(what string, expected, got []int) error {
	return &DimensionMismatchError{What: what, Expected: expected, Got: got}
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
