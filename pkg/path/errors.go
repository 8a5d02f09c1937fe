// Copyright 2025 Certen Protocol

package path

import (
	"fmt"

	"github.com/certen/skipledger/pkg/hashutil"
)

// LinkBrokenError reports that the cell in row To that should equal
// H(From) does not match the row-hash recomputed for From.
type LinkBrokenError struct {
	From uint64
	To   uint64
}

func (e *LinkBrokenError) Error() string {
	return fmt.Sprintf("path: link broken between row %d and row %d", e.From, e.To)
}

// HashMismatchError reports that a row's declared cells do not hash (per
// the row-hash rule of §4.4) to its claimed row-hash.
type HashMismatchError struct {
	RN   uint64
	Want hashutil.Hash
	Got  hashutil.Hash
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("path: row %d hash mismatch: want %s got %s", e.RN, e.Want, e.Got)
}

// OutOfOrderError reports that a path's row numbers are not strictly
// increasing.
type OutOfOrderError struct {
	At   int
	Prev uint64
	Next uint64
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("path: rows out of order at index %d: %d then %d", e.At, e.Prev, e.Next)
}

// UnknownRowError reports a requested row number not present in the path.
type UnknownRowError struct {
	RN uint64
}

func (e *UnknownRowError) Error() string {
	return fmt.Sprintf("path: row %d not present", e.RN)
}

// NotComposableError reports that two paths cannot be concatenated.
type NotComposableError struct {
	Reason string
}

func (e *NotComposableError) Error() string {
	return fmt.Sprintf("path: not composable: %s", e.Reason)
}
