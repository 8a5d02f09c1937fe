// Copyright 2025 Certen Protocol
//
// Sentinel error kinds the core surfaces (§7 of spec.md), in the same
// explicit-error-over-nil-nil style as the teacher's
// pkg/ledger/errors.go ("F.4 remediation").

package ledger

import (
	"errors"
	"fmt"

	"github.com/certen/skipledger/pkg/hashutil"
)

// ErrCancelled is returned when a caller-supplied cancellation signal
// fires mid-operation (§5 "Cancellation / timeouts").
var ErrCancelled = errors.New("ledger: operation cancelled")

// HashConflictError reports that a recomputed row-hash differs from the
// one stored or expected at rn.
type HashConflictError struct {
	RN   uint64
	Want hashutil.Hash
	Got  hashutil.Hash
}

func (e *HashConflictError) Error() string {
	return fmt.Sprintf("ledger: hash conflict at row %d: want %s got %s", e.RN, e.Want, e.Got)
}

// LinkBrokenError reports that the pointer cell for rnFrom inside rnTo's
// row does not match the row-hash stored for rnFrom.
type LinkBrokenError struct {
	From uint64
	To   uint64
}

func (e *LinkBrokenError) Error() string {
	return fmt.Sprintf("ledger: link broken between row %d and row %d", e.From, e.To)
}

// OffsetConflictError reports a backend I/O indexing disagreement: the
// backend's notion of where a row lives does not match what the store
// expected.
type OffsetConflictError struct {
	RN       uint64
	Expected uint64
	Actual   uint64
}

func (e *OffsetConflictError) Error() string {
	return fmt.Sprintf("ledger: offset conflict at row %d: expected %d got %d", e.RN, e.Expected, e.Actual)
}

// SourceMismatchError reports that a source row's recomputed input-hash
// disagrees with the stored h_in for that row.
type SourceMismatchError struct {
	RN  uint64
	Col int
}

func (e *SourceMismatchError) Error() string {
	return fmt.Sprintf("ledger: source mismatch at row %d column %d", e.RN, e.Col)
}

// MissingRowError reports that a needed row is not present in the
// backend (or, in the morsel package, in a loaded pack).
type MissingRowError struct {
	RN uint64
}

func (e *MissingRowError) Error() string {
	return fmt.Sprintf("ledger: row %d not present", e.RN)
}

// InvalidFormatError reports a malformed persisted artifact: bad magic, a
// truncated section, or an unrecognized version.
type InvalidFormatError struct {
	Section string
	Detail  string
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("ledger: invalid format in section %q: %s", e.Section, e.Detail)
}

// IntegrityFailureError is a generic hash-verification failure not
// covered by the more specific kinds above.
type IntegrityFailureError struct {
	Detail string
}

func (e *IntegrityFailureError) Error() string {
	return fmt.Sprintf("ledger: integrity failure: %s", e.Detail)
}

// NotMergeableError reports that a morsel merge could not proceed:
// different ledgers, or insufficient linkage between them.
type NotMergeableError struct {
	Reason string
}

func (e *NotMergeableError) Error() string {
	return fmt.Sprintf("ledger: not mergeable: %s", e.Reason)
}
