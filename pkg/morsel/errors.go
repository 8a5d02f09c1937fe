// Copyright 2025 Certen Protocol

package morsel

import (
	"fmt"

	"github.com/certen/skipledger/pkg/hashutil"
)

// HashMismatchError reports that a full row's declared cells did not
// hash to its own claimed row-hash.
type HashMismatchError struct {
	RN   uint64
	Want hashutil.Hash
	Got  hashutil.Hash
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("morsel: row %d hash mismatch: want %s got %s", e.RN, e.Want, e.Got)
}

// LinkBrokenError reports that a row's pointer cell for rnFrom does not
// match the row-hash known elsewhere in the pack for rnFrom.
type LinkBrokenError struct {
	From uint64
	To   uint64
}

func (e *LinkBrokenError) Error() string {
	return fmt.Sprintf("morsel: link broken between row %d and row %d", e.From, e.To)
}

// MissingRowError reports that a row needed to prove the declared state
// (or a selected source row) is not present in the pack.
type MissingRowError struct {
	RN uint64
}

func (e *MissingRowError) Error() string {
	return fmt.Sprintf("morsel: row %d not present", e.RN)
}

// SourceMismatchError reports that a carried source row's recomputed
// input-hash disagrees with the h_in declared by its matching full row.
type SourceMismatchError struct {
	RN uint64
}

func (e *SourceMismatchError) Error() string {
	return fmt.Sprintf("morsel: source row %d input-hash mismatch", e.RN)
}

// InvalidColumnError reports that a carried column's cell hash could not
// be recomputed from its salt and value.
type InvalidColumnError struct {
	RN  uint64
	Col int
}

func (e *InvalidColumnError) Error() string {
	return fmt.Sprintf("morsel: row %d column %d: invalid column", e.RN, e.Col)
}

// InvalidFormatError reports a malformed .mrsl artifact: bad magic, a
// truncated section, or an unrecognized version.
type InvalidFormatError struct {
	Section string
	Detail  string
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("morsel: invalid format in section %q: %s", e.Section, e.Detail)
}

// IntegrityFailureError is a generic hash-verification failure not
// covered by the more specific kinds above (e.g. asset hash mismatch).
type IntegrityFailureError struct {
	Detail string
}

func (e *IntegrityFailureError) Error() string {
	return fmt.Sprintf("morsel: integrity failure: %s", e.Detail)
}

// HashConflictError reports that two morsels being merged declare
// different row-hashes for the same row number — they come from
// different ledgers.
type HashConflictError struct {
	RN uint64
}

func (e *HashConflictError) Error() string {
	return fmt.Sprintf("morsel: hash conflict at row %d", e.RN)
}

// NoCommonAncestorError reports that a set of morsels share no row
// number at all, so they cannot be merged.
type NoCommonAncestorError struct{}

func (e *NoCommonAncestorError) Error() string {
	return "morsel: no common ancestor row between inputs"
}

// NotMergeableError reports any other reason a merge could not proceed.
type NotMergeableError struct {
	Reason string
}

func (e *NotMergeableError) Error() string {
	return fmt.Sprintf("morsel: not mergeable: %s", e.Reason)
}
