// Copyright 2025 Certen Protocol
//
// Sub-morsel extraction with redaction (§4.10 C10): given a morsel and a
// subset of its source rows, produce a narrower morsel proving the same
// declared state plus exactly those rows, with selected columns replaced
// by their cell hash (§4.3's "hash" kind) so the row's input-hash is
// unaffected. Shared by the standalone Redact entry point below and by
// InitWithSources in build.go, which additionally stamps a comment.
package morsel

import (
	"github.com/google/uuid"

	"github.com/certen/skipledger/pkg/path"
	"github.com/certen/skipledger/pkg/rownum"
	"github.com/certen/skipledger/pkg/sourcerow"
)

func newBuildID() uuid.UUID { return uuid.New() }

// Redact extracts a sub-morsel of m containing the full rows needed to
// prove each row in selectedRNs plus the declared state, the source rows
// for selectedRNs with every column index in redactCols replaced by its
// cell hash, and all crumtrails of m witnessing a retained row.
func Redact(m *Morsel, selectedRNs []uint64, redactCols []int) (*Morsel, error) {
	return subMorsel(m, selectedRNs, func(uint64) []int { return redactCols })
}

func subMorsel(packIn *Morsel, selectedRNs []uint64, redactCols func(rn uint64) []int) (*Morsel, error) {
	for _, rn := range selectedRNs {
		if _, ok := packIn.Sources[rn]; !ok {
			return nil, &MissingRowError{RN: rn}
		}
	}

	rowSet, err := path.TargetPath(selectedRNs, packIn.HiRN)
	if err != nil {
		return nil, err
	}

	out := newEmpty()
	out.HiRN = packIn.HiRN
	out.HiHash = packIn.HiHash
	out.Meta = packIn.Meta
	out.BuildID = newBuildID()

	for _, rn := range rowSet {
		entry, ok := packIn.Rows[rn]
		if !ok || !entry.IsFull() {
			return nil, &MissingRowError{RN: rn}
		}
		out.Rows[rn] = entry
	}
	if err := addReferenceRowsFrom(out, packIn); err != nil {
		return nil, err
	}

	for _, rn := range selectedRNs {
		src := packIn.Sources[rn]
		redacted, err := redactColumns(src, redactCols(rn))
		if err != nil {
			return nil, err
		}
		out.Sources[rn] = redacted
	}

	for rn, t := range packIn.Trails {
		if _, ok := out.Rows[rn]; ok {
			out.Trails[rn] = t
		}
	}

	// Carry the asset only if its anchor column survived unredacted and
	// its row made it into this sub-morsel's set -- otherwise the asset
	// can no longer be bound to hi_hash here, so it is dropped rather
	// than carried as an unverifiable trailing field.
	if packIn.Asset != nil {
		if s, ok := out.Sources[packIn.AssetRN]; ok &&
			packIn.AssetCol >= 1 && packIn.AssetCol <= len(s.Columns) &&
			!s.Columns[packIn.AssetCol-1].Redacted() {
			out.Asset = append([]byte(nil), packIn.Asset...)
			out.AssetHash = packIn.AssetHash
			out.AssetRN = packIn.AssetRN
			out.AssetCol = packIn.AssetCol
		}
	}

	if err := Verify(out); err != nil {
		return nil, err
	}
	return out, nil
}

// addReferenceRowsFrom mirrors addReferenceRows in build.go, but pulls
// missing pointer row-hashes from an existing pack (packIn) rather than
// a live ledger, since a sub-morsel is derived purely from another
// morsel's already-committed content.
func addReferenceRowsFrom(out *Morsel, packIn *Morsel) error {
	needed := make(map[uint64]struct{})
	for _, entry := range out.Rows {
		if !entry.IsFull() {
			continue
		}
		for _, prn := range rownum.PointerRNs(entry.RN) {
			if prn == 0 {
				continue
			}
			if _, ok := out.Rows[prn]; ok {
				continue
			}
			needed[prn] = struct{}{}
		}
	}
	for rn := range needed {
		entry, ok := packIn.Rows[rn]
		if !ok {
			return &MissingRowError{RN: rn}
		}
		out.Rows[rn] = entry
	}
	return nil
}

// redactColumns replaces each column index in cols (1-based, per §4.3)
// with its cell hash, clearing its salt, and leaves every other column
// untouched.
func redactColumns(src SourceRow, cols []int) (SourceRow, error) {
	toRedact := make(map[int]struct{}, len(cols))
	for _, c := range cols {
		toRedact[c] = struct{}{}
	}
	out := SourceRow{RN: src.RN, Columns: make([]SourceColumn, len(src.Columns))}
	for i, col := range src.Columns {
		if _, redact := toRedact[i+1]; !redact || col.Redacted() {
			out.Columns[i] = col
			continue
		}
		cellHash, err := sourcerow.CellHash(col.Salt, col.Value)
		if err != nil {
			return SourceRow{}, &InvalidColumnError{RN: src.RN, Col: i + 1}
		}
		out.Columns[i] = SourceColumn{Value: sourcerow.RedactedHash(cellHash)}
	}
	return out, nil
}
