// Copyright 2025 Certen Protocol
//
// Verify on load (§4.9): recompute every full row's row-hash, verify
// linkage along the declared state's skip path, verify every source
// row's input-hash against its matching full row, verify every
// crumtrail's hashed value against its indexed row, and verify the
// declared (hi_rn, hi_hash) is the row-hash of row hi_rn. First failure
// aborts with the corresponding error kind, mirroring the fail-fast,
// first-conflict-row-number reporting of pkg/ledger.Store.CheckIntegrity.
package morsel

import (
	"bytes"

	"github.com/certen/skipledger/pkg/hashutil"
	"github.com/certen/skipledger/pkg/path"
	"github.com/certen/skipledger/pkg/rownum"
	"github.com/certen/skipledger/pkg/sourcerow"
)

// Verify checks m's internal consistency per §4.9. It mutates nothing.
func Verify(m *Morsel) error {
	known := make(map[uint64]hashutil.Hash, len(m.Rows))
	for rn, e := range m.Rows {
		known[rn] = e.Hash
	}
	known[0] = hashutil.Zero

	// Recompute every full row's own hash and cross-check its pointer
	// cells against any other row present in the set.
	for rn, e := range m.Rows {
		if !e.IsFull() {
			continue
		}
		if got := e.Row.Hash(); !got.Equal(e.Hash) {
			return &HashMismatchError{RN: rn, Want: e.Hash, Got: got}
		}
		for i, prn := range rownum.PointerRNs(rn) {
			want, ok := known[prn]
			if !ok {
				continue
			}
			cell, err := e.Row.PointerHash(i)
			if err != nil {
				return err
			}
			if !cell.Equal(want) {
				return &LinkBrokenError{From: prn, To: rn}
			}
		}
	}

	// Walk the declared state's skip path end to end, extended to the
	// asset's anchor row (if any) so that row's presence on the chain
	// reaching hi_hash is itself verified, not merely asserted.
	var targets []uint64
	if m.Asset != nil {
		targets = append(targets, m.AssetRN)
	}
	stateRNs, err := path.TargetPath(targets, m.HiRN)
	if err != nil {
		return err
	}
	p, err := buildPath(m, stateRNs)
	if err != nil {
		return err
	}
	if err := p.Verify(); err != nil {
		return translatePathErr(err)
	}
	if !p.TailHash().Equal(m.HiHash) {
		return &HashMismatchError{RN: m.HiRN, Want: m.HiHash, Got: p.TailHash()}
	}

	// Source rows.
	for rn, s := range m.Sources {
		entry, ok := m.Rows[rn]
		if !ok || !entry.IsFull() {
			return &MissingRowError{RN: rn}
		}
		gotHash, err := s.InputHash()
		if err != nil {
			return err
		}
		if !gotHash.Equal(entry.Row.InputHash()) {
			return &SourceMismatchError{RN: rn}
		}
	}

	// Crumtrails.
	for rn, trail := range m.Trails {
		rowHash, ok := known[rn]
		if !ok {
			return &MissingRowError{RN: rn}
		}
		if !trail.Witnesses(rowHash) {
			return &HashMismatchError{RN: rn, Want: rowHash, Got: trail.HashedValue}
		}
		if err := trail.Verify(); err != nil {
			return err
		}
	}

	// Asset: bound into the committed set via the Sources loop above,
	// which already confirmed m.Sources[m.AssetRN]'s input-hash matches
	// its full row's h_in, which the path walk above chained to hi_hash.
	// What remains is confirming the asset itself hashes to AssetHash and
	// that AssetHash is the literal value of the designated anchor
	// column, so a swap of either the bytes or the hash alone is caught.
	if m.Asset != nil {
		if got := hashutil.Digest(m.Asset); !got.Equal(m.AssetHash) {
			return &IntegrityFailureError{Detail: "asset hash does not match packaged asset bytes"}
		}
		src, ok := m.Sources[m.AssetRN]
		if !ok {
			return &MissingRowError{RN: m.AssetRN}
		}
		if m.AssetCol < 1 || m.AssetCol > len(src.Columns) {
			return &InvalidColumnError{RN: m.AssetRN, Col: m.AssetCol}
		}
		anchor := src.Columns[m.AssetCol-1]
		if anchor.Value.Kind != sourcerow.KindBytes || !bytes.Equal(anchor.Value.Bytes, m.AssetHash[:]) {
			return &IntegrityFailureError{Detail: "asset hash is not anchored in the committed row set"}
		}
	}
	return nil
}
