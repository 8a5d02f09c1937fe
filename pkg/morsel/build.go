// Copyright 2025 Certen Protocol
//
// Morsel build (§4.9): assembling a pack from a ledger commitment, and
// init_with_sources (taking an already-sourced pack and producing a
// narrower, optionally redacted, derivative). Build is stateless given
// its inputs, per DESIGN NOTES §9 ("Memo-ized vs. stateless builders") —
// it never touches the writer-owned frontier, only the read paths the
// teacher's Store already exposes (Row, RowHash, Crumtrail).
package morsel

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"

	"github.com/certen/skipledger/pkg/crumtrail"
	"github.com/certen/skipledger/pkg/hashutil"
	"github.com/certen/skipledger/pkg/path"
	"github.com/certen/skipledger/pkg/rownum"
	"github.com/certen/skipledger/pkg/skiprow"
	"github.com/certen/skipledger/pkg/sourcerow"
)

// LedgerSource is the subset of ledger.Store a morsel builder needs.
// *ledger.Store satisfies this structurally; tests can supply a fake.
type LedgerSource interface {
	Row(rn uint64) (skiprow.Row, error)
	RowHash(rn uint64) (hashutil.Hash, error)
	Crumtrail(rn uint64) (crumtrail.Crumtrail, bool, error)
}

// Build assembles a morsel declaring (hiRN, H(hiRN)) and carrying the row
// set needed to prove it — state_path(hiRN) plus whatever extra targets
// the caller wants individually provable (target_path), plus a reference
// row for every pointer cell those full rows mention that isn't already
// in the set (§4.9 item 2's "must be present at least as a reference
// row" rule). Any crumtrail witnessing a row that ends up in the set is
// carried along.
func Build(src LedgerSource, hiRN uint64, extraTargets []uint64) (*Morsel, error) {
	if hiRN == 0 {
		return nil, fmt.Errorf("morsel: hi_rn must be >= 1")
	}
	rowSet, err := path.TargetPath(extraTargets, hiRN)
	if err != nil {
		return nil, fmt.Errorf("morsel: %w", err)
	}

	m := newEmpty()
	m.HiRN = hiRN
	hiHash, err := src.RowHash(hiRN)
	if err != nil {
		return nil, err
	}
	m.HiHash = hiHash
	m.BuildID = uuid.New()

	for _, rn := range rowSet {
		row, err := src.Row(rn)
		if err != nil {
			return nil, err
		}
		m.Rows[rn] = RowEntry{RN: rn, Row: &row, Hash: row.Hash()}
	}
	if err := addReferenceRows(m, src); err != nil {
		return nil, err
	}
	if err := attachTrails(m, src); err != nil {
		return nil, err
	}
	return m, nil
}

// addReferenceRows ensures every pointer row-number mentioned by a full
// row in m.Rows is present at least as a reference row, fetching its
// row-hash from src if not already known.
func addReferenceRows(m *Morsel, src LedgerSource) error {
	needed := make(map[uint64]struct{})
	for _, entry := range m.Rows {
		if !entry.IsFull() {
			continue
		}
		for _, prn := range rownum.PointerRNs(entry.RN) {
			if prn == 0 {
				continue
			}
			if _, ok := m.Rows[prn]; ok {
				continue
			}
			needed[prn] = struct{}{}
		}
	}
	for rn := range needed {
		h, err := src.RowHash(rn)
		if err != nil {
			return err
		}
		m.Rows[rn] = RowEntry{RN: rn, Hash: h}
	}
	return nil
}

// attachTrails carries forward any crumtrail witnessing a row present in
// m.Rows.
func attachTrails(m *Morsel, src LedgerSource) error {
	for rn := range m.Rows {
		trail, ok, err := src.Crumtrail(rn)
		if err != nil {
			return err
		}
		if ok {
			m.Trails[rn] = trail
		}
	}
	return nil
}

// BuildWithSources is Build plus the carried source content (columns and
// salts) for each row in sources — the rows a caller wants to be able to
// show in full, not merely prove the presence of. Each source row's
// recomputed input-hash must equal the matching full row's h_in or the
// pack would fail Verify on load; callers normally obtain sources here
// directly from the original ledger content, not from an existing pack
// (see InitWithSources for that case).
func BuildWithSources(src LedgerSource, hiRN uint64, sources map[uint64]SourceRow) (*Morsel, error) {
	targets := make([]uint64, 0, len(sources))
	for rn := range sources {
		targets = append(targets, rn)
	}
	m, err := Build(src, hiRN, targets)
	if err != nil {
		return nil, err
	}
	for rn, s := range sources {
		if _, ok := m.Rows[rn]; !ok || !m.Rows[rn].IsFull() {
			return nil, &MissingRowError{RN: rn}
		}
		gotHash, err := s.InputHash()
		if err != nil {
			return nil, err
		}
		if want := m.Rows[rn].Row.InputHash(); !gotHash.Equal(want) {
			return nil, &SourceMismatchError{RN: rn}
		}
		m.Sources[rn] = s
	}
	return m, nil
}

// AttachAsset binds asset into m by anchoring its SHA-256 to an already
// carried source column: m.Sources[assetRN].Columns[assetCol-1] must be
// a Bytes-kind value equal to SHA256(asset). That column's cell hash
// already feeds assetRN's input-hash, which Verify chains to hi_hash
// (§4.9 item 6), so attaching here does nothing Verify doesn't already
// re-derive from the committed set — callers must include assetRN among
// Build's extraTargets (or BuildWithSources' sources) beforehand so its
// full row and source content are actually present in the pack.
func (m *Morsel) AttachAsset(asset []byte, assetRN uint64, assetCol int) error {
	src, ok := m.Sources[assetRN]
	if !ok {
		return &MissingRowError{RN: assetRN}
	}
	if assetCol < 1 || assetCol > len(src.Columns) {
		return &InvalidColumnError{RN: assetRN, Col: assetCol}
	}
	h := hashutil.Digest(asset)
	anchor := src.Columns[assetCol-1]
	if anchor.Value.Kind != sourcerow.KindBytes || !bytes.Equal(anchor.Value.Bytes, h[:]) {
		return &IntegrityFailureError{Detail: "asset anchor column does not commit the asset hash"}
	}
	m.Asset = append([]byte(nil), asset...)
	m.AssetHash = h
	m.AssetRN = assetRN
	m.AssetCol = assetCol
	return nil
}

// InitWithSources copies from packIn the full rows needed to prove the
// declared state and each row in selectedRNs, redacts redactCols (keyed
// by row number) from the copied source rows, carries forward any
// crumtrail witnessing a retained row, and stamps comment as the
// resulting pack's description (§4.9 "Build").
func InitWithSources(packIn *Morsel, selectedRNs []uint64, redactCols map[uint64][]int, comment string) (*Morsel, error) {
	out, err := subMorsel(packIn, selectedRNs, func(rn uint64) []int { return redactCols[rn] })
	if err != nil {
		return nil, err
	}
	out.Meta.Description = comment
	return out, nil
}
