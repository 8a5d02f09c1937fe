// Copyright 2025 Certen Protocol
//
// Skip-ledger row: the hash-cell layout and row-hash derivation of §4.4.
// A Row is the unit everything downstream (frontier, path, morsel) is
// built from: an input-hash cell followed by one pointer-row-hash cell
// per entry in rownum.PointerRNs(n).

package skiprow

import (
	"fmt"

	"github.com/certen/skipledger/pkg/hashutil"
	"github.com/certen/skipledger/pkg/rownum"
)

// Row is a single skip-ledger row: its row number and its 1+k(n) hash
// cells (cells[0] = input-hash, cells[1:] = pointer row-hashes in
// PointerRNs(n) order).
type Row struct {
	N     uint64
	Cells []hashutil.Hash
}

// New builds a Row from an input-hash and the row-hashes of its pointer
// rows (in rownum.PointerRNs(n) order). It does not verify the pointer
// hashes are actually correct for those row numbers — that is the job of
// a Path, which has the adjacent context to check it.
func New(n uint64, inputHash hashutil.Hash, pointerHashes []hashutil.Hash) (Row, error) {
	if n == 0 {
		return RowZero(), nil
	}
	want := rownum.SkipCount(n)
	if len(pointerHashes) != want {
		return Row{}, fmt.Errorf("skiprow: row %d needs %d pointer hashes, got %d", n, want, len(pointerHashes))
	}
	cells := make([]hashutil.Hash, 0, 1+want)
	cells = append(cells, inputHash)
	cells = append(cells, pointerHashes...)
	return Row{N: n, Cells: cells}, nil
}

// RowZero returns the sentinel row 0, whose hash is the all-zero value by
// definition; it carries no real cells.
func RowZero() Row {
	return Row{N: 0, Cells: nil}
}

// InputHash returns cells[0], or the zero hash for row 0.
func (r Row) InputHash() hashutil.Hash {
	if r.N == 0 {
		return hashutil.Zero
	}
	return r.Cells[0]
}

// PointerHash returns the pointer-row-hash cell at PointerRNs(n)[i].
func (r Row) PointerHash(i int) (hashutil.Hash, error) {
	if r.N == 0 {
		return hashutil.Hash{}, fmt.Errorf("skiprow: row 0 has no pointer cells")
	}
	idx := 1 + i
	if idx >= len(r.Cells) {
		return hashutil.Hash{}, fmt.Errorf("skiprow: row %d has no pointer cell %d", r.N, i)
	}
	return r.Cells[idx], nil
}

// Hash computes H(n): the all-zero sentinel for row 0, otherwise
// SHA256(concat(cells)).
func (r Row) Hash() hashutil.Hash {
	if r.N == 0 {
		return hashutil.Zero
	}
	parts := make([][]byte, len(r.Cells))
	for i, c := range r.Cells {
		cell := c
		parts[i] = cell[:]
	}
	return hashutil.Digest(parts...)
}

// Equal reports whether two rows have the same row number and the same
// row-hash — the only notion of row equality the spec defines (§4.4:
// "row equality by hash").
func (r Row) Equal(other Row) bool {
	return r.N == other.N && r.Hash().Equal(other.Hash())
}

// PointerRNs returns the row numbers this row's pointer cells refer to, in
// cell order.
func (r Row) PointerRNs() []uint64 {
	if r.N == 0 {
		return nil
	}
	return rownum.PointerRNs(r.N)
}

// Verify recomputes row_hash(r) and checks it against each known pointer
// row-hash in knownHashes (row-number -> H(row-number)); it returns a
// *skiprow.LinkBrokenError naming the first mismatching pointer, or a
// *skiprow.HashMismatchError if the row's own cells don't reproduce its
// claimed hash. knownHashes need not contain every pointer; absent entries
// are skipped (the caller may only have partial context).
func (r Row) Verify(claimedHash hashutil.Hash, knownHashes map[uint64]hashutil.Hash) error {
	if got := r.Hash(); !got.Equal(claimedHash) {
		return &HashMismatchError{RN: r.N, Want: claimedHash, Got: got}
	}
	if r.N == 0 {
		return nil
	}
	for i, prn := range r.PointerRNs() {
		known, ok := knownHashes[prn]
		if !ok {
			continue
		}
		cell, err := r.PointerHash(i)
		if err != nil {
			return err
		}
		if !cell.Equal(known) {
			return &LinkBrokenError{From: prn, To: r.N}
		}
	}
	return nil
}
