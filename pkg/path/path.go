// Copyright 2025 Certen Protocol
//
// Path: an ordered, contiguously-linked sequence of skip-ledger rows (§4.6)
// — the compact proof artifact that ties a row-hash back to an earlier
// commitment, or ties two commitments to each other. Everything a morsel
// carries as its "row set" is, underneath, the rows a Path needs.

package path

import (
	"github.com/certen/skipledger/pkg/hashutil"
	"github.com/certen/skipledger/pkg/rownum"
	"github.com/certen/skipledger/pkg/skiprow"
)

// Path is a non-empty, strictly-increasing sequence of rows such that for
// every adjacent pair (row_i, row_{i+1}), row_i.N is one of
// row_{i+1}'s pointer row-numbers.
type Path struct {
	rows []skiprow.Row
}

// New builds a Path from rows already in ascending row-number order,
// checking the adjacency relation that makes the sequence a valid skip
// path (not merely a sorted list of rows).
func New(rows []skiprow.Row) (Path, error) {
	if len(rows) == 0 {
		return Path{}, &NotComposableError{Reason: "empty row set"}
	}
	for i := 1; i < len(rows); i++ {
		prev, next := rows[i-1], rows[i]
		if next.N <= prev.N {
			return Path{}, &OutOfOrderError{At: i, Prev: prev.N, Next: next.N}
		}
		if !rownumContains(next.PointerRNs(), prev.N) {
			return Path{}, &LinkBrokenError{From: prev.N, To: next.N}
		}
	}
	cp := make([]skiprow.Row, len(rows))
	copy(cp, rows)
	return Path{rows: cp}, nil
}

func rownumContains(rns []uint64, target uint64) bool {
	for _, rn := range rns {
		if rn == target {
			return true
		}
	}
	return false
}

// Rows returns a defensive copy of the path's rows in ascending order.
func (p Path) Rows() []skiprow.Row {
	return append([]skiprow.Row(nil), p.rows...)
}

// Len reports the number of rows in the path.
func (p Path) Len() int { return len(p.rows) }

// Head returns the first (lowest-numbered) row.
func (p Path) Head() skiprow.Row { return p.rows[0] }

// Tail returns the last (highest-numbered) row.
func (p Path) Tail() skiprow.Row { return p.rows[len(p.rows)-1] }

// HeadHash is the row-hash of the path's first row — one of its two
// proof endpoints.
func (p Path) HeadHash() hashutil.Hash { return p.Head().Hash() }

// TailHash is the row-hash of the path's last row — the other endpoint.
func (p Path) TailHash() hashutil.Hash { return p.Tail().Hash() }

// Row returns the row with the given row number, if present.
func (p Path) Row(rn uint64) (skiprow.Row, error) {
	for _, r := range p.rows {
		if r.N == rn {
			return r, nil
		}
	}
	return skiprow.Row{}, &UnknownRowError{RN: rn}
}

// Verify checks that every row's declared cells reproduce its own
// row-hash, and that every adjacent pair links correctly: the cell in
// row_{i+1} at the position corresponding to row_i.N equals
// row_hash(row_i). Returns the first failure encountered, in path order.
func (p Path) Verify() error {
	known := make(map[uint64]hashutil.Hash, len(p.rows))
	for _, r := range p.rows {
		known[r.N] = r.Hash()
	}
	for _, r := range p.rows {
		if err := r.Verify(known[r.N], known); err != nil {
			return translateSkiprowErr(err)
		}
	}
	for i := 1; i < len(p.rows); i++ {
		prev, next := p.rows[i-1], p.rows[i]
		idx := indexOf(next.PointerRNs(), prev.N)
		if idx < 0 {
			return &LinkBrokenError{From: prev.N, To: next.N}
		}
		cell, err := next.PointerHash(idx)
		if err != nil {
			return &LinkBrokenError{From: prev.N, To: next.N}
		}
		if !cell.Equal(prev.Hash()) {
			return &LinkBrokenError{From: prev.N, To: next.N}
		}
	}
	return nil
}

func indexOf(rns []uint64, target uint64) int {
	for i, rn := range rns {
		if rn == target {
			return i
		}
	}
	return -1
}

func translateSkiprowErr(err error) error {
	switch e := err.(type) {
	case *skiprow.HashMismatchError:
		return &HashMismatchError{RN: e.RN, Want: e.Want, Got: e.Got}
	case *skiprow.LinkBrokenError:
		return &LinkBrokenError{From: e.From, To: e.To}
	default:
		return err
	}
}

// Compose concatenates two paths end to end: a.Tail().N must equal
// b.Head().N and their hashes must agree (they are the same row).
func Compose(a, b Path) (Path, error) {
	if a.Tail().N != b.Head().N {
		return Path{}, &NotComposableError{Reason: "tail/head row numbers differ"}
	}
	if a.TailHash() != b.HeadHash() {
		return Path{}, &NotComposableError{Reason: "tail/head row hashes differ"}
	}
	rows := make([]skiprow.Row, 0, a.Len()+b.Len()-1)
	rows = append(rows, a.rows...)
	rows = append(rows, b.rows[1:]...)
	return New(rows)
}

// Intersect returns the smallest row number present (by row-number
// equality) in both paths, and whether one was found. Used to decide
// whether two paths (and, by extension, two morsels) can be merged.
func Intersect(a, b Path) (uint64, bool) {
	present := make(map[uint64]struct{}, b.Len())
	for _, r := range b.rows {
		present[r.N] = struct{}{}
	}
	best := uint64(0)
	found := false
	for _, r := range a.rows {
		if _, ok := present[r.N]; ok {
			if !found || r.N < best {
				best = r.N
				found = true
			}
		}
	}
	return best, found
}

// Subpath extracts the minimal contiguous sub-sequence of p whose
// endpoints are fromRN and toRN.
func (p Path) Subpath(fromRN, toRN uint64) (Path, error) {
	startIdx, endIdx := -1, -1
	for i, r := range p.rows {
		if r.N == fromRN {
			startIdx = i
		}
		if r.N == toRN {
			endIdx = i
		}
	}
	if startIdx < 0 {
		return Path{}, &UnknownRowError{RN: fromRN}
	}
	if endIdx < 0 {
		return Path{}, &UnknownRowError{RN: toRN}
	}
	if startIdx > endIdx {
		return Path{}, &OutOfOrderError{Prev: fromRN, Next: toRN}
	}
	return New(p.rows[startIdx : endIdx+1])
}

// StatePath returns the set of row-numbers whose presence proves row n
// from the ledger's genesis: skip_path_rns(1, n).
func StatePath(n uint64) ([]uint64, error) {
	return rownum.SkipPathRNs(1, n)
}

// TargetPath returns the minimal row-number set that links every row in
// targets, plus the genesis row and n, into one verifiable chain:
// stitch(targets ∪ {1, n}).
func TargetPath(targets []uint64, n uint64) ([]uint64, error) {
	all := make([]uint64, 0, len(targets)+2)
	all = append(all, 1, n)
	all = append(all, targets...)
	return rownum.Stitch(all)
}
