// Copyright 2025 Certen Protocol
//
// Hash frontier: the minimal per-append hash state (§4.5) that lets a
// writer compute the next row's hash in O(1) amortized work, and the
// full chain's hash in O(log n) worst case, without re-deriving every
// prior row. This is the state a LedgerStore keeps hot across Append
// calls (see pkg/ledger); it is not itself persisted row-by-row.

package frontier

import (
	"github.com/certen/skipledger/pkg/hashutil"
	"github.com/certen/skipledger/pkg/rownum"
)

// Frontier is F(n): a vector of per-level row-hashes with
// levelHashes[i] == H(level_rn(n, i)) for i < len(levelHashes). Beyond
// that length, level_rn(n, i) is always 0 by construction (n rounded down
// to a multiple of 2^i is 0 once 2^i > n), so querying such a level yields the zero
// sentinel without needing to store it.
type Frontier struct {
	rn          uint64
	levelHashes []hashutil.Hash
}

// New returns the empty frontier F(0): an empty ledger.
func New() *Frontier {
	return &Frontier{}
}

// RN returns the row number this frontier currently summarizes.
func (f *Frontier) RN() uint64 {
	return f.rn
}

// LevelHash returns F(n)[i]. Levels beyond the stored vector are always
// the zero sentinel (see the Frontier doc comment), so this never fails
// for i >= 0.
func (f *Frontier) LevelHash(i int) hashutil.Hash {
	if i < 0 || i >= len(f.levelHashes) {
		return hashutil.Zero
	}
	return f.levelHashes[i]
}

// Levels returns a defensive copy of the frontier's stored level-hash
// vector (length bitLength(rn); see the Frontier doc comment for what
// lies beyond it).
func (f *Frontier) Levels() []hashutil.Hash {
	return append([]hashutil.Hash(nil), f.levelHashes...)
}

// RowHash returns H(f.RN()): the row-hash the frontier currently
// represents.
func (f *Frontier) RowHash() hashutil.Hash {
	return f.LevelHash(0)
}

// Advance computes F(rn+1) from F(rn) and the input-hash of row rn+1,
// returning the new row's hash and row number, and mutating the frontier
// in place to F(rn+1).
//
// Per §4.5: the pointer row-hashes needed for row rn+1 are exactly
// F(rn)[0 .. k), where k = skip_count(rn+1) — this identity
// (pointer_rns(n)[i] == level_rn(n-1, i) for i < skip_count(n)) is the
// entire payoff of keeping a level representation instead of full row
// history.
func (f *Frontier) Advance(inputHash hashutil.Hash) (rowHash hashutil.Hash, newRN uint64) {
	newRN = f.rn + 1
	k := rownum.SkipCount(newRN)

	cells := make([]hashutil.Hash, 0, 1+k)
	cells = append(cells, inputHash)
	for i := 0; i < k; i++ {
		cells = append(cells, f.LevelHash(i))
	}
	rowHash = hashutil.Digest(hashFlatten(cells)...)

	f.rollUp(newRN, rowHash)
	f.rn = newRN
	return rowHash, newRN
}

// hashFlatten converts a slice of hashutil.Hash into the []byte parts
// hashutil.Digest expects.
func hashFlatten(hs []hashutil.Hash) [][]byte {
	out := make([][]byte, len(hs))
	for i, h := range hs {
		local := h
		out[i] = local[:]
	}
	return out
}

// rollUp updates the level vector to F(newRN) given the freshly computed
// H(newRN). Level 0 always becomes the new row hash (level_rn(n, 0) == n
// always); level i+1 becomes the new row hash too whenever newRN is a
// multiple of 2^(i+1) — i.e. the new row is itself that level's
// representative — and the roll-up stops at the first level where it
// isn't, leaving the remainder of the vector (representing older, still
// current, level representatives) untouched.
func (f *Frontier) rollUp(newRN uint64, rowHash hashutil.Hash) {
	needed := bitLength(newRN)
	if len(f.levelHashes) < needed {
		grown := make([]hashutil.Hash, needed)
		copy(grown, f.levelHashes)
		f.levelHashes = grown
	}
	if len(f.levelHashes) > 0 {
		f.levelHashes[0] = rowHash
	}
	for i := 0; ; i++ {
		step := uint64(1) << uint(i+1)
		if newRN%step != 0 {
			break
		}
		if i+1 >= len(f.levelHashes) {
			break
		}
		f.levelHashes[i+1] = rowHash
	}
}

func bitLength(n uint64) int {
	bits := 0
	for n > 0 {
		bits++
		n >>= 1
	}
	return bits
}
