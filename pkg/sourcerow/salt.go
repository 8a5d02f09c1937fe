package sourcerow

import (
	"encoding/binary"

	"github.com/certen/skipledger/pkg/hashutil"
)

// DeriveSalt computes s(n, j) = SHA256( SHA256(S || n) || j ) per §3, where
// n is the row number encoded as an 8-byte big-endian integer and j is the
// 1-based column index encoded as a 4-byte big-endian integer. Column
// indices are expected to stay well within uint32 range; a 4-byte width
// keeps the derivation stable without over-allocating for what is, in
// practice, never more than a few dozen columns.
//
// The seed S itself must never leave the process: only derived per-cell
// salts are ever serialized, and only for cells whose value is revealed
// (see pkg/saltseed for the seed's lifecycle contract).
func DeriveSalt(seed hashutil.Hash, n uint64, j int) hashutil.Hash {
	nBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(nBytes, n)
	inner := hashutil.Digest(seed[:], nBytes)

	jBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(jBytes, uint32(j))
	return hashutil.Digest(inner[:], jBytes)
}
