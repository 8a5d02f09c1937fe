package skiprow

import (
	"fmt"

	"github.com/certen/skipledger/pkg/hashutil"
)

// HashMismatchError reports that a row's declared cells did not hash (per
// the row-hash rule of §4.4) to its declared/claimed row-hash.
type HashMismatchError struct {
	RN       uint64
	Want     hashutil.Hash
	Got      hashutil.Hash
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("skiprow: row %d hash mismatch: want %s got %s", e.RN, e.Want, e.Got)
}

// LinkBrokenError reports that the pointer cell in row To that should
// equal H(From) does not.
type LinkBrokenError struct {
	From uint64
	To   uint64
}

func (e *LinkBrokenError) Error() string {
	return fmt.Sprintf("skiprow: link broken between row %d and row %d", e.From, e.To)
}
