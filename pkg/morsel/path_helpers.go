// Copyright 2025 Certen Protocol

package morsel

import (
	"github.com/certen/skipledger/pkg/path"
	"github.com/certen/skipledger/pkg/skiprow"
)

// buildPath assembles a path.Path from m's full rows at exactly the given
// row numbers, in ascending order, failing with MissingRowError if any
// is absent or only present as a reference row.
func buildPath(m *Morsel, rns []uint64) (path.Path, error) {
	rows := make([]skiprow.Row, 0, len(rns))
	for _, rn := range rns {
		entry, ok := m.Rows[rn]
		if !ok || !entry.IsFull() {
			return path.Path{}, &MissingRowError{RN: rn}
		}
		rows = append(rows, *entry.Row)
	}
	p, err := path.New(rows)
	if err != nil {
		return path.Path{}, translatePathErr(err)
	}
	return p, nil
}

func translatePathErr(err error) error {
	switch e := err.(type) {
	case *path.HashMismatchError:
		return &HashMismatchError{RN: e.RN, Want: e.Want, Got: e.Got}
	case *path.LinkBrokenError:
		return &LinkBrokenError{From: e.From, To: e.To}
	default:
		return err
	}
}
