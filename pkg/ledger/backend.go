// Copyright 2025 Certen Protocol
//
// Backend is the storage contract of §6: what the core defines and a
// persistence layer implements. Two conforming backends are named in
// spec.md (flat-file, relational); this repo adds a third (generic KV,
// adapting the teacher's pkg/kvdb.KVAdapter pattern) and makes all three
// pluggable via the Registry below, grounded on
// pkg/strategy/registry.go's sync.RWMutex-guarded map-of-constructors.
//
// Judgment call (see DESIGN.md): §6 names "read_row_cells/write_row_cells"
// as distinct from "read_input_hash/write_input_hash", but the flat-file
// layout it documents stores only 64 bytes per row — 32 for h_in, 32 for
// H. Row reconstruction ("fetch the k(rn) pointer hashes", §4.7) works by
// reading H at each pointer row-number, not by storing a row's full
// 1+k(n) cell array. RowRecord below is that two-field, 64-byte record;
// skiprow.Row's richer cell array is assembled one level up, in Store.Row.
package ledger

import (
	"github.com/certen/skipledger/pkg/crumtrail"
	"github.com/certen/skipledger/pkg/hashutil"
)

// RowRecord is the persisted pair for one row number: its input-hash and
// its row-hash.
type RowRecord struct {
	InputHash hashutil.Hash
	RowHash   hashutil.Hash
}

// Backend is the storage contract consumed by Store. Implementations are
// not required to be safe for concurrent writers; Store itself serializes
// writers per §5.
type Backend interface {
	// Size reports the current ledger length.
	Size() (uint64, error)

	// ReadRowCells and WriteRowCells access a row's persisted record.
	ReadRowCells(rn uint64) (RowRecord, error)
	WriteRowCells(rn uint64, rec RowRecord) error

	// ReadInputHash and WriteInputHash access just a row's input-hash,
	// named separately per §6 even though flat-file backends may
	// implement them atop the same record as ReadRowCells/WriteRowCells.
	ReadInputHash(rn uint64) (hashutil.Hash, error)
	WriteInputHash(rn uint64, h hashutil.Hash) error

	// Commit atomically appends row rn (which must equal Size()+1),
	// durably persisting rec before returning.
	Commit(rn uint64, rec RowRecord) error

	// TruncateTo destroys rows newSize+1..Size() and any crumtrails
	// indexed past newSize, becoming visible atomically.
	TruncateTo(newSize uint64) error

	// PutTrail, GetTrail and ListTrailRNs manage the witness index.
	PutTrail(rn uint64, trail crumtrail.Crumtrail) error
	GetTrail(rn uint64) (crumtrail.Crumtrail, bool, error)
	ListTrailRNs() ([]uint64, error)
}
