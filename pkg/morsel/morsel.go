// Copyright 2025 Certen Protocol
//
// Morsel: the self-contained, tamper-evident binary package of §4.9/§4.10
// — a declared commitment (hi_rn, hi_hash), the row set needed to verify
// it, optional source content (with cell-level redaction), witness
// records, and optional meta/asset payload. Grounded on the teacher's
// proof-bundle shape in pkg/proof/artifact_service.go (a versioned,
// self-describing artifact carrying a Merkle root plus its supporting
// evidence) and the TLV-style fixed-width header/record layout of
// pkg/ledger/flatfile's frontiers/eor files.
package morsel

import (
	"github.com/google/uuid"

	"github.com/certen/skipledger/pkg/crumtrail"
	"github.com/certen/skipledger/pkg/hashutil"
	"github.com/certen/skipledger/pkg/skiprow"
	"github.com/certen/skipledger/pkg/sourcerow"
)

// RowEntry is one row-set member: either a full row (all hash cells, so
// its own row-hash and its pointer cells can be recomputed and
// cross-checked) or a reference row (just its row-hash, when it is only
// needed so that a full row elsewhere in the set can have its pointer
// cell cross-checked against a known value).
type RowEntry struct {
	RN   uint64
	Row  *skiprow.Row // nil for a reference-only row
	Hash hashutil.Hash
}

// IsFull reports whether this entry carries the row's full cells.
func (e RowEntry) IsFull() bool { return e.Row != nil }

// SourceColumn is one column of a carried source row: its value (which,
// for a redacted cell, is the KindHash stand-in of §4.3) and the salt
// used to derive its cell hash — absent (zero) for a redacted cell.
type SourceColumn struct {
	Value sourcerow.Value
	Salt  hashutil.Hash
}

// Redacted reports whether this column has been replaced by its cell
// hash (§4.3: a "hash" kind value substituted for the original).
func (c SourceColumn) Redacted() bool { return c.Value.Kind == sourcerow.KindHash }

// SourceRow is the carried source content for one row number: its
// columns, each either a live (salted) value or a redacted hash stand-in.
type SourceRow struct {
	RN      uint64
	Columns []SourceColumn
}

// CellHashes recomputes each column's cell hash (live cells are hashed
// with their carried salt; redacted cells are their own literal hash).
func (s SourceRow) CellHashes() ([]hashutil.Hash, error) {
	out := make([]hashutil.Hash, len(s.Columns))
	for i, col := range s.Columns {
		h, err := sourcerow.CellHash(col.Salt, col.Value)
		if err != nil {
			return nil, &InvalidColumnError{RN: s.RN, Col: i + 1}
		}
		out[i] = h
	}
	return out, nil
}

// InputHash recomputes h_in(RN) from the carried columns.
func (s SourceRow) InputHash() (hashutil.Hash, error) {
	cells, err := s.CellHashes()
	if err != nil {
		return hashutil.Hash{}, err
	}
	return sourcerow.InputHashFromCellHashes(cells)
}

// ColumnMeta names a single column for display purposes; purely
// descriptive, never hashed or verified.
type ColumnMeta struct {
	Name string
}

// Meta is the optional, uninterpreted descriptive payload of §4.9 item 5.
type Meta struct {
	Name        string
	Description string
	DateFormat  string
	Columns     []ColumnMeta
}

// Morsel is the parsed, in-memory form of a .mrsl package.
type Morsel struct {
	HiRN    uint64
	HiHash  hashutil.Hash
	Rows    map[uint64]RowEntry
	Sources map[uint64]SourceRow
	Trails  map[uint64]crumtrail.Crumtrail
	Meta    Meta

	// Asset is an optional opaque blob (e.g. a report template). AssetHash
	// is its digest, and AssetRN/AssetCol name the Bytes-kind source
	// column that carries AssetHash as its value. Per §4.9 item 6, that
	// column's cell hash is what's actually committed in the row set, so
	// Verify binds the asset to hi_hash through the same source-row/
	// input-hash chain as any other cell rather than trusting AssetHash
	// as a free-standing field. AssetCol is 1-based; zero means unset.
	Asset     []byte
	AssetHash hashutil.Hash
	AssetRN   uint64
	AssetCol  int

	// BuildID correlates this pack to the build request that produced
	// it, the way pkg/database/repository_proof.go stamps uuid.New() on
	// every artifact it creates.
	BuildID uuid.UUID
}

func newEmpty() *Morsel {
	return &Morsel{
		Rows:    make(map[uint64]RowEntry),
		Sources: make(map[uint64]SourceRow),
		Trails:  make(map[uint64]crumtrail.Crumtrail),
	}
}

// Clone returns a deep-enough copy of m safe to mutate independently
// (used by Merge when handed a single-element input set).
func (m *Morsel) Clone() *Morsel {
	out := newEmpty()
	out.HiRN = m.HiRN
	out.HiHash = m.HiHash
	out.Meta = m.Meta
	out.BuildID = m.BuildID
	out.AssetHash = m.AssetHash
	out.AssetRN = m.AssetRN
	out.AssetCol = m.AssetCol
	if m.Asset != nil {
		out.Asset = append([]byte(nil), m.Asset...)
	}
	for rn, e := range m.Rows {
		out.Rows[rn] = e
	}
	for rn, s := range m.Sources {
		out.Sources[rn] = s
	}
	for rn, t := range m.Trails {
		out.Trails[rn] = t
	}
	return out
}

// sortedKeys returns the row numbers in the set m in ascending order, for
// deterministic iteration (encoding, verification order).
func sortedKeys(m map[uint64]struct{}) []uint64 {
	out := make([]uint64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		v := out[i]
		j := i - 1
		for j >= 0 && out[j] > v {
			out[j+1] = out[j]
			j--
		}
		out[j+1] = v
	}
	return out
}

func (m *Morsel) sortedRowRNs() []uint64 {
	set := make(map[uint64]struct{}, len(m.Rows))
	for rn := range m.Rows {
		set[rn] = struct{}{}
	}
	return sortedKeys(set)
}

func (m *Morsel) sortedSourceRNs() []uint64 {
	set := make(map[uint64]struct{}, len(m.Sources))
	for rn := range m.Sources {
		set[rn] = struct{}{}
	}
	return sortedKeys(set)
}

func (m *Morsel) sortedTrailRNs() []uint64 {
	set := make(map[uint64]struct{}, len(m.Trails))
	for rn := range m.Trails {
		set[rn] = struct{}{}
	}
	return sortedKeys(set)
}
