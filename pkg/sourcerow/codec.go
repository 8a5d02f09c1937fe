// Copyright 2025 Certen Protocol
//
// Source-row codec: column value kinds, salted cell hashing, and the
// row input-hash derivation of §4.3. This is the only place in the
// skip-ledger core that ever looks at what a row's content actually is;
// everywhere else it is an opaque 32-byte input-hash.

package sourcerow

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/certen/skipledger/pkg/hashutil"
)

// Kind identifies a column value's type.
type Kind byte

const (
	KindNull   Kind = 0x00
	KindString Kind = 0x01
	KindLong   Kind = 0x02
	KindDouble Kind = 0x03
	KindDate   Kind = 0x04
	KindBytes  Kind = 0x05
	KindHash   Kind = 0xFF
)

// Value is a single column's typed content.
type Value struct {
	Kind   Kind
	Str    string
	Long   int64
	Double float64
	DateMS int64  // milliseconds since Unix epoch, UTC
	Bytes  []byte // used for Bytes and Hash kinds (Hash must be exactly 32 bytes)
}

// Null returns a null column value.
func Null() Value { return Value{Kind: KindNull} }

// String returns a string column value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Long returns a signed 64-bit integer column value.
func Long(v int64) Value { return Value{Kind: KindLong, Long: v} }

// Double returns an IEEE-754 double column value.
func Double(v float64) Value { return Value{Kind: KindDouble, Double: v} }

// Date returns a UTC-milliseconds date column value.
func Date(ms int64) Value { return Value{Kind: KindDate, DateMS: ms} }

// Bytes returns a raw-bytes column value.
func Bytes(b []byte) Value { return Value{Kind: KindBytes, Bytes: append([]byte(nil), b...)} }

// RedactedHash returns a column value that stands in for a redacted cell:
// its cell hash is the literal 32-byte value supplied, not something
// recomputed from salt + content.
func RedactedHash(cellHash hashutil.Hash) Value {
	return Value{Kind: KindHash, Bytes: append([]byte(nil), cellHash[:]...)}
}

// canonicalBytes returns the bit-exact canonical encoding of v per the
// table in §4.3.
func canonicalBytes(v Value) ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return nil, nil
	case KindString:
		return []byte(v.Str), nil
	case KindLong:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(v.Long))
		return b, nil
	case KindDouble:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, math.Float64bits(v.Double))
		return b, nil
	case KindDate:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(v.DateMS))
		return b, nil
	case KindBytes:
		return v.Bytes, nil
	case KindHash:
		if len(v.Bytes) != hashutil.Size {
			return nil, fmt.Errorf("sourcerow: hash-kind value must be %d bytes, got %d", hashutil.Size, len(v.Bytes))
		}
		return v.Bytes, nil
	default:
		return nil, fmt.Errorf("sourcerow: unknown column kind 0x%02x", byte(v.Kind))
	}
}

// CanonicalBytesForEncoding exposes canonicalBytes for packages (such as
// pkg/morsel) that need to round-trip a Value through a byte-exact wire
// encoding rather than just hash it.
func CanonicalBytesForEncoding(v Value) ([]byte, error) {
	return canonicalBytes(v)
}

// ValueFromCanonicalBytes reconstructs a Value of the given kind from its
// canonical byte encoding — the inverse of CanonicalBytesForEncoding.
func ValueFromCanonicalBytes(kind Kind, b []byte) (Value, error) {
	switch kind {
	case KindNull:
		return Null(), nil
	case KindString:
		return String(string(b)), nil
	case KindLong:
		if len(b) != 8 {
			return Value{}, fmt.Errorf("sourcerow: long value must be 8 bytes, got %d", len(b))
		}
		return Long(int64(binary.BigEndian.Uint64(b))), nil
	case KindDouble:
		if len(b) != 8 {
			return Value{}, fmt.Errorf("sourcerow: double value must be 8 bytes, got %d", len(b))
		}
		return Double(math.Float64frombits(binary.BigEndian.Uint64(b))), nil
	case KindDate:
		if len(b) != 8 {
			return Value{}, fmt.Errorf("sourcerow: date value must be 8 bytes, got %d", len(b))
		}
		return Date(int64(binary.BigEndian.Uint64(b))), nil
	case KindBytes:
		return Bytes(b), nil
	case KindHash:
		h, err := hashutil.FromBytes(b)
		if err != nil {
			return Value{}, fmt.Errorf("sourcerow: %w", err)
		}
		return RedactedHash(h), nil
	default:
		return Value{}, fmt.Errorf("sourcerow: unknown column kind 0x%02x", byte(kind))
	}
}

// ErrInvalidColumn is returned when a cell's declared hash disagrees with
// the recomputation from salt + value.
var ErrInvalidColumn = errors.New("sourcerow: invalid column")

// ErrMixedRedaction is returned when both a raw value and a substituted
// hash are supplied for the same cell.
var ErrMixedRedaction = errors.New("sourcerow: mixed redaction")

// CellHash computes the hash of a single cell given its salt.
//
// For every kind except Hash: SHA256(salt || tag || canonical-bytes).
// For the Hash kind, the cell hash IS the literal 32-byte value stored —
// this is what lets a redactor substitute a value with its precomputed
// cell hash while leaving the row's input-hash unchanged.
func CellHash(salt hashutil.Hash, v Value) (hashutil.Hash, error) {
	if v.Kind == KindHash {
		return hashutil.FromBytes(v.Bytes)
	}
	canon, err := canonicalBytes(v)
	if err != nil {
		return hashutil.Hash{}, err
	}
	return hashutil.Digest(salt[:], []byte{byte(v.Kind)}, canon), nil
}

// Row is an ordered list of column values for a single ledger row number.
type Row struct {
	RN      uint64
	Columns []Value
}

// InputHash recomputes h_in(n) = merkle_root([cell_hash_1, ..., cell_hash_m])
// using salts derived from seed via DeriveSalt.
func InputHash(seed hashutil.Hash, row Row) (hashutil.Hash, error) {
	if len(row.Columns) == 0 {
		return hashutil.Hash{}, errors.New("sourcerow: row must have at least one column")
	}
	cellHashes := make([]hashutil.Hash, len(row.Columns))
	for j, col := range row.Columns {
		salt := DeriveSalt(seed, row.RN, j+1)
		h, err := CellHash(salt, col)
		if err != nil {
			return hashutil.Hash{}, fmt.Errorf("column %d: %w", j+1, err)
		}
		cellHashes[j] = h
	}
	return hashutil.MerkleRoot(cellHashes)
}

// InputHashFromCellHashes recomputes h_in(n) directly from already-known
// per-column cell hashes (used when verifying a morsel's source rows,
// where some cells may only be present as a redacted hash-kind value).
func InputHashFromCellHashes(cellHashes []hashutil.Hash) (hashutil.Hash, error) {
	if len(cellHashes) == 0 {
		return hashutil.Hash{}, errors.New("sourcerow: row must have at least one column")
	}
	return hashutil.MerkleRoot(cellHashes)
}
