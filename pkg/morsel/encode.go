// Copyright 2025 Certen Protocol
//
// Canonical .mrsl binary encoding: magic || version || TLV sections, per
// §4.9/§6. The encoding must be byte-identical across implementations
// given the same logical morsel, so every section with a natural
// multiplicity (rows, sources, crumtrails) is written in ascending
// row-number order and every variable-length field is length-prefixed
// big-endian, mirroring the big-endian fixed-width conventions of
// pkg/ledger/flatfile's frontiers/eor file headers.
package morsel

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/certen/skipledger/pkg/crumtrail"
	"github.com/certen/skipledger/pkg/hashutil"
	"github.com/certen/skipledger/pkg/skiprow"
	"github.com/certen/skipledger/pkg/sourcerow"
)

const (
	magic   = "MRSL"
	version = uint16(1)

	tagState     = 0x01
	tagBuildID   = 0x02
	tagRow       = 0x03
	tagSource    = 0x04
	tagCrumtrail = 0x05
	tagMeta      = 0x06
	tagAsset     = 0x07
)

// Encode produces the canonical byte-exact .mrsl encoding of m.
func Encode(m *Morsel) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(magic)
	writeU16(&buf, version)

	writeSection(&buf, tagState, encodeState(m))
	if m.BuildID != uuid.Nil {
		writeSection(&buf, tagBuildID, m.BuildID[:])
	}
	for _, rn := range m.sortedRowRNs() {
		writeSection(&buf, tagRow, encodeRow(m.Rows[rn]))
	}
	for _, rn := range m.sortedSourceRNs() {
		payload, err := encodeSource(m.Sources[rn])
		if err != nil {
			return nil, err
		}
		writeSection(&buf, tagSource, payload)
	}
	for _, rn := range m.sortedTrailRNs() {
		writeSection(&buf, tagCrumtrail, encodeCrumtrail(rn, m.Trails[rn]))
	}
	if hasMeta(m.Meta) {
		writeSection(&buf, tagMeta, encodeMeta(m.Meta))
	}
	if m.Asset != nil {
		writeSection(&buf, tagAsset, encodeAsset(m))
	}
	return buf.Bytes(), nil
}

// WriteFile encodes m and writes it to path (conventionally *.mrsl).
func WriteFile(m *Morsel, path string) error {
	b, err := Encode(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// Decode parses a canonical .mrsl byte stream into a Morsel. It performs
// no cross-section verification; call Verify afterward.
func Decode(b []byte) (*Morsel, error) {
	if len(b) < len(magic)+2 {
		return nil, &InvalidFormatError{Section: "header", Detail: "too short for magic+version"}
	}
	if string(b[:len(magic)]) != magic {
		return nil, &InvalidFormatError{Section: "header", Detail: "bad magic"}
	}
	ver := binary.BigEndian.Uint16(b[len(magic) : len(magic)+2])
	if ver != version {
		return nil, &InvalidFormatError{Section: "header", Detail: fmt.Sprintf("unsupported version %d", ver)}
	}

	m := newEmpty()
	off := len(magic) + 2
	sawState := false
	for off < len(b) {
		if off+5 > len(b) {
			return nil, &InvalidFormatError{Section: "section", Detail: "truncated section header"}
		}
		tag := b[off]
		length := binary.BigEndian.Uint32(b[off+1 : off+5])
		off += 5
		if uint64(off)+uint64(length) > uint64(len(b)) {
			return nil, &InvalidFormatError{Section: "section", Detail: "truncated payload"}
		}
		payload := b[off : off+int(length)]
		off += int(length)

		switch tag {
		case tagState:
			if err := decodeState(m, payload); err != nil {
				return nil, err
			}
			sawState = true
		case tagBuildID:
			if len(payload) != 16 {
				return nil, &InvalidFormatError{Section: "buildid", Detail: "wrong length"}
			}
			copy(m.BuildID[:], payload)
		case tagRow:
			entry, err := decodeRow(payload)
			if err != nil {
				return nil, err
			}
			m.Rows[entry.RN] = entry
		case tagSource:
			src, err := decodeSource(payload)
			if err != nil {
				return nil, err
			}
			m.Sources[src.RN] = src
		case tagCrumtrail:
			rn, trail, err := decodeCrumtrail(payload)
			if err != nil {
				return nil, err
			}
			m.Trails[rn] = trail
		case tagMeta:
			meta, err := decodeMeta(payload)
			if err != nil {
				return nil, err
			}
			m.Meta = meta
		case tagAsset:
			if err := decodeAsset(m, payload); err != nil {
				return nil, err
			}
		default:
			return nil, &InvalidFormatError{Section: "section", Detail: fmt.Sprintf("unknown tag 0x%02x", tag)}
		}
	}
	if !sawState {
		return nil, &InvalidFormatError{Section: "state", Detail: "missing declared-state section"}
	}
	return m, nil
}

// ReadFile reads and decodes a .mrsl file.
func ReadFile(path string) (*Morsel, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("morsel: %w", err)
	}
	return Decode(b)
}

func writeSection(buf *bytes.Buffer, tag byte, payload []byte) {
	buf.WriteByte(tag)
	writeU32(buf, uint32(len(payload)))
	buf.Write(payload)
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeBytesWithU16Len(buf *bytes.Buffer, b []byte) {
	writeU16(buf, uint16(len(b)))
	buf.Write(b)
}

func writeBytesWithU32Len(buf *bytes.Buffer, b []byte) {
	writeU32(buf, uint32(len(b)))
	buf.Write(b)
}

// --- state ---

func encodeState(m *Morsel) []byte {
	var buf bytes.Buffer
	writeU64(&buf, m.HiRN)
	buf.Write(m.HiHash[:])
	return buf.Bytes()
}

func decodeState(m *Morsel, p []byte) error {
	if len(p) != 8+hashutil.Size {
		return &InvalidFormatError{Section: "state", Detail: "wrong length"}
	}
	m.HiRN = binary.BigEndian.Uint64(p[:8])
	h, err := hashutil.FromBytes(p[8:])
	if err != nil {
		return &InvalidFormatError{Section: "state", Detail: err.Error()}
	}
	m.HiHash = h
	return nil
}

// --- row ---

func encodeRow(e RowEntry) []byte {
	var buf bytes.Buffer
	writeU64(&buf, e.RN)
	if e.IsFull() {
		buf.WriteByte(1)
		ih := e.Row.InputHash()
		buf.Write(ih[:])
		k := len(e.Row.Cells) - 1
		buf.WriteByte(byte(k))
		for i := 0; i < k; i++ {
			ph, _ := e.Row.PointerHash(i)
			buf.Write(ph[:])
		}
	} else {
		buf.WriteByte(0)
		buf.Write(e.Hash[:])
	}
	return buf.Bytes()
}

func decodeRow(p []byte) (RowEntry, error) {
	if len(p) < 9 {
		return RowEntry{}, &InvalidFormatError{Section: "row", Detail: "too short"}
	}
	rn := binary.BigEndian.Uint64(p[:8])
	flag := p[8]
	rest := p[9:]
	if flag == 0 {
		if len(rest) != hashutil.Size {
			return RowEntry{}, &InvalidFormatError{Section: "row", Detail: "reference row wrong length"}
		}
		h, err := hashutil.FromBytes(rest)
		if err != nil {
			return RowEntry{}, &InvalidFormatError{Section: "row", Detail: err.Error()}
		}
		return RowEntry{RN: rn, Hash: h}, nil
	}
	if flag != 1 {
		return RowEntry{}, &InvalidFormatError{Section: "row", Detail: "unknown row flag"}
	}
	if len(rest) < hashutil.Size+1 {
		return RowEntry{}, &InvalidFormatError{Section: "row", Detail: "full row too short"}
	}
	inputHash, err := hashutil.FromBytes(rest[:hashutil.Size])
	if err != nil {
		return RowEntry{}, &InvalidFormatError{Section: "row", Detail: err.Error()}
	}
	k := int(rest[hashutil.Size])
	rest = rest[hashutil.Size+1:]
	if len(rest) != k*hashutil.Size {
		return RowEntry{}, &InvalidFormatError{Section: "row", Detail: "pointer hash count mismatch"}
	}
	pointerHashes := make([]hashutil.Hash, k)
	for i := 0; i < k; i++ {
		h, err := hashutil.FromBytes(rest[i*hashutil.Size : (i+1)*hashutil.Size])
		if err != nil {
			return RowEntry{}, &InvalidFormatError{Section: "row", Detail: err.Error()}
		}
		pointerHashes[i] = h
	}
	row, err := skiprow.New(rn, inputHash, pointerHashes)
	if err != nil {
		return RowEntry{}, &InvalidFormatError{Section: "row", Detail: err.Error()}
	}
	return RowEntry{RN: rn, Row: &row, Hash: row.Hash()}, nil
}

// --- source ---

func encodeSource(s SourceRow) ([]byte, error) {
	var buf bytes.Buffer
	writeU64(&buf, s.RN)
	writeU16(&buf, uint16(len(s.Columns)))
	for _, col := range s.Columns {
		buf.WriteByte(byte(col.Value.Kind))
		redacted := col.Redacted()
		if redacted {
			buf.WriteByte(0)
		} else {
			buf.WriteByte(1)
			buf.Write(col.Salt[:])
		}
		vb, err := sourcerow.CanonicalBytesForEncoding(col.Value)
		if err != nil {
			return nil, err
		}
		writeBytesWithU32Len(&buf, vb)
	}
	return buf.Bytes(), nil
}

func decodeSource(p []byte) (SourceRow, error) {
	if len(p) < 10 {
		return SourceRow{}, &InvalidFormatError{Section: "source", Detail: "too short"}
	}
	rn := binary.BigEndian.Uint64(p[:8])
	ncols := int(binary.BigEndian.Uint16(p[8:10]))
	off := 10
	cols := make([]SourceColumn, 0, ncols)
	for i := 0; i < ncols; i++ {
		if off+2 > len(p) {
			return SourceRow{}, &InvalidFormatError{Section: "source", Detail: "truncated column header"}
		}
		kind := sourcerow.Kind(p[off])
		saltPresent := p[off+1]
		off += 2
		var salt hashutil.Hash
		if saltPresent == 1 {
			if off+hashutil.Size > len(p) {
				return SourceRow{}, &InvalidFormatError{Section: "source", Detail: "truncated salt"}
			}
			var err error
			salt, err = hashutil.FromBytes(p[off : off+hashutil.Size])
			if err != nil {
				return SourceRow{}, &InvalidFormatError{Section: "source", Detail: err.Error()}
			}
			off += hashutil.Size
		}
		if off+4 > len(p) {
			return SourceRow{}, &InvalidFormatError{Section: "source", Detail: "truncated value length"}
		}
		vlen := int(binary.BigEndian.Uint32(p[off : off+4]))
		off += 4
		if off+vlen > len(p) {
			return SourceRow{}, &InvalidFormatError{Section: "source", Detail: "truncated value"}
		}
		vb := p[off : off+vlen]
		off += vlen
		value, err := sourcerow.ValueFromCanonicalBytes(kind, vb)
		if err != nil {
			return SourceRow{}, &InvalidFormatError{Section: "source", Detail: err.Error()}
		}
		cols = append(cols, SourceColumn{Value: value, Salt: salt})
	}
	return SourceRow{RN: rn, Columns: cols}, nil
}

// --- crumtrail ---

func encodeCrumtrail(rn uint64, c crumtrail.Crumtrail) []byte {
	var buf bytes.Buffer
	writeU64(&buf, rn)
	buf.Write(c.HashedValue[:])
	writeU16(&buf, uint16(len(c.Proof)))
	for _, node := range c.Proof {
		if node.Side == crumtrail.SiblingRight {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		buf.Write(node.Sibling[:])
	}
	buf.Write(c.Root[:])
	var tb [8]byte
	binary.BigEndian.PutUint64(tb[:], uint64(c.UTCMillis))
	buf.Write(tb[:])
	writeBytesWithU16Len(&buf, []byte(c.RefURL))
	return buf.Bytes()
}

func decodeCrumtrail(p []byte) (uint64, crumtrail.Crumtrail, error) {
	if len(p) < 8+hashutil.Size+2 {
		return 0, crumtrail.Crumtrail{}, &InvalidFormatError{Section: "crumtrail", Detail: "too short"}
	}
	rn := binary.BigEndian.Uint64(p[:8])
	hashedValue, err := hashutil.FromBytes(p[8 : 8+hashutil.Size])
	if err != nil {
		return 0, crumtrail.Crumtrail{}, &InvalidFormatError{Section: "crumtrail", Detail: err.Error()}
	}
	off := 8 + hashutil.Size
	nProof := int(binary.BigEndian.Uint16(p[off : off+2]))
	off += 2
	proof := make([]crumtrail.ProofNode, nProof)
	for i := 0; i < nProof; i++ {
		if off+1+hashutil.Size > len(p) {
			return 0, crumtrail.Crumtrail{}, &InvalidFormatError{Section: "crumtrail", Detail: "truncated proof"}
		}
		side := crumtrail.SiblingLeft
		if p[off] == 1 {
			side = crumtrail.SiblingRight
		}
		off++
		sib, err := hashutil.FromBytes(p[off : off+hashutil.Size])
		if err != nil {
			return 0, crumtrail.Crumtrail{}, &InvalidFormatError{Section: "crumtrail", Detail: err.Error()}
		}
		off += hashutil.Size
		proof[i] = crumtrail.ProofNode{Sibling: sib, Side: side}
	}
	if off+hashutil.Size+8+2 > len(p) {
		return 0, crumtrail.Crumtrail{}, &InvalidFormatError{Section: "crumtrail", Detail: "truncated tail"}
	}
	root, err := hashutil.FromBytes(p[off : off+hashutil.Size])
	if err != nil {
		return 0, crumtrail.Crumtrail{}, &InvalidFormatError{Section: "crumtrail", Detail: err.Error()}
	}
	off += hashutil.Size
	utc := int64(binary.BigEndian.Uint64(p[off : off+8]))
	off += 8
	urlLen := int(binary.BigEndian.Uint16(p[off : off+2]))
	off += 2
	if off+urlLen > len(p) {
		return 0, crumtrail.Crumtrail{}, &InvalidFormatError{Section: "crumtrail", Detail: "truncated ref_url"}
	}
	refURL := string(p[off : off+urlLen])

	trail, err := crumtrail.New(hashedValue, proof, root, utc, refURL)
	if err != nil {
		return 0, crumtrail.Crumtrail{}, &InvalidFormatError{Section: "crumtrail", Detail: err.Error()}
	}
	return rn, trail, nil
}

// --- meta ---

func hasMeta(m Meta) bool {
	return m.Name != "" || m.Description != "" || m.DateFormat != "" || len(m.Columns) > 0
}

func encodeMeta(m Meta) []byte {
	var buf bytes.Buffer
	writeBytesWithU16Len(&buf, []byte(m.Name))
	writeBytesWithU16Len(&buf, []byte(m.Description))
	writeBytesWithU16Len(&buf, []byte(m.DateFormat))
	writeU16(&buf, uint16(len(m.Columns)))
	for _, c := range m.Columns {
		writeBytesWithU16Len(&buf, []byte(c.Name))
	}
	return buf.Bytes()
}

func decodeMeta(p []byte) (Meta, error) {
	off := 0
	readStr := func() (string, error) {
		if off+2 > len(p) {
			return "", &InvalidFormatError{Section: "meta", Detail: "truncated string length"}
		}
		n := int(binary.BigEndian.Uint16(p[off : off+2]))
		off += 2
		if off+n > len(p) {
			return "", &InvalidFormatError{Section: "meta", Detail: "truncated string"}
		}
		s := string(p[off : off+n])
		off += n
		return s, nil
	}
	name, err := readStr()
	if err != nil {
		return Meta{}, err
	}
	desc, err := readStr()
	if err != nil {
		return Meta{}, err
	}
	dateFmt, err := readStr()
	if err != nil {
		return Meta{}, err
	}
	if off+2 > len(p) {
		return Meta{}, &InvalidFormatError{Section: "meta", Detail: "truncated column count"}
	}
	ncols := int(binary.BigEndian.Uint16(p[off : off+2]))
	off += 2
	cols := make([]ColumnMeta, 0, ncols)
	for i := 0; i < ncols; i++ {
		cname, err := readStr()
		if err != nil {
			return Meta{}, err
		}
		cols = append(cols, ColumnMeta{Name: cname})
	}
	return Meta{Name: name, Description: desc, DateFormat: dateFmt, Columns: cols}, nil
}

// --- asset ---

func encodeAsset(m *Morsel) []byte {
	var buf bytes.Buffer
	buf.Write(m.AssetHash[:])
	writeU64(&buf, m.AssetRN)
	writeU16(&buf, uint16(m.AssetCol))
	writeBytesWithU32Len(&buf, m.Asset)
	return buf.Bytes()
}

func decodeAsset(m *Morsel, p []byte) error {
	const fixed = hashutil.Size + 8 + 2 + 4
	if len(p) < fixed {
		return &InvalidFormatError{Section: "asset", Detail: "too short"}
	}
	h, err := hashutil.FromBytes(p[:hashutil.Size])
	if err != nil {
		return &InvalidFormatError{Section: "asset", Detail: err.Error()}
	}
	off := hashutil.Size
	assetRN := binary.BigEndian.Uint64(p[off : off+8])
	off += 8
	assetCol := binary.BigEndian.Uint16(p[off : off+2])
	off += 2
	alen := binary.BigEndian.Uint32(p[off : off+4])
	off += 4
	rest := p[off:]
	if uint32(len(rest)) != alen {
		return &InvalidFormatError{Section: "asset", Detail: "asset length mismatch"}
	}
	m.AssetHash = h
	m.AssetRN = assetRN
	m.AssetCol = int(assetCol)
	m.Asset = append([]byte(nil), rest...)
	return nil
}
