// Copyright 2025 Certen Protocol
//
// flatfile is the flat-file ledger-store backend of §6: row-hash and
// input-hash tables on disk, an EOL-offset index, state checkpoints, and
// a crumtrail log. Registers itself into the default ledger.Registry
// under the name "flatfile", the way pkg/kvdb registers a
// CometBFT-backed adapter for the teacher's LedgerStore.
//
// File layout under Dir:
//
//	frontiers     row-hash table: header + 32-byte-aligned H(rn) entries
//	inputs        input-hash table: 32-byte h_in(rn) entries, same indexing
//	eor           header + ascending 64-bit EOL offsets (one per append)
//	_{rn}.fstate  state checkpoint: magic, two zero bytes, rn (8 bytes BE)
//	trails.log    append-only crumtrail records, indexed in memory at open
//
// Judgment calls recorded in DESIGN.md: §6 documents the frontiers/eor/
// fstate file formats but is silent on where h_in is persisted in the
// flat-file backend specifically (it only gives the generic "64 bytes per
// row" sketch for an abstract flat store) and on a dedicated flat-file
// crumtrail format (only the relational backend's trail table is
// specified). The "inputs" table and "trails.log" layout here are this
// package's resolution of both gaps.
package flatfile

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/certen/skipledger/pkg/crumtrail"
	"github.com/certen/skipledger/pkg/hashutil"
	"github.com/certen/skipledger/pkg/ledger"
)

func init() {
	_ = ledger.RegisterBackend("flatfile", func(cfg map[string]string) (ledger.Backend, error) {
		dir, ok := cfg["dir"]
		if !ok || dir == "" {
			return nil, fmt.Errorf("flatfile: config key %q is required", "dir")
		}
		return Open(dir)
	})
}

const (
	frontiersMagic = "fhash"
	eorMagic       = "eor"
	fstateMagic    = "fstate"
	hashWidth      = hashutil.Size
)

// Backend is a flat-file-backed ledger.Backend.
type Backend struct {
	mu   sync.Mutex
	dir  string
	rf   *os.File // frontiers (row-hash table)
	inf  *os.File // inputs (input-hash table)
	eor  *os.File
	size uint64

	trails map[uint64]crumtrail.Crumtrail
}

// Open opens (creating if absent) a flat-file ledger store rooted at dir.
func Open(dir string) (*Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("flatfile: %w", err)
	}
	b := &Backend{dir: dir, trails: make(map[uint64]crumtrail.Crumtrail)}

	var err error
	b.rf, err = openOrInitTable(filepath.Join(dir, "frontiers"), frontiersHeader())
	if err != nil {
		return nil, err
	}
	b.inf, err = openOrInitTable(filepath.Join(dir, "inputs"), nil)
	if err != nil {
		return nil, err
	}
	b.eor, err = openOrInitTable(filepath.Join(dir, "eor"), eorHeader())
	if err != nil {
		return nil, err
	}

	size, err := tableRowCount(b.rf, len(frontiersHeader()))
	if err != nil {
		return nil, err
	}
	b.size = size

	if err := b.loadTrails(); err != nil {
		return nil, err
	}
	return b, nil
}

func frontiersHeader() []byte {
	h := []byte(frontiersMagic)
	h = append(h, 0x00, 0x00)
	h = append(h, 0x00) // dex: reserved encoding-table index, unused by this backend
	h = append(h, make([]byte, hashWidth)...) // salt-seed placeholder; never the real secret (§9)
	h = append(h, 0x00, 0x00)                 // cpLen, delLen: no comment/delimiter chars tracked here
	return h
}

func eorHeader() []byte {
	h := []byte(eorMagic)
	h = append(h, 0x00, 0x00)
	h = append(h, 0x00) // dex
	return h
}

func openOrInitTable(path string, header []byte) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("flatfile: open %s: %w", path, err)
	}
	if header != nil {
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		if info.Size() == 0 {
			if _, err := f.Write(header); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

func tableRowCount(f *os.File, headerLen int) (uint64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	body := info.Size() - int64(headerLen)
	if body < 0 {
		return 0, &ledger.InvalidFormatError{Section: "frontiers", Detail: "file shorter than header"}
	}
	return uint64(body / hashWidth), nil
}

func (b *Backend) Size() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size, nil
}

func (b *Backend) rowOffset(rn uint64) int64 {
	return int64(len(frontiersHeader())) + int64(rn-1)*hashWidth
}

func (b *Backend) inputOffset(rn uint64) int64 {
	return int64(rn-1) * hashWidth
}

func (b *Backend) ReadRowCells(rn uint64) (ledger.RowRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rn < 1 || rn > b.size {
		return ledger.RowRecord{}, &ledger.MissingRowError{RN: rn}
	}
	rowHash, err := readHashAt(b.rf, b.rowOffset(rn))
	if err != nil {
		return ledger.RowRecord{}, err
	}
	inHash, err := readHashAt(b.inf, b.inputOffset(rn))
	if err != nil {
		return ledger.RowRecord{}, err
	}
	return ledger.RowRecord{InputHash: inHash, RowHash: rowHash}, nil
}

func (b *Backend) WriteRowCells(rn uint64, rec ledger.RowRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := writeHashAt(b.rf, b.rowOffset(rn), rec.RowHash); err != nil {
		return err
	}
	return writeHashAt(b.inf, b.inputOffset(rn), rec.InputHash)
}

func (b *Backend) ReadInputHash(rn uint64) (hashutil.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rn < 1 || rn > b.size {
		return hashutil.Hash{}, &ledger.MissingRowError{RN: rn}
	}
	return readHashAt(b.inf, b.inputOffset(rn))
}

func (b *Backend) WriteInputHash(rn uint64, h hashutil.Hash) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return writeHashAt(b.inf, b.inputOffset(rn), h)
}

// Commit appends row rn atomically: both tables are extended and synced
// before the new size becomes visible, and an EOL offset is recorded so
// a source-ledger scanner can find row boundaries without re-parsing.
func (b *Backend) Commit(rn uint64, rec ledger.RowRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rn != b.size+1 {
		return &ledger.OffsetConflictError{RN: rn, Expected: b.size + 1, Actual: rn}
	}
	if err := writeHashAt(b.rf, b.rowOffset(rn), rec.RowHash); err != nil {
		return err
	}
	if err := writeHashAt(b.inf, b.inputOffset(rn), rec.InputHash); err != nil {
		return err
	}
	if err := b.rf.Sync(); err != nil {
		return err
	}
	if err := b.inf.Sync(); err != nil {
		return err
	}
	if err := b.appendEOR(rn); err != nil {
		return err
	}
	if err := b.writeCheckpoint(rn); err != nil {
		return err
	}
	b.size = rn
	return nil
}

func (b *Backend) appendEOR(rn uint64) error {
	off := int64(len(eorHeader())) + int64(rn-1)*8
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(b.rowOffset(rn))+hashWidth)
	if _, err := b.eor.WriteAt(buf, off); err != nil {
		return err
	}
	return b.eor.Sync()
}

// writeCheckpoint persists a _{rn}.fstate file holding the fstate magic,
// two zero bytes and rn as an 8-byte big-endian integer. It stores no
// row-hash and no frontier level hashes (those are re-derivable from the
// frontiers table); the checkpoint lets a reader confirm which row a given
// fstate snapshot corresponds to without touching the frontiers table.
func (b *Backend) writeCheckpoint(rn uint64) error {
	path := filepath.Join(b.dir, fmt.Sprintf("_%d.fstate", rn))
	payload := []byte(fstateMagic)
	payload = append(payload, 0x00, 0x00)
	rnBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(rnBytes, rn)
	payload = append(payload, rnBytes...)
	return os.WriteFile(path, payload, 0o644)
}

func (b *Backend) TruncateTo(newSize uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.rf.Truncate(int64(len(frontiersHeader())) + int64(newSize)*hashWidth); err != nil {
		return err
	}
	if err := b.inf.Truncate(int64(newSize) * hashWidth); err != nil {
		return err
	}
	if err := b.eor.Truncate(int64(len(eorHeader())) + int64(newSize)*8); err != nil {
		return err
	}
	for rn := newSize + 1; rn <= b.size; rn++ {
		_ = os.Remove(filepath.Join(b.dir, fmt.Sprintf("_%d.fstate", rn)))
		delete(b.trails, rn)
	}
	b.size = newSize
	return b.rewriteTrails()
}

func readHashAt(f *os.File, off int64) (hashutil.Hash, error) {
	buf := make([]byte, hashWidth)
	if _, err := f.ReadAt(buf, off); err != nil {
		return hashutil.Hash{}, fmt.Errorf("flatfile: read at %d: %w", off, err)
	}
	return hashutil.FromBytes(buf)
}

func writeHashAt(f *os.File, off int64, h hashutil.Hash) error {
	if _, err := f.WriteAt(h.Bytes(), off); err != nil {
		return fmt.Errorf("flatfile: write at %d: %w", off, err)
	}
	return nil
}
