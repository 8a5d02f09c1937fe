// Copyright 2025 Certen Protocol
//
// kvstore is the generic key-value ledger.Backend: any CometBFT dbm.DB
// (MemDB, GoLevelDB, ...) adapted to §6's storage contract, the way
// pkg/kvdb/adapter.go's KVAdapter wraps dbm.DB for the teacher's
// LedgerStore. Key layout and JSON-metadata conventions follow
// pkg/ledger/store.go's KV key scheme (fixed prefixes, binary.BigEndian
// row numbers, JSON-marshaled values for anything beyond a raw hash).
package kvstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/skipledger/pkg/crumtrail"
	"github.com/certen/skipledger/pkg/hashutil"
	"github.com/certen/skipledger/pkg/ledger"
)

func init() {
	_ = ledger.RegisterBackend("kvstore", func(cfg map[string]string) (ledger.Backend, error) {
		dir, ok := cfg["dir"]
		if !ok || dir == "" {
			return nil, fmt.Errorf("kvstore: config key %q is required", "dir")
		}
		name := cfg["name"]
		if name == "" {
			name = "skipledger"
		}
		db, err := dbm.NewGoLevelDB(name, dir)
		if err != nil {
			return nil, fmt.Errorf("kvstore: %w", err)
		}
		return Open(db)
	})
}

var (
	keySize        = []byte("skipledger:size")
	rowKeyPrefix   = []byte("skipledger:row:")
	trailKeyPrefix = []byte("skipledger:trail:")
	keyTrailIndex  = []byte("skipledger:trail_index")
)

func rowKey(rn uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, rn)
	return append(append([]byte{}, rowKeyPrefix...), b...)
}

func trailKey(rn uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, rn)
	return append(append([]byte{}, trailKeyPrefix...), b...)
}

// trailRecord is the JSON wire form of a crumtrail.Crumtrail; []byte
// fields marshal as base64 automatically.
type trailRecord struct {
	HashedValue []byte          `json:"hashed_value"`
	Root        []byte          `json:"root"`
	UTCMillis   int64           `json:"utc_millis"`
	RefURL      string          `json:"ref_url"`
	Proof       []proofNodeWire `json:"proof"`
}

type proofNodeWire struct {
	Sibling []byte `json:"sibling"`
	Right   bool   `json:"right"`
}

// Backend is a dbm.DB-backed ledger.Backend.
type Backend struct {
	db dbm.DB
}

// Open adapts an already-opened dbm.DB into a Backend.
func Open(db dbm.DB) (*Backend, error) {
	return &Backend{db: db}, nil
}

// Close closes the underlying database.
func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) Size() (uint64, error) {
	raw, err := b.db.Get(keySize)
	if err != nil {
		return 0, fmt.Errorf("kvstore: size: %w", err)
	}
	if len(raw) == 0 {
		return 0, nil
	}
	if len(raw) != 8 {
		return 0, &ledger.InvalidFormatError{Section: "size", Detail: "expected 8 bytes"}
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (b *Backend) setSize(n uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return b.db.SetSync(keySize, buf)
}

func (b *Backend) ReadRowCells(rn uint64) (ledger.RowRecord, error) {
	raw, err := b.db.Get(rowKey(rn))
	if err != nil {
		return ledger.RowRecord{}, fmt.Errorf("kvstore: read row cells: %w", err)
	}
	if len(raw) == 0 {
		return ledger.RowRecord{}, &ledger.MissingRowError{RN: rn}
	}
	if len(raw) != 2*hashutil.Size {
		return ledger.RowRecord{}, &ledger.InvalidFormatError{Section: "row", Detail: "expected 64 bytes"}
	}
	inHash, err := hashutil.FromBytes(raw[:hashutil.Size])
	if err != nil {
		return ledger.RowRecord{}, err
	}
	rowHash, err := hashutil.FromBytes(raw[hashutil.Size:])
	if err != nil {
		return ledger.RowRecord{}, err
	}
	return ledger.RowRecord{InputHash: inHash, RowHash: rowHash}, nil
}

func (b *Backend) WriteRowCells(rn uint64, rec ledger.RowRecord) error {
	buf := make([]byte, 0, 2*hashutil.Size)
	buf = append(buf, rec.InputHash.Bytes()...)
	buf = append(buf, rec.RowHash.Bytes()...)
	return b.db.SetSync(rowKey(rn), buf)
}

func (b *Backend) ReadInputHash(rn uint64) (hashutil.Hash, error) {
	rec, err := b.ReadRowCells(rn)
	if err != nil {
		return hashutil.Hash{}, err
	}
	return rec.InputHash, nil
}

func (b *Backend) WriteInputHash(rn uint64, h hashutil.Hash) error {
	rec, err := b.ReadRowCells(rn)
	if err != nil {
		if _, ok := err.(*ledger.MissingRowError); !ok {
			return err
		}
		rec = ledger.RowRecord{}
	}
	rec.InputHash = h
	return b.WriteRowCells(rn, rec)
}

// Commit appends row rn, requiring rn == Size()+1.
func (b *Backend) Commit(rn uint64, rec ledger.RowRecord) error {
	size, err := b.Size()
	if err != nil {
		return err
	}
	if rn != size+1 {
		return &ledger.OffsetConflictError{RN: rn, Expected: size + 1, Actual: rn}
	}
	if err := b.WriteRowCells(rn, rec); err != nil {
		return err
	}
	return b.setSize(rn)
}

// TruncateTo deletes rows newSize+1..Size() and any trails past newSize.
func (b *Backend) TruncateTo(newSize uint64) error {
	size, err := b.Size()
	if err != nil {
		return err
	}
	for rn := newSize + 1; rn <= size; rn++ {
		if err := b.db.DeleteSync(rowKey(rn)); err != nil {
			return fmt.Errorf("kvstore: truncate row %d: %w", rn, err)
		}
		if err := b.db.DeleteSync(trailKey(rn)); err != nil {
			return fmt.Errorf("kvstore: truncate trail %d: %w", rn, err)
		}
	}
	if err := b.pruneTrailIndex(newSize); err != nil {
		return err
	}
	return b.setSize(newSize)
}

func (b *Backend) loadTrailIndex() ([]uint64, error) {
	raw, err := b.db.Get(keyTrailIndex)
	if err != nil {
		return nil, fmt.Errorf("kvstore: trail index: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var rns []uint64
	if err := json.Unmarshal(raw, &rns); err != nil {
		return nil, &ledger.InvalidFormatError{Section: "trail_index", Detail: err.Error()}
	}
	return rns, nil
}

func (b *Backend) saveTrailIndex(rns []uint64) error {
	raw, err := json.Marshal(rns)
	if err != nil {
		return err
	}
	return b.db.SetSync(keyTrailIndex, raw)
}

func (b *Backend) pruneTrailIndex(newSize uint64) error {
	rns, err := b.loadTrailIndex()
	if err != nil {
		return err
	}
	kept := rns[:0]
	for _, rn := range rns {
		if rn <= newSize {
			kept = append(kept, rn)
		}
	}
	return b.saveTrailIndex(kept)
}

func (b *Backend) PutTrail(rn uint64, trail crumtrail.Crumtrail) error {
	rec := trailRecord{
		HashedValue: trail.HashedValue.Bytes(),
		Root:        trail.Root.Bytes(),
		UTCMillis:   trail.UTCMillis,
		RefURL:      trail.RefURL,
		Proof:       make([]proofNodeWire, len(trail.Proof)),
	}
	for i, node := range trail.Proof {
		rec.Proof[i] = proofNodeWire{Sibling: node.Sibling.Bytes(), Right: node.Side == crumtrail.SiblingRight}
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("kvstore: marshal trail: %w", err)
	}
	if err := b.db.SetSync(trailKey(rn), raw); err != nil {
		return fmt.Errorf("kvstore: put trail: %w", err)
	}

	rns, err := b.loadTrailIndex()
	if err != nil {
		return err
	}
	for _, existing := range rns {
		if existing == rn {
			return nil
		}
	}
	rns = append(rns, rn)
	insertionSortU64(rns)
	return b.saveTrailIndex(rns)
}

func (b *Backend) GetTrail(rn uint64) (crumtrail.Crumtrail, bool, error) {
	raw, err := b.db.Get(trailKey(rn))
	if err != nil {
		return crumtrail.Crumtrail{}, false, fmt.Errorf("kvstore: get trail: %w", err)
	}
	if len(raw) == 0 {
		return crumtrail.Crumtrail{}, false, nil
	}
	var rec trailRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return crumtrail.Crumtrail{}, false, &ledger.InvalidFormatError{Section: "trail", Detail: err.Error()}
	}
	hashedValue, err := hashutil.FromBytes(rec.HashedValue)
	if err != nil {
		return crumtrail.Crumtrail{}, false, err
	}
	root, err := hashutil.FromBytes(rec.Root)
	if err != nil {
		return crumtrail.Crumtrail{}, false, err
	}
	proof := make([]crumtrail.ProofNode, len(rec.Proof))
	for i, node := range rec.Proof {
		sibling, err := hashutil.FromBytes(node.Sibling)
		if err != nil {
			return crumtrail.Crumtrail{}, false, err
		}
		side := crumtrail.SiblingLeft
		if node.Right {
			side = crumtrail.SiblingRight
		}
		proof[i] = crumtrail.ProofNode{Sibling: sibling, Side: side}
	}
	trail, err := crumtrail.New(hashedValue, proof, root, rec.UTCMillis, rec.RefURL)
	if err != nil {
		return crumtrail.Crumtrail{}, false, &ledger.InvalidFormatError{Section: "trail", Detail: err.Error()}
	}
	return trail, true, nil
}

func (b *Backend) ListTrailRNs() ([]uint64, error) {
	rns, err := b.loadTrailIndex()
	if err != nil {
		return nil, err
	}
	out := make([]uint64, len(rns))
	copy(out, rns)
	insertionSortU64(out)
	return out, nil
}

func insertionSortU64(a []uint64) {
	for i := 1; i < len(a); i++ {
		v := a[i]
		j := i - 1
		for j >= 0 && a[j] > v {
			a[j+1] = a[j]
			j--
		}
		a[j+1] = v
	}
}
