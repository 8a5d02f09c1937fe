package kvstore

import (
	"strconv"
	"testing"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/skipledger/pkg/crumtrail"
	"github.com/certen/skipledger/pkg/hashutil"
	"github.com/certen/skipledger/pkg/ledger"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(dbm.NewMemDB())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return b
}

func TestCommitAndReadRowCells(t *testing.T) {
	b := newTestBackend(t)
	for i := uint64(1); i <= 10; i++ {
		rec := ledger.RowRecord{
			InputHash: hashutil.Digest([]byte(strconv.FormatUint(i, 10))),
			RowHash:   hashutil.Digest([]byte("row"), []byte(strconv.FormatUint(i, 10))),
		}
		if err := b.Commit(i, rec); err != nil {
			t.Fatalf("Commit(%d): %v", i, err)
		}
	}
	size, err := b.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 10 {
		t.Fatalf("Size() = %d, want 10", size)
	}
	rec, err := b.ReadRowCells(5)
	if err != nil {
		t.Fatalf("ReadRowCells(5): %v", err)
	}
	if rec.InputHash != hashutil.Digest([]byte("5")) {
		t.Fatalf("row 5 input hash mismatch")
	}
}

func TestCommitRejectsOutOfOrder(t *testing.T) {
	b := newTestBackend(t)
	err := b.Commit(3, ledger.RowRecord{InputHash: hashutil.Digest([]byte("x")), RowHash: hashutil.Digest([]byte("y"))})
	if err == nil {
		t.Fatalf("expected OffsetConflictError")
	}
	if _, ok := err.(*ledger.OffsetConflictError); !ok {
		t.Fatalf("expected *ledger.OffsetConflictError, got %T", err)
	}
}

func TestTruncateToDropsRowsAndTrails(t *testing.T) {
	b := newTestBackend(t)
	for i := uint64(1); i <= 8; i++ {
		rec := ledger.RowRecord{InputHash: hashutil.Digest([]byte(strconv.FormatUint(i, 10))), RowHash: hashutil.Digest([]byte(strconv.FormatUint(i, 10)))}
		if err := b.Commit(i, rec); err != nil {
			t.Fatalf("Commit(%d): %v", i, err)
		}
	}
	trail, err := crumtrail.New(hashutil.Digest([]byte("8")), nil, hashutil.Digest([]byte("8")), 99, "")
	if err != nil {
		t.Fatalf("crumtrail.New: %v", err)
	}
	if err := b.PutTrail(8, trail); err != nil {
		t.Fatalf("PutTrail: %v", err)
	}

	if err := b.TruncateTo(4); err != nil {
		t.Fatalf("TruncateTo: %v", err)
	}
	size, err := b.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 4 {
		t.Fatalf("Size() after truncate = %d, want 4", size)
	}
	if _, err := b.ReadRowCells(5); err == nil {
		t.Fatalf("expected row 5 to be gone after truncate")
	}
	if _, ok, err := b.GetTrail(8); err != nil {
		t.Fatalf("GetTrail: %v", err)
	} else if ok {
		t.Fatalf("expected trail for row 8 to be dropped after truncate")
	}
}

func TestPutTrailAndGetTrailRoundtrip(t *testing.T) {
	b := newTestBackend(t)
	proof := []crumtrail.ProofNode{
		{Sibling: hashutil.Digest([]byte("s0")), Side: crumtrail.SiblingLeft},
		{Sibling: hashutil.Digest([]byte("s1")), Side: crumtrail.SiblingRight},
	}
	trail, err := crumtrail.New(hashutil.Digest([]byte("leaf")), proof, hashutil.Digest([]byte("root")), 123, "https://notary.example/z")
	if err != nil {
		t.Fatalf("crumtrail.New: %v", err)
	}
	if err := b.PutTrail(6, trail); err != nil {
		t.Fatalf("PutTrail: %v", err)
	}
	got, ok, err := b.GetTrail(6)
	if err != nil {
		t.Fatalf("GetTrail: %v", err)
	}
	if !ok {
		t.Fatalf("expected trail for row 6")
	}
	if got.HashedValue != trail.HashedValue || got.Root != trail.Root || got.UTCMillis != trail.UTCMillis {
		t.Fatalf("roundtrip mismatch: got %+v want %+v", got, trail)
	}
	if len(got.Proof) != 2 {
		t.Fatalf("proof length = %d, want 2", len(got.Proof))
	}

	rns, err := b.ListTrailRNs()
	if err != nil {
		t.Fatalf("ListTrailRNs: %v", err)
	}
	if len(rns) != 1 || rns[0] != 6 {
		t.Fatalf("ListTrailRNs = %v, want [6]", rns)
	}
}

func TestRegisteredInDefaultRegistry(t *testing.T) {
	dir := t.TempDir()
	backend, err := ledger.Open("kvstore", map[string]string{"dir": dir, "name": "test"})
	if err != nil {
		t.Fatalf("ledger.Open(kvstore): %v", err)
	}
	if _, ok := backend.(*Backend); !ok {
		t.Fatalf("expected *kvstore.Backend, got %T", backend)
	}
}
