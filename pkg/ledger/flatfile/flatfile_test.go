package flatfile

import (
	"strconv"
	"testing"

	"github.com/certen/skipledger/pkg/crumtrail"
	"github.com/certen/skipledger/pkg/hashutil"
	"github.com/certen/skipledger/pkg/ledger"
)

func TestCommitAndReadRowCells(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := uint64(1); i <= 12; i++ {
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
	if size != 12 {
		t.Fatalf("Size() = %d, want 12", size)
	}

	got, err := b.ReadRowCells(7)
	if err != nil {
		t.Fatalf("ReadRowCells(7): %v", err)
	}
	want := ledger.RowRecord{
		InputHash: hashutil.Digest([]byte("7")),
		RowHash:   hashutil.Digest([]byte("row"), []byte("7")),
	}
	if got != want {
		t.Fatalf("ReadRowCells(7) = %+v, want %+v", got, want)
	}
}

func TestCommitRejectsOutOfOrder(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rec := ledger.RowRecord{InputHash: hashutil.Digest([]byte("1")), RowHash: hashutil.Digest([]byte("h1"))}
	if err := b.Commit(2, rec); err == nil {
		t.Fatalf("expected OffsetConflictError committing row 2 before row 1")
	} else if _, ok := err.(*ledger.OffsetConflictError); !ok {
		t.Fatalf("expected *ledger.OffsetConflictError, got %T", err)
	}
}

func TestReopenRecoversSize(t *testing.T) {
	dir := t.TempDir()
	b1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := uint64(1); i <= 5; i++ {
		rec := ledger.RowRecord{InputHash: hashutil.Digest([]byte(strconv.FormatUint(i, 10))), RowHash: hashutil.Digest([]byte(strconv.FormatUint(i, 10)))}
		if err := b1.Commit(i, rec); err != nil {
			t.Fatalf("Commit(%d): %v", i, err)
		}
	}

	b2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	size, err := b2.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 5 {
		t.Fatalf("reopened Size() = %d, want 5", size)
	}
	rec, err := b2.ReadRowCells(3)
	if err != nil {
		t.Fatalf("ReadRowCells(3): %v", err)
	}
	if rec.InputHash != hashutil.Digest([]byte("3")) {
		t.Fatalf("reopened row 3 input hash mismatch")
	}
}

func TestTruncateToShrinksAndDropsTrails(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := uint64(1); i <= 6; i++ {
		rec := ledger.RowRecord{InputHash: hashutil.Digest([]byte(strconv.FormatUint(i, 10))), RowHash: hashutil.Digest([]byte(strconv.FormatUint(i, 10)))}
		if err := b.Commit(i, rec); err != nil {
			t.Fatalf("Commit(%d): %v", i, err)
		}
	}
	trail, err := crumtrail.New(hashutil.Digest([]byte("6")), nil, hashutil.Digest([]byte("6")), 42, "https://example.test/receipt/6")
	if err != nil {
		t.Fatalf("crumtrail.New: %v", err)
	}
	if err := b.PutTrail(6, trail); err != nil {
		t.Fatalf("PutTrail: %v", err)
	}

	if err := b.TruncateTo(3); err != nil {
		t.Fatalf("TruncateTo: %v", err)
	}
	size, err := b.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 3 {
		t.Fatalf("Size() after truncate = %d, want 3", size)
	}
	if _, ok, err := b.GetTrail(6); err != nil {
		t.Fatalf("GetTrail: %v", err)
	} else if ok {
		t.Fatalf("expected crumtrail for row 6 to be dropped after truncate")
	}

	b2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen after truncate: %v", err)
	}
	rns, err := b2.ListTrailRNs()
	if err != nil {
		t.Fatalf("ListTrailRNs: %v", err)
	}
	if len(rns) != 0 {
		t.Fatalf("expected no trails surviving truncate + reopen, got %v", rns)
	}
}

func TestPutTrailAndGetTrailRoundtrip(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	proof := []crumtrail.ProofNode{
		{Sibling: hashutil.Digest([]byte("s0")), Side: crumtrail.SiblingLeft},
		{Sibling: hashutil.Digest([]byte("s1")), Side: crumtrail.SiblingRight},
	}
	trail, err := crumtrail.New(hashutil.Digest([]byte("leaf")), proof, hashutil.Digest([]byte("root")), 7_000, "https://notary.example/x")
	if err != nil {
		t.Fatalf("crumtrail.New: %v", err)
	}
	if err := b.PutTrail(9, trail); err != nil {
		t.Fatalf("PutTrail: %v", err)
	}

	b2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	got, ok, err := b2.GetTrail(9)
	if err != nil {
		t.Fatalf("GetTrail: %v", err)
	}
	if !ok {
		t.Fatalf("expected trail for row 9 to survive reopen")
	}
	if got.HashedValue != trail.HashedValue || got.Root != trail.Root || got.UTCMillis != trail.UTCMillis || got.RefURL != trail.RefURL {
		t.Fatalf("reopened trail = %+v, want %+v", got, trail)
	}
	if len(got.Proof) != len(proof) {
		t.Fatalf("reopened proof length = %d, want %d", len(got.Proof), len(proof))
	}
}

func TestRegisteredInDefaultRegistry(t *testing.T) {
	dir := t.TempDir()
	backend, err := ledger.Open("flatfile", map[string]string{"dir": dir})
	if err != nil {
		t.Fatalf("ledger.Open(flatfile): %v", err)
	}
	if _, ok := backend.(*Backend); !ok {
		t.Fatalf("expected *flatfile.Backend, got %T", backend)
	}
}
