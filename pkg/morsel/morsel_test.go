// Copyright 2025 Certen Protocol

package morsel

import (
	"strconv"
	"testing"

	"github.com/certen/skipledger/pkg/crumtrail"
	"github.com/certen/skipledger/pkg/hashutil"
	"github.com/certen/skipledger/pkg/ledger"
	"github.com/certen/skipledger/pkg/ledger/flatfile"
	"github.com/certen/skipledger/pkg/skiprow"
	"github.com/certen/skipledger/pkg/sourcerow"
)

func openTestStore(t *testing.T, n int) *ledger.Store {
	t.Helper()
	backend, err := flatfile.Open(t.TempDir())
	if err != nil {
		t.Fatalf("flatfile.Open: %v", err)
	}
	store, err := ledger.Open(backend)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	for i := 1; i <= n; i++ {
		if _, err := store.Append(hashutil.Digest([]byte(strconv.Itoa(i)))); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}
	return store
}

func TestBuildVerifyRoundTrip(t *testing.T) {
	store := openTestStore(t, 8)

	m, err := Build(store, 8, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := Verify(m); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	encoded, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if err := Verify(decoded); err != nil {
		t.Fatalf("Verify(decoded): %v", err)
	}
	if decoded.HiRN != m.HiRN || !decoded.HiHash.Equal(m.HiHash) {
		t.Fatalf("decoded declared state mismatch: got (%d,%s) want (%d,%s)", decoded.HiRN, decoded.HiHash, m.HiRN, m.HiHash)
	}

	reEncoded, err := Encode(decoded)
	if err != nil {
		t.Fatalf("re-Encode: %v", err)
	}
	if string(reEncoded) != string(encoded) {
		t.Fatalf("encode(decode(encode(m))) != encode(m): round trip is not byte-stable")
	}
}

func TestVerifyRejectsBrokenLink(t *testing.T) {
	store := openTestStore(t, 4)
	m, err := Build(store, 4, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	row4 := m.Rows[4]
	cellsCopy := append([]hashutil.Hash(nil), row4.Row.Cells...)
	// Row 4's cells are [h_in(4), H(3), H(2), H(0)]; zero out H(2).
	cellsCopy[2] = hashutil.Zero
	tamperedRow := skiprow.Row{N: 4, Cells: cellsCopy}
	m.Rows[4] = RowEntry{RN: 4, Row: &tamperedRow, Hash: tamperedRow.Hash()}
	m.HiHash = tamperedRow.Hash()

	err = Verify(m)
	if err == nil {
		t.Fatalf("Verify: expected LinkBrokenError, got nil")
	}
	if _, ok := err.(*LinkBrokenError); !ok {
		t.Fatalf("Verify: got %T (%v), want *LinkBrokenError", err, err)
	}
}

func TestRedactionPreservesInputHash(t *testing.T) {
	store := openTestStore(t, 4)
	seed := hashutil.Digest([]byte("seed for row 5 redaction test"))

	row5 := sourcerow.Row{RN: 5, Columns: []sourcerow.Value{
		sourcerow.String("alice"),
		sourcerow.Long(42),
		sourcerow.String("secret"),
	}}
	inputHash, err := sourcerow.InputHash(seed, row5)
	if err != nil {
		t.Fatalf("sourcerow.InputHash: %v", err)
	}
	if _, err := store.Append(inputHash); err != nil {
		t.Fatalf("Append row 5: %v", err)
	}
	for i := 6; i <= 8; i++ {
		if _, err := store.Append(hashutil.Digest([]byte(strconv.Itoa(i)))); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	cols := make([]SourceColumn, len(row5.Columns))
	for i, v := range row5.Columns {
		cols[i] = SourceColumn{Value: v, Salt: sourcerow.DeriveSalt(seed, 5, i+1)}
	}
	sources := map[uint64]SourceRow{5: {RN: 5, Columns: cols}}

	m, err := BuildWithSources(store, 8, sources)
	if err != nil {
		t.Fatalf("BuildWithSources: %v", err)
	}
	if err := Verify(m); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	before, err := m.Sources[5].InputHash()
	if err != nil {
		t.Fatalf("InputHash before redaction: %v", err)
	}
	if !before.Equal(inputHash) {
		t.Fatalf("input hash before redaction = %s, want %s", before, inputHash)
	}

	redacted, err := Redact(m, []uint64{5}, []int{3})
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	if err := Verify(redacted); err != nil {
		t.Fatalf("Verify(redacted): %v", err)
	}

	after, err := redacted.Sources[5].InputHash()
	if err != nil {
		t.Fatalf("InputHash after redaction: %v", err)
	}
	if !after.Equal(inputHash) {
		t.Fatalf("input hash after redaction = %s, want unchanged %s", after, inputHash)
	}
	if redacted.Sources[5].Columns[2].Value.Kind != sourcerow.KindHash {
		t.Fatalf("column 3 kind = %v, want KindHash after redaction", redacted.Sources[5].Columns[2].Value.Kind)
	}
	if redacted.Sources[5].Columns[0].Value.Kind != sourcerow.KindString {
		t.Fatalf("column 1 kind changed by redacting column 3")
	}
}

func TestCrumtrailPropagatesMinimumAge(t *testing.T) {
	store := openTestStore(t, 64)
	h64, err := store.RowHash(64)
	if err != nil {
		t.Fatalf("RowHash(64): %v", err)
	}
	trail, err := crumtrail.New(h64, nil, h64, 1_000_000, "https://notary.example/receipt/1")
	if err != nil {
		t.Fatalf("crumtrail.New: %v", err)
	}
	if err := store.PutCrumtrail(64, trail); err != nil {
		t.Fatalf("PutCrumtrail: %v", err)
	}

	m, err := Build(store, 64, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := Verify(m); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	for _, rn := range []uint64{1, 2, 4, 8, 16, 32, 64} {
		if _, ok := m.Rows[rn]; !ok {
			t.Fatalf("expected row %d in state-path row set, got %v", rn, m.sortedRowRNs())
		}
	}
	got, ok := m.Trails[64]
	if !ok {
		t.Fatalf("crumtrail for row 64 not carried into morsel")
	}
	if got.UTCMillis != 1_000_000 {
		t.Fatalf("crumtrail UTCMillis = %d, want 1000000", got.UTCMillis)
	}
}

func TestMergeFailsOnConflictingLineage(t *testing.T) {
	storeA := openTestStore(t, 100)
	storeB := openTestStore(t, 100)
	mA, err := Build(storeA, 100, nil)
	if err != nil {
		t.Fatalf("Build A: %v", err)
	}
	mB, err := Build(storeB, 100, nil)
	if err != nil {
		t.Fatalf("Build B: %v", err)
	}
	// Force a genuine lineage conflict: mutate B's declared hash only.
	mB.HiHash = hashutil.Digest([]byte("a different ledger entirely"))
	mB.Rows[100] = RowEntry{RN: 100, Hash: mB.HiHash}

	_, err = Merge([]*Morsel{mA, mB})
	if err == nil {
		t.Fatalf("Merge: expected HashConflictError, got nil")
	}
	if _, ok := err.(*HashConflictError); !ok {
		t.Fatalf("Merge: got %T (%v), want *HashConflictError", err, err)
	}
}

func TestMergeSucceedsWhenOneIsAncestor(t *testing.T) {
	store := openTestStore(t, 900)

	mA, err := Build(store, 300, nil)
	if err != nil {
		t.Fatalf("Build A: %v", err)
	}
	mB, err := Build(store, 900, []uint64{300})
	if err != nil {
		t.Fatalf("Build B: %v", err)
	}

	merged, err := Merge([]*Morsel{mA, mB})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if merged.HiRN != 900 {
		t.Fatalf("merged.HiRN = %d, want 900 (B is the authority)", merged.HiRN)
	}
	if !merged.HiHash.Equal(mB.HiHash) {
		t.Fatalf("merged.HiHash != B.HiHash")
	}
	if err := Verify(merged); err != nil {
		t.Fatalf("Verify(merged): %v", err)
	}
	for rn := range mA.Rows {
		if _, ok := merged.Rows[rn]; !ok {
			t.Fatalf("merged morsel dropped row %d carried by A", rn)
		}
	}
}

func TestAssetBindingRoundTripAndTamperDetection(t *testing.T) {
	store := openTestStore(t, 4)
	seed := hashutil.Digest([]byte("seed for asset-binding test"))
	asset := []byte("report template contents")
	assetHash := hashutil.Digest(asset)

	row5 := sourcerow.Row{RN: 5, Columns: []sourcerow.Value{
		sourcerow.String("report"),
		sourcerow.Bytes(assetHash[:]),
	}}
	inputHash, err := sourcerow.InputHash(seed, row5)
	if err != nil {
		t.Fatalf("sourcerow.InputHash: %v", err)
	}
	if _, err := store.Append(inputHash); err != nil {
		t.Fatalf("Append row 5: %v", err)
	}
	for i := 6; i <= 8; i++ {
		if _, err := store.Append(hashutil.Digest([]byte(strconv.Itoa(i)))); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	cols := make([]SourceColumn, len(row5.Columns))
	for i, v := range row5.Columns {
		cols[i] = SourceColumn{Value: v, Salt: sourcerow.DeriveSalt(seed, 5, i+1)}
	}
	sources := map[uint64]SourceRow{5: {RN: 5, Columns: cols}}

	m, err := BuildWithSources(store, 8, sources)
	if err != nil {
		t.Fatalf("BuildWithSources: %v", err)
	}
	if err := m.AttachAsset(asset, 5, 2); err != nil {
		t.Fatalf("AttachAsset: %v", err)
	}
	if err := Verify(m); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	encoded, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if err := Verify(decoded); err != nil {
		t.Fatalf("Verify(decoded): %v", err)
	}
	if decoded.AssetRN != 5 || decoded.AssetCol != 2 {
		t.Fatalf("decoded asset anchor = (%d,%d), want (5,2)", decoded.AssetRN, decoded.AssetCol)
	}

	// Swapping both the asset bytes and its recorded hash together must
	// still fail, since the anchor column (chained to hi_hash) disagrees.
	swapped := decoded.Clone()
	forged := []byte("a different report entirely")
	swapped.Asset = forged
	swapped.AssetHash = hashutil.Digest(forged)
	if err := Verify(swapped); err == nil {
		t.Fatalf("Verify: expected failure on forged asset, got nil")
	}
}

func TestAttachAssetRejectsUnanchoredColumn(t *testing.T) {
	store := openTestStore(t, 4)
	seed := hashutil.Digest([]byte("seed for unanchored asset test"))
	row5 := sourcerow.Row{RN: 5, Columns: []sourcerow.Value{sourcerow.String("not the asset hash")}}
	inputHash, err := sourcerow.InputHash(seed, row5)
	if err != nil {
		t.Fatalf("sourcerow.InputHash: %v", err)
	}
	if _, err := store.Append(inputHash); err != nil {
		t.Fatalf("Append row 5: %v", err)
	}

	cols := []SourceColumn{{Value: row5.Columns[0], Salt: sourcerow.DeriveSalt(seed, 5, 1)}}
	sources := map[uint64]SourceRow{5: {RN: 5, Columns: cols}}
	m, err := BuildWithSources(store, 5, sources)
	if err != nil {
		t.Fatalf("BuildWithSources: %v", err)
	}

	err = m.AttachAsset([]byte("asset bytes"), 5, 1)
	if err == nil {
		t.Fatalf("AttachAsset: expected error, got nil")
	}
	if _, ok := err.(*IntegrityFailureError); !ok {
		t.Fatalf("AttachAsset: got %T (%v), want *IntegrityFailureError", err, err)
	}
}

func TestMergeIdempotent(t *testing.T) {
	store := openTestStore(t, 16)
	m, err := Build(store, 16, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	merged, err := Merge([]*Morsel{m, m})
	if err != nil {
		t.Fatalf("Merge(m, m): %v", err)
	}
	wantBytes, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode(m): %v", err)
	}
	gotBytes, err := Encode(merged)
	if err != nil {
		t.Fatalf("Encode(merged): %v", err)
	}
	if string(gotBytes) != string(wantBytes) {
		t.Fatalf("Merge(m, m) is not byte-identical to m")
	}
}
