// Copyright 2025 Certen Protocol
//
// Integration tests against a real Postgres instance. Uses a test
// database or skips, the same way
// pkg/database/proof_artifact_repository_test.go gates its suite on
// CERTEN_TEST_DB.

package relational

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/certen/skipledger/pkg/crumtrail"
	"github.com/certen/skipledger/pkg/hashutil"
	"github.com/certen/skipledger/pkg/ledger"
)

func testBackend(t *testing.T) *Backend {
	t.Helper()
	dsn := os.Getenv("SKIPLEDGER_TEST_DSN")
	if dsn == "" {
		t.Skip("SKIPLEDGER_TEST_DSN not configured; skipping relational integration tests")
	}
	b, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = b.TruncateTo(0)
		b.Close()
	})
	return b
}

func TestBackendCommitAndRead(t *testing.T) {
	b := testBackend(t)
	for i := uint64(1); i <= 5; i++ {
		rec := ledger.RowRecord{
			InputHash: hashutil.Digest([]byte(strconv.FormatUint(i, 10))),
			RowHash:   hashutil.Digest([]byte("row"), []byte(strconv.FormatUint(i, 10))),
		}
		require.NoError(t, b.Commit(i, rec))
	}
	size, err := b.Size()
	require.NoError(t, err)
	require.Equal(t, uint64(5), size)

	got, err := b.ReadRowCells(3)
	require.NoError(t, err)
	require.Equal(t, hashutil.Digest([]byte("3")), got.InputHash)
}

func TestBackendCommitRejectsOutOfOrder(t *testing.T) {
	b := testBackend(t)
	err := b.Commit(2, ledger.RowRecord{InputHash: hashutil.Digest([]byte("x")), RowHash: hashutil.Digest([]byte("y"))})
	require.Error(t, err)
	_, ok := err.(*ledger.OffsetConflictError)
	require.True(t, ok)
}

func TestBackendTrailRoundtrip(t *testing.T) {
	b := testBackend(t)
	require.NoError(t, b.Commit(1, ledger.RowRecord{InputHash: hashutil.Digest([]byte("1")), RowHash: hashutil.Digest([]byte("h1"))}))

	proof := []crumtrail.ProofNode{
		{Sibling: hashutil.Digest([]byte("s0")), Side: crumtrail.SiblingLeft},
		{Sibling: hashutil.Digest([]byte("s1")), Side: crumtrail.SiblingRight},
	}
	trail, err := crumtrail.New(hashutil.Digest([]byte("h1")), proof, hashutil.Digest([]byte("root")), 5000, "https://notary.example/r1")
	require.NoError(t, err)
	require.NoError(t, b.PutTrail(1, trail))

	got, ok, err := b.GetTrail(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, trail.HashedValue, got.HashedValue)
	require.Equal(t, trail.Root, got.Root)
	require.Equal(t, trail.UTCMillis, got.UTCMillis)
	require.Len(t, got.Proof, 2)

	rns, err := b.ListTrailRNs()
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, rns)
}

func TestBackendTruncateDropsTrails(t *testing.T) {
	b := testBackend(t)
	for i := uint64(1); i <= 4; i++ {
		require.NoError(t, b.Commit(i, ledger.RowRecord{
			InputHash: hashutil.Digest([]byte(strconv.FormatUint(i, 10))),
			RowHash:   hashutil.Digest([]byte(strconv.FormatUint(i, 10))),
		}))
	}
	trail, err := crumtrail.New(hashutil.Digest([]byte("4")), nil, hashutil.Digest([]byte("4")), 1, "")
	require.NoError(t, err)
	require.NoError(t, b.PutTrail(4, trail))

	require.NoError(t, b.TruncateTo(2))
	size, err := b.Size()
	require.NoError(t, err)
	require.Equal(t, uint64(2), size)

	_, ok, err := b.GetTrail(4)
	require.NoError(t, err)
	require.False(t, ok)
}
