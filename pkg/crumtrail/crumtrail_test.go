package crumtrail

import (
	"testing"

	"github.com/certen/skipledger/pkg/hashutil"
)

func TestVerify_SingleNode(t *testing.T) {
	leaf := hashutil.Digest([]byte("leaf"))
	sibling := hashutil.Digest([]byte("sibling"))
	root := hashutil.Digest(leaf[:], sibling[:])

	c, err := New(leaf, []ProofNode{{Sibling: sibling, Side: SiblingRight}}, root, 1_000_000, "https://notary.example/r/1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerify_MultiNodeLeftRight(t *testing.T) {
	leaf := hashutil.Digest([]byte("leaf"))
	s1 := hashutil.Digest([]byte("s1"))
	s2 := hashutil.Digest([]byte("s2"))

	step1 := hashutil.Digest(leaf[:], s1[:])
	root := hashutil.Digest(s2[:], step1[:])

	c, err := New(leaf, []ProofNode{
		{Sibling: s1, Side: SiblingRight},
		{Sibling: s2, Side: SiblingLeft},
	}, root, 42, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerify_RejectsTamperedRoot(t *testing.T) {
	leaf := hashutil.Digest([]byte("leaf"))
	sibling := hashutil.Digest([]byte("sibling"))

	c, err := New(leaf, []ProofNode{{Sibling: sibling, Side: SiblingRight}}, hashutil.Zero, 0, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Verify(); err == nil {
		t.Fatalf("expected root mismatch")
	} else if _, ok := err.(*RootMismatchError); !ok {
		t.Fatalf("expected *RootMismatchError, got %T", err)
	}
}

func TestNew_RejectsNegativeTimestamp(t *testing.T) {
	if _, err := New(hashutil.Zero, nil, hashutil.Zero, -1, ""); err != ErrNegativeTimestamp {
		t.Fatalf("expected ErrNegativeTimestamp, got %v", err)
	}
}

func TestWitnesses(t *testing.T) {
	rowHash := hashutil.Digest([]byte("row-64"))
	c, _ := New(rowHash, nil, rowHash, 1_000_000, "")
	if !c.Witnesses(rowHash) {
		t.Fatalf("expected Witnesses to report true for matching hash")
	}
	if c.Witnesses(hashutil.Digest([]byte("other"))) {
		t.Fatalf("expected Witnesses to report false for a different hash")
	}
}
