// Copyright 2025 Certen Protocol
//
// Crumtrail: the witness-record envelope of §4.8 — a Merkle proof binding
// a row-hash to a root retrieved from an external notary service, plus the
// UTC timestamp the notary attached to that root. The notary itself (its
// submission and retrieval protocol) is out of this core's scope; only the
// verification semantics are implemented here, grounded the same way
// pkg/merkle's VerifyProof in the teacher repo folds a sibling path up to
// a root.

package crumtrail

import (
	"errors"
	"fmt"

	"github.com/certen/skipledger/pkg/hashutil"
)

// Side records which side of the fold a proof node's sibling sits on.
type Side bool

const (
	// SiblingLeft means the sibling combines as SHA256(sibling || current).
	SiblingLeft Side = false
	// SiblingRight means the sibling combines as SHA256(current || sibling).
	SiblingRight Side = true
)

// ProofNode is one step of a Merkle inclusion proof: a sibling hash and
// which side it sits on relative to the hash being folded upward.
type ProofNode struct {
	Sibling hashutil.Hash
	Side    Side
}

// ErrNegativeTimestamp is returned when a crumtrail's UTC timestamp is
// negative; §4.8 requires utc_ms to be non-negative.
var ErrNegativeTimestamp = errors.New("crumtrail: utc_ms must be non-negative")

// RootMismatchError reports that folding a crumtrail's proof from its
// hashed value did not reproduce its declared root.
type RootMismatchError struct {
	Want hashutil.Hash
	Got  hashutil.Hash
}

func (e *RootMismatchError) Error() string {
	return fmt.Sprintf("crumtrail: root mismatch: want %s got %s", e.Want, e.Got)
}

// Crumtrail is the witness record of §4.8: a proof that HashedValue is
// included under Root, notarized at UTCMillis. RefURL is opaque to the
// core — it is whatever the notary service uses to let a caller refetch
// the underlying receipt.
type Crumtrail struct {
	HashedValue hashutil.Hash
	Proof       []ProofNode
	Root        hashutil.Hash
	UTCMillis   int64
	RefURL      string
}

// New constructs a Crumtrail, rejecting a negative timestamp up front so
// invalid trails are never stored.
func New(hashedValue hashutil.Hash, proof []ProofNode, root hashutil.Hash, utcMillis int64, refURL string) (Crumtrail, error) {
	if utcMillis < 0 {
		return Crumtrail{}, ErrNegativeTimestamp
	}
	cp := make([]ProofNode, len(proof))
	copy(cp, proof)
	return Crumtrail{
		HashedValue: hashedValue,
		Proof:       cp,
		Root:        root,
		UTCMillis:   utcMillis,
		RefURL:      refURL,
	}, nil
}

// Verify folds Proof from HashedValue up to Root using the same
// no-domain-separation SHA-256 concatenation rule as §4.2, and reports
// whether the fold reproduces Root.
func (c Crumtrail) Verify() error {
	cur := c.HashedValue
	for _, node := range c.Proof {
		if node.Side == SiblingLeft {
			cur = hashutil.Digest(node.Sibling[:], cur[:])
		} else {
			cur = hashutil.Digest(cur[:], node.Sibling[:])
		}
	}
	if !cur.Equal(c.Root) {
		return &RootMismatchError{Want: c.Root, Got: cur}
	}
	return nil
}

// Witnesses reports whether this crumtrail's hashed value equals the given
// row-hash — i.e. whether it witnesses the row with that hash (and, by the
// skip-ledger's append-only hash chain, every earlier row) at UTCMillis.
func (c Crumtrail) Witnesses(rowHash hashutil.Hash) bool {
	return c.HashedValue.Equal(rowHash)
}
