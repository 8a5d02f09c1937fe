// Copyright 2025 Certen Protocol
//
// Crumtrail persistence for the flat-file backend: an append-only
// length-prefixed log, replayed into an in-memory index at Open. Later
// records for the same row number supersede earlier ones. §6 only
// specifies a crumtrail schema for the relational backend (the trail
// table); this log is the flat-file analogue.

package flatfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/certen/skipledger/pkg/crumtrail"
	"github.com/certen/skipledger/pkg/hashutil"
	"github.com/certen/skipledger/pkg/ledger"
)

func (b *Backend) trailsPath() string {
	return filepath.Join(b.dir, "trails.log")
}

func (b *Backend) loadTrails() error {
	f, err := os.Open(b.trailsPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("flatfile: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		rn, trail, err := decodeTrail(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		b.trails[rn] = trail
	}
	return nil
}

func (b *Backend) PutTrail(rn uint64, trail crumtrail.Crumtrail) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, err := os.OpenFile(b.trailsPath(), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("flatfile: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(encodeTrail(rn, trail)); err != nil {
		return fmt.Errorf("flatfile: %w", err)
	}
	b.trails[rn] = trail
	return nil
}

func (b *Backend) GetTrail(rn uint64) (crumtrail.Crumtrail, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.trails[rn]
	return t, ok, nil
}

func (b *Backend) ListTrailRNs() ([]uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]uint64, 0, len(b.trails))
	for rn := range b.trails {
		out = append(out, rn)
	}
	insertionSortU64(out)
	return out, nil
}

// rewriteTrails rewrites trails.log from scratch using b.trails, called
// after a truncate drops some entries from the map.
func (b *Backend) rewriteTrails() error {
	tmp := b.trailsPath() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("flatfile: %w", err)
	}
	rns := make([]uint64, 0, len(b.trails))
	for rn := range b.trails {
		rns = append(rns, rn)
	}
	insertionSortU64(rns)
	for _, rn := range rns {
		if _, err := f.Write(encodeTrail(rn, b.trails[rn])); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, b.trailsPath())
}

func encodeTrail(rn uint64, t crumtrail.Crumtrail) []byte {
	buf := make([]byte, 0, 8+32+32+8+2+len(t.Proof)*33+2+len(t.RefURL))
	buf = appendU64(buf, rn)
	buf = append(buf, t.HashedValue[:]...)
	buf = append(buf, t.Root[:]...)
	buf = appendU64(buf, uint64(t.UTCMillis))
	buf = appendU16(buf, uint16(len(t.Proof)))
	for _, node := range t.Proof {
		side := byte(0)
		if node.Side == crumtrail.SiblingRight {
			side = 1
		}
		buf = append(buf, side)
		buf = append(buf, node.Sibling[:]...)
	}
	buf = appendU16(buf, uint16(len(t.RefURL)))
	buf = append(buf, []byte(t.RefURL)...)
	return buf
}

func decodeTrail(r *bufio.Reader) (uint64, crumtrail.Crumtrail, error) {
	rn, err := readU64(r)
	if err != nil {
		return 0, crumtrail.Crumtrail{}, err
	}
	hashedValue, err := readHash(r)
	if err != nil {
		return 0, crumtrail.Crumtrail{}, unexpectedEOF(err)
	}
	root, err := readHash(r)
	if err != nil {
		return 0, crumtrail.Crumtrail{}, unexpectedEOF(err)
	}
	utcMillis, err := readU64(r)
	if err != nil {
		return 0, crumtrail.Crumtrail{}, unexpectedEOF(err)
	}
	proofCount, err := readU16(r)
	if err != nil {
		return 0, crumtrail.Crumtrail{}, unexpectedEOF(err)
	}
	proof := make([]crumtrail.ProofNode, proofCount)
	for i := range proof {
		sideByte, err := r.ReadByte()
		if err != nil {
			return 0, crumtrail.Crumtrail{}, unexpectedEOF(err)
		}
		sibling, err := readHash(r)
		if err != nil {
			return 0, crumtrail.Crumtrail{}, unexpectedEOF(err)
		}
		side := crumtrail.SiblingLeft
		if sideByte == 1 {
			side = crumtrail.SiblingRight
		}
		proof[i] = crumtrail.ProofNode{Sibling: sibling, Side: side}
	}
	urlLen, err := readU16(r)
	if err != nil {
		return 0, crumtrail.Crumtrail{}, unexpectedEOF(err)
	}
	urlBytes := make([]byte, urlLen)
	if _, err := io.ReadFull(r, urlBytes); err != nil {
		return 0, crumtrail.Crumtrail{}, unexpectedEOF(err)
	}
	trail, err := crumtrail.New(hashedValue, proof, root, int64(utcMillis), string(urlBytes))
	if err != nil {
		return 0, crumtrail.Crumtrail{}, &ledger.InvalidFormatError{Section: "trails.log", Detail: err.Error()}
	}
	return rn, trail, nil
}

func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func appendU64(buf []byte, v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return append(buf, b...)
}

func appendU16(buf []byte, v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return append(buf, b...)
}

func readU64(r io.Reader) (uint64, error) {
	b := make([]byte, 8)
	if _, err := io.ReadFull(r, b); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func readU16(r io.Reader) (uint16, error) {
	b := make([]byte, 2)
	if _, err := io.ReadFull(r, b); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func readHash(r io.Reader) (hashutil.Hash, error) {
	b := make([]byte, hashutil.Size)
	if _, err := io.ReadFull(r, b); err != nil {
		return hashutil.Hash{}, err
	}
	return hashutil.FromBytes(b)
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
