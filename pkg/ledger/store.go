// Copyright 2025 Certen Protocol
//
// Store is the high-level LedgerStore contract of §4.7: size, append,
// row_hash, row, input_hash, truncate, put_crumtrail, trailed_rns,
// check_integrity, layered over a pluggable Backend. Concurrency follows
// §5: a single writer (append/put_crumtrail/truncate take the exclusive
// lock) and any number of concurrent readers (shared lock), via
// sync.RWMutex — the same "single-writer, wrap with your own
// synchronization" posture the teacher's own
// pkg/ledger/store.go.LedgerStore documents, made concrete here instead
// of left to the caller since §5 requires it of conforming
// implementations.

package ledger

import (
	"log"
	"os"
	"sync"

	"github.com/certen/skipledger/pkg/crumtrail"
	"github.com/certen/skipledger/pkg/frontier"
	"github.com/certen/skipledger/pkg/hashutil"
	"github.com/certen/skipledger/pkg/observer"
	"github.com/certen/skipledger/pkg/rownum"
	"github.com/certen/skipledger/pkg/skiprow"
)

// Store is the memo-ized ledger store (§9 "memo-ized vs. stateless
// builders"): it owns an in-memory frontier.Frontier alongside whatever
// Backend persists, and keeps the two in lockstep so Append never has to
// re-derive history.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	front   *frontier.Frontier
	metrics *Metrics
	log     *log.Logger
	obs     observer.Observer
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithMetrics attaches a Metrics set to the store.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLogger overrides the store's logger (default: stdlib log with a
// "[ledger] " prefix, matching the teacher's
// log.New(log.Writer(), "[Database] ", log.LstdFlags) convention).
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithObserver attaches an observer.Observer notified of every append:
// OnRow with the freshly committed row, OnLedgeredLine once its hash is
// known, and OnEndState after each append since the store's frontier has
// no fixed end. Pass an observer.NewComposite to fan out to several.
func WithObserver(o observer.Observer) Option {
	return func(s *Store) { s.obs = o }
}

// Open constructs a Store atop backend, replaying its persisted rows to
// rebuild the in-memory frontier. Replaying is O(size) but happens only
// once, at open.
func Open(backend Backend, opts ...Option) (*Store, error) {
	s := &Store{
		backend: backend,
		front:   frontier.New(),
		log:     log.New(os.Stderr, "[ledger] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}

	size, err := backend.Size()
	if err != nil {
		return nil, err
	}
	for rn := uint64(1); rn <= size; rn++ {
		hIn, err := backend.ReadInputHash(rn)
		if err != nil {
			return nil, err
		}
		s.front.Advance(hIn)
	}
	return s, nil
}

// Size returns the current ledger length.
func (s *Store) Size() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.front.RN()
}

// Append advances the frontier with hIn and durably persists the new
// row, returning its row number. Exclusive: serialized against every
// other writer per §5.
func (s *Store) Append(hIn hashutil.Hash) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rowHash, newRN := s.front.Advance(hIn)
	if err := s.backend.Commit(newRN, RowRecord{InputHash: hIn, RowHash: rowHash}); err != nil {
		// Undo the advance so the frontier still matches the persisted rows.
		rebuilt := frontier.New()
		for rn := uint64(1); rn < newRN; rn++ {
			h, rerr := s.backend.ReadInputHash(rn)
			if rerr != nil {
				return 0, err
			}
			rebuilt.Advance(h)
		}
		s.front = rebuilt
		return 0, err
	}
	s.metrics.observeAppend(len(s.front.Levels()))
	s.notifyAppend(newRN, hIn, rowHash)
	return newRN, nil
}

// notifyAppend fires the observer hooks for a freshly committed row.
// Called with s.mu already held exclusively, so it reads pointer hashes
// directly off the backend/frontier rather than through the locking
// RowHash accessor.
func (s *Store) notifyAppend(rn uint64, hIn, rowHash hashutil.Hash) {
	if s.obs == nil {
		return
	}
	pointers := rownum.PointerRNs(rn)
	pointerHashes := make([]hashutil.Hash, len(pointers))
	for i, p := range pointers {
		if p == 0 {
			pointerHashes[i] = hashutil.Zero
			continue
		}
		h, err := s.unlockedRowHash(p)
		if err != nil {
			return
		}
		pointerHashes[i] = h
	}
	row, err := skiprow.New(rn, hIn, pointerHashes)
	if err != nil {
		return
	}
	s.obs.OnRow(row)
	s.obs.OnLedgeredLine(rn, rowHash)
	s.obs.OnEndState(rn, rowHash)
}

// unlockedRowHash is RowHash's backend lookup without the RLock, for use
// by callers that already hold s.mu.
func (s *Store) unlockedRowHash(rn uint64) (hashutil.Hash, error) {
	if rn == 0 {
		return hashutil.Zero, nil
	}
	if rn == s.front.RN() {
		return s.front.RowHash(), nil
	}
	rec, err := s.backend.ReadRowCells(rn)
	if err != nil {
		return hashutil.Hash{}, err
	}
	return rec.RowHash, nil
}

// RowHash returns H(rn) for 0 <= rn <= Size().
func (s *Store) RowHash(rn uint64) (hashutil.Hash, error) {
	if rn == 0 {
		return hashutil.Zero, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.metrics.observeRowFetch()

	if rn > s.front.RN() {
		return hashutil.Hash{}, &MissingRowError{RN: rn}
	}
	if rn == s.front.RN() {
		return s.front.RowHash(), nil
	}
	rec, err := s.backend.ReadRowCells(rn)
	if err != nil {
		return hashutil.Hash{}, err
	}
	return rec.RowHash, nil
}

// InputHash returns h_in(rn) for 1 <= rn <= Size().
func (s *Store) InputHash(rn uint64) (hashutil.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.metrics.observeRowFetch()

	if rn < 1 || rn > s.front.RN() {
		return hashutil.Hash{}, &MissingRowError{RN: rn}
	}
	return s.backend.ReadInputHash(rn)
}

// Row reconstructs the full row numbered rn: its input-hash and the
// row-hashes of each of its pointer rows (§4.7 "fetch the k(rn) pointer
// hashes").
func (s *Store) Row(rn uint64) (skiprow.Row, error) {
	if rn == 0 {
		return skiprow.RowZero(), nil
	}
	hIn, err := s.InputHash(rn)
	if err != nil {
		return skiprow.Row{}, err
	}
	pointers := rownum.PointerRNs(rn)
	pointerHashes := make([]hashutil.Hash, len(pointers))
	for i, p := range pointers {
		h, err := s.RowHash(p)
		if err != nil {
			return skiprow.Row{}, err
		}
		pointerHashes[i] = h
	}
	return skiprow.New(rn, hIn, pointerHashes)
}

// Truncate destroys rows newSize+1..Size() and any crumtrails indexed
// past newSize, then rebuilds the in-memory frontier to F(newSize).
// Exclusive, per §5; truncate_to is the only operation permitted to
// delete committed data (§7).
func (s *Store) Truncate(newSize uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.TruncateTo(newSize); err != nil {
		return err
	}
	rebuilt := frontier.New()
	for rn := uint64(1); rn <= newSize; rn++ {
		hIn, err := s.backend.ReadInputHash(rn)
		if err != nil {
			return err
		}
		rebuilt.Advance(hIn)
	}
	s.front = rebuilt
	s.metrics.observeTruncate(len(s.front.Levels()))
	return nil
}

// PutCrumtrail validates trail.HashedValue == H(rn) and stores it.
// Exclusive, per §5.
func (s *Store) PutCrumtrail(rn uint64, trail crumtrail.Crumtrail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rn > s.front.RN() {
		return &MissingRowError{RN: rn}
	}
	var rowHash hashutil.Hash
	if rn == s.front.RN() {
		rowHash = s.front.RowHash()
	} else if rn == 0 {
		rowHash = hashutil.Zero
	} else {
		rec, err := s.backend.ReadRowCells(rn)
		if err != nil {
			return err
		}
		rowHash = rec.RowHash
	}
	if !trail.Witnesses(rowHash) {
		return &HashConflictError{RN: rn, Want: rowHash, Got: trail.HashedValue}
	}
	return s.backend.PutTrail(rn, trail)
}

// Crumtrail retrieves the crumtrail stored for rn, if any.
func (s *Store) Crumtrail(rn uint64) (crumtrail.Crumtrail, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.GetTrail(rn)
}

// TrailedRNs returns the ascending list of row numbers with a stored
// crumtrail.
func (s *Store) TrailedRNs() ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.ListTrailRNs()
}

// CheckIntegrity re-derives row-hashes from persisted input-hashes over
// [fromRN, toRN] and reports the first conflict. cancel, if non-nil, is
// checked at each row boundary (§5 "Suspension points" / "Cancellation");
// a close of the channel aborts with ErrCancelled, leaving the store
// untouched (this is a read-only scan).
func (s *Store) CheckIntegrity(fromRN, toRN uint64, cancel <-chan struct{}) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	known := make(map[uint64]hashutil.Hash)
	known[0] = hashutil.Zero
	for rn := fromRN; rn <= toRN; rn++ {
		select {
		case <-cancel:
			return ErrCancelled
		default:
		}
		if s.obs != nil && s.obs.StopPlay() {
			return ErrCancelled
		}
		if rn == 0 {
			continue
		}
		hIn, err := s.backend.ReadInputHash(rn)
		if err != nil {
			return err
		}
		pointers := rownum.PointerRNs(rn)
		pointerHashes := make([]hashutil.Hash, len(pointers))
		for i, p := range pointers {
			h, ok := known[p]
			if !ok {
				rec, err := s.backend.ReadRowCells(p)
				if err != nil {
					return err
				}
				h = rec.RowHash
				known[p] = h
			}
			pointerHashes[i] = h
		}
		row, err := skiprow.New(rn, hIn, pointerHashes)
		if err != nil {
			return err
		}
		rec, err := s.backend.ReadRowCells(rn)
		if err != nil {
			return err
		}
		if got := row.Hash(); !got.Equal(rec.RowHash) {
			return &HashConflictError{RN: rn, Want: rec.RowHash, Got: got}
		}
		known[rn] = rec.RowHash
	}
	return nil
}
