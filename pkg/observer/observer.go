// Copyright 2025 Certen Protocol
//
// observer re-architects DESIGN NOTES §9's "cyclic listener chains /
// multiple inheritance of behaviour": the source blended a base hasher
// with optional observers (state recorder, block recorder, end-state
// recorder, morsel conflict checker) through a class hierarchy. Here
// that becomes a small set of observer interfaces invoked by ledger.Store
// (Append, CheckIntegrity) in a fixed, documented order, and a
// composite that forwards to a held list — no class hierarchy, grounded
// on the same sync.RWMutex-guarded list-holding shape as
// pkg/strategy/registry.go, simplified to a plain slice since observer
// registration is a construction-time concern, not a runtime one.
package observer

import (
	"github.com/certen/skipledger/pkg/hashutil"
	"github.com/certen/skipledger/pkg/skiprow"
)

// Observer is notified of skip-ledger progress in the fixed order:
// OnRow, OnLedgeredLine, OnEndState, for every row ledger.Store appends;
// StopPlay is polled at each row boundary of Store.CheckIntegrity to let an
// observer request an early abort. No caller in this module polls
// NextStateAhead, and morsel verification does not notify observers.
type Observer interface {
	// OnRow is called with a row's full cells as soon as they are known.
	OnRow(row skiprow.Row)

	// OnLedgeredLine is called once a row's hash has been confirmed to
	// chain correctly (e.g. cross-checked against a known pointer hash,
	// or freshly computed by an append).
	OnLedgeredLine(rn uint64, rowHash hashutil.Hash)

	// OnEndState is called with the latest row's number and hash — the
	// terminal commitment; ledger.Store calls it after every append.
	OnEndState(rn uint64, rowHash hashutil.Hash)

	// NextStateAhead reports whether the observer wants the parser to
	// continue past rn. Composite combines it across observers; no caller
	// in this module polls it.
	NextStateAhead(rn uint64) bool

	// StopPlay reports whether the parser should abort before
	// processing any further rows.
	StopPlay() bool
}

// Composite forwards every call to its held observers, in registration
// order. StopPlay short-circuits at the first observer that requests a
// stop; NextStateAhead is true only if every observer wants to continue.
type Composite struct {
	observers []Observer
}

// NewComposite builds a Composite forwarding to obs, in the given order.
func NewComposite(obs ...Observer) *Composite {
	return &Composite{observers: append([]Observer(nil), obs...)}
}

func (c *Composite) OnRow(row skiprow.Row) {
	for _, o := range c.observers {
		o.OnRow(row)
	}
}

func (c *Composite) OnLedgeredLine(rn uint64, rowHash hashutil.Hash) {
	for _, o := range c.observers {
		o.OnLedgeredLine(rn, rowHash)
	}
}

func (c *Composite) OnEndState(rn uint64, rowHash hashutil.Hash) {
	for _, o := range c.observers {
		o.OnEndState(rn, rowHash)
	}
}

func (c *Composite) NextStateAhead(rn uint64) bool {
	for _, o := range c.observers {
		if !o.NextStateAhead(rn) {
			return false
		}
	}
	return true
}

func (c *Composite) StopPlay() bool {
	for _, o := range c.observers {
		if o.StopPlay() {
			return true
		}
	}
	return false
}

// NopObserver implements Observer with no-ops, embeddable by callers who
// only care about one or two of the five hooks.
type NopObserver struct{}

func (NopObserver) OnRow(skiprow.Row)                   {}
func (NopObserver) OnLedgeredLine(uint64, hashutil.Hash) {}
func (NopObserver) OnEndState(uint64, hashutil.Hash)     {}
func (NopObserver) NextStateAhead(uint64) bool           { return true }
func (NopObserver) StopPlay() bool                       { return false }
