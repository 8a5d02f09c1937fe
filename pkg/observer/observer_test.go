// Copyright 2025 Certen Protocol

package observer

import (
	"testing"

	"github.com/certen/skipledger/pkg/hashutil"
	"github.com/certen/skipledger/pkg/skiprow"
)

type recordingObserver struct {
	rows      []uint64
	ledgered  []uint64
	endStates []uint64
	stop      bool
}

func (r *recordingObserver) OnRow(row skiprow.Row) { r.rows = append(r.rows, row.N) }
func (r *recordingObserver) OnLedgeredLine(rn uint64, _ hashutil.Hash) {
	r.ledgered = append(r.ledgered, rn)
}
func (r *recordingObserver) OnEndState(rn uint64, _ hashutil.Hash) {
	r.endStates = append(r.endStates, rn)
}
func (r *recordingObserver) NextStateAhead(uint64) bool { return true }
func (r *recordingObserver) StopPlay() bool             { return r.stop }

func TestCompositeForwardsInRegistrationOrder(t *testing.T) {
	first := &recordingObserver{}
	second := &recordingObserver{}
	c := NewComposite(first, second)

	row := skiprow.Row{N: 5}
	c.OnRow(row)
	c.OnLedgeredLine(5, hashutil.Zero)
	c.OnEndState(5, hashutil.Zero)

	for _, r := range []*recordingObserver{first, second} {
		if len(r.rows) != 1 || r.rows[0] != 5 {
			t.Fatalf("OnRow not forwarded: %v", r.rows)
		}
		if len(r.ledgered) != 1 || r.ledgered[0] != 5 {
			t.Fatalf("OnLedgeredLine not forwarded: %v", r.ledgered)
		}
		if len(r.endStates) != 1 || r.endStates[0] != 5 {
			t.Fatalf("OnEndState not forwarded: %v", r.endStates)
		}
	}
}

func TestCompositeStopPlayShortCircuitsOnFirstStop(t *testing.T) {
	wantsStop := &recordingObserver{stop: true}
	neverAsked := &recordingObserver{}
	c := NewComposite(wantsStop, neverAsked)

	if !c.StopPlay() {
		t.Fatalf("StopPlay() = false, want true when any observer requests a stop")
	}
}

func TestCompositeNextStateAheadRequiresUnanimity(t *testing.T) {
	c := NewComposite(&recordingObserver{}, &recordingObserver{})
	if !c.NextStateAhead(1) {
		t.Fatalf("NextStateAhead() = false, want true when every observer agrees")
	}
}

func TestNopObserverSatisfiesInterface(t *testing.T) {
	var o Observer = NopObserver{}
	o.OnRow(skiprow.Row{})
	o.OnLedgeredLine(0, hashutil.Zero)
	o.OnEndState(0, hashutil.Zero)
	if !o.NextStateAhead(0) {
		t.Fatalf("NopObserver.NextStateAhead() = false, want true")
	}
	if o.StopPlay() {
		t.Fatalf("NopObserver.StopPlay() = true, want false")
	}
}
