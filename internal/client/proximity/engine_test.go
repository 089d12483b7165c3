package proximity

import (
	"testing"
	"time"

	"github.com/gatherly/office/internal/domain"
)

type recorder struct {
	shares   []domain.SessionID
	ends     []domain.SessionID
	removals []domain.SessionID
}

func (r *recorder) ShareMedia(sid domain.SessionID)    { r.shares = append(r.shares, sid) }
func (r *recorder) EndCall(sid domain.SessionID)       { r.ends = append(r.ends, sid) }
func (r *recorder) SignalRemoval(sid domain.SessionID) { r.removals = append(r.removals, sid) }

func tick(e *Engine, now time.Time, c Candidate) {
	e.Evaluate(now, 0, 0, false, c)
}

func TestPromotionAfterDelay(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(50, 500*time.Millisecond, rec)
	start := time.Unix(100, 0)
	near := Candidate{SessionID: "b", X: 10, Y: 0}

	tick(e, start, near)
	if len(rec.shares) != 0 || !e.HasLink("b") || e.Connected("b") {
		t.Fatalf("first tick must only arm: shares=%v", rec.shares)
	}

	// Still pending just before the threshold.
	tick(e, start.Add(499*time.Millisecond), near)
	if len(rec.shares) != 0 {
		t.Fatal("promoted before delay elapsed")
	}

	tick(e, start.Add(500*time.Millisecond), near)
	if len(rec.shares) != 1 || rec.shares[0] != "b" {
		t.Fatalf("shares = %v, want exactly one to b", rec.shares)
	}
	if !e.Connected("b") {
		t.Fatal("link not marked connected")
	}

	// Staying close must not re-share.
	for i := 1; i <= 10; i++ {
		tick(e, start.Add(500*time.Millisecond+time.Duration(i)*100*time.Millisecond), near)
	}
	if len(rec.shares) != 1 {
		t.Fatalf("promotion fired %d times, want once", len(rec.shares))
	}
}

func TestEarlyDepartureYieldsZeroSignaling(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(50, 500*time.Millisecond, rec)
	start := time.Unix(100, 0)

	tick(e, start, Candidate{SessionID: "b", X: 10, Y: 0})
	// Moves away before the delay elapses.
	tick(e, start.Add(200*time.Millisecond), Candidate{SessionID: "b", X: 1000, Y: 1000})

	if len(rec.shares)+len(rec.ends)+len(rec.removals) != 0 {
		t.Fatalf("stale pending discard must not signal: %+v", rec)
	}
	if e.HasLink("b") {
		t.Fatal("pending link not discarded")
	}
}

func TestConnectedDriftDisconnects(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(50, 500*time.Millisecond, rec)
	start := time.Unix(100, 0)
	near := Candidate{SessionID: "b", X: 10, Y: 0}

	tick(e, start, near)
	tick(e, start.Add(600*time.Millisecond), near)
	if !e.Connected("b") {
		t.Fatal("setup: not connected")
	}

	tick(e, start.Add(time.Second), Candidate{SessionID: "b", X: 1000, Y: 1000})
	if len(rec.ends) != 1 || rec.ends[0] != "b" {
		t.Fatalf("ends = %v", rec.ends)
	}
	if len(rec.removals) != 1 || rec.removals[0] != "b" {
		t.Fatalf("removals = %v", rec.removals)
	}
	if e.LinkCount() != 0 {
		t.Fatal("link map not emptied")
	}

	// Another tick far away must not re-signal.
	tick(e, start.Add(2*time.Second), Candidate{SessionID: "b", X: 1000, Y: 1000})
	if len(rec.ends) != 1 || len(rec.removals) != 1 {
		t.Fatalf("disconnect signaled twice: %+v", rec)
	}
}

func TestZoneEntryOverridesDistance(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(50, 500*time.Millisecond, rec)
	start := time.Unix(100, 0)
	near := Candidate{SessionID: "b", X: 10, Y: 0}

	tick(e, start, near)
	tick(e, start.Add(600*time.Millisecond), near)

	// Peer enters an office while still within radius.
	tick(e, start.Add(time.Second), Candidate{SessionID: "b", X: 10, Y: 0, InZone: true})
	if len(rec.ends) != 1 || len(rec.removals) != 1 {
		t.Fatalf("zone override must disconnect: %+v", rec)
	}
}

func TestNoArmingWhileEitherSideInZone(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(50, 500*time.Millisecond, rec)
	now := time.Unix(100, 0)

	e.Evaluate(now, 0, 0, true, Candidate{SessionID: "b", X: 10, Y: 0})
	if e.HasLink("b") {
		t.Fatal("must not arm while self is in a zone")
	}

	e.Evaluate(now, 0, 0, false, Candidate{SessionID: "b", X: 10, Y: 0, InZone: true})
	if e.HasLink("b") {
		t.Fatal("must not arm while peer is in a zone")
	}
}

func TestScenarioTwoPlayersMeetThenPart(t *testing.T) {
	// A at (0,0), B at (10,0), both outside zones, for 600ms: exactly one
	// promotion per side. B then jumps to (1000,1000): exactly one
	// disconnect per side and both link maps empty.
	recA, recB := &recorder{}, &recorder{}
	engA := NewEngine(50, 500*time.Millisecond, recA)
	engB := NewEngine(50, 500*time.Millisecond, recB)
	start := time.Unix(100, 0)

	for _, dt := range []time.Duration{0, 200 * time.Millisecond, 400 * time.Millisecond, 600 * time.Millisecond} {
		now := start.Add(dt)
		engA.Evaluate(now, 0, 0, false, Candidate{SessionID: "b", X: 10, Y: 0})
		engB.Evaluate(now, 10, 0, false, Candidate{SessionID: "a", X: 0, Y: 0})
	}
	if len(recA.shares) != 1 || len(recB.shares) != 1 {
		t.Fatalf("shares: a=%v b=%v, want one each", recA.shares, recB.shares)
	}

	now := start.Add(time.Second)
	engA.Evaluate(now, 0, 0, false, Candidate{SessionID: "b", X: 1000, Y: 1000})
	engB.Evaluate(now, 1000, 1000, false, Candidate{SessionID: "a", X: 0, Y: 0})

	if len(recA.ends) != 1 || len(recB.ends) != 1 {
		t.Fatalf("ends: a=%v b=%v, want one each", recA.ends, recB.ends)
	}
	if engA.LinkCount() != 0 || engB.LinkCount() != 0 {
		t.Fatal("link maps must be empty on both sides")
	}
}

func TestClearDropsEverythingSilently(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(50, 500*time.Millisecond, rec)
	start := time.Unix(100, 0)

	tick(e, start, Candidate{SessionID: "b", X: 10, Y: 0})
	tick(e, start.Add(600*time.Millisecond), Candidate{SessionID: "b", X: 10, Y: 0})
	tick(e, start, Candidate{SessionID: "c", X: 20, Y: 0})

	e.Clear()
	if e.LinkCount() != 0 {
		t.Fatal("clear left links behind")
	}
	if len(rec.ends) != 0 || len(rec.removals) != 0 {
		t.Fatalf("clear must not signal: %+v", rec)
	}
}

func TestDropEndsCallWithoutSignaling(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(50, 500*time.Millisecond, rec)
	start := time.Unix(100, 0)

	tick(e, start, Candidate{SessionID: "b", X: 10, Y: 0})
	tick(e, start.Add(600*time.Millisecond), Candidate{SessionID: "b", X: 10, Y: 0})

	e.Drop("b")
	if len(rec.ends) != 1 {
		t.Fatalf("ends = %v", rec.ends)
	}
	if len(rec.removals) != 0 {
		t.Fatal("drop must not signal the departed peer")
	}

	// Dropping an unknown peer is a no-op.
	e.Drop("ghost")
	if len(rec.ends) != 1 {
		t.Fatal("drop of unknown peer must not end anything")
	}
}
