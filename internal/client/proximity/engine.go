// Package proximity decides, tick by tick, which nearby players the local
// player should be media-linked to. Links live only on this client; their
// effects travel as discrete signaling messages, never as replicated state.
package proximity

import (
	"math"
	"time"

	"github.com/gatherly/office/internal/domain"
)

const (
	// DefaultRadius is the connect/disconnect distance in world units.
	DefaultRadius = 50.0
	// DefaultDelay is how long a candidate must stay in range before the
	// link is promoted. Keeps players walking past each other from churning
	// connections.
	DefaultDelay = 500 * time.Millisecond
)

// Actions receives the engine's decisions. The engine itself never touches
// the network or the media layer.
type Actions interface {
	// ShareMedia initiates an outbound media share to the peer. Both sides
	// evaluate independently and may each decide to share; the media layer
	// treats duplicates as idempotent.
	ShareMedia(sid domain.SessionID)
	// EndCall tears down the local side of an established link.
	EndCall(sid domain.SessionID)
	// SignalRemoval asks the room to tell the peer to drop us too.
	SignalRemoval(sid domain.SessionID)
}

type link struct {
	enterTime time.Time
	connected bool
}

// Candidate is one remote player as known to the local replica this tick.
type Candidate struct {
	SessionID domain.SessionID
	X, Y      float64
	InZone    bool
}

type Engine struct {
	radius float64
	delay  time.Duration
	links  map[domain.SessionID]*link
	acts   Actions
}

func NewEngine(radius float64, delay time.Duration, acts Actions) *Engine {
	if radius <= 0 {
		radius = DefaultRadius
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Engine{
		radius: radius,
		delay:  delay,
		links:  make(map[domain.SessionID]*link),
		acts:   acts,
	}
}

// Evaluate runs the per-peer transition rules once. Disconnect checks come
// before connection attempts, so cleanup always wins over a simultaneous
// connect condition; in particular zone membership overrides raw distance.
func (e *Engine) Evaluate(now time.Time, selfX, selfY float64, selfInZone bool, c Candidate) {
	dist := math.Hypot(c.X-selfX, c.Y-selfY)

	if l, ok := e.links[c.SessionID]; ok && dist > e.radius {
		// Armed but never connected: just forget the timer, nothing was
		// ever signaled.
		if !l.connected {
			delete(e.links, c.SessionID)
			return
		}
		e.disconnect(c.SessionID)
		return
	}

	if l, ok := e.links[c.SessionID]; ok && l.connected && c.InZone {
		// Zone communication supersedes proximity even inside the radius.
		e.disconnect(c.SessionID)
		return
	}

	if dist <= e.radius && !selfInZone && !c.InZone {
		l, ok := e.links[c.SessionID]
		if !ok {
			e.links[c.SessionID] = &link{enterTime: now}
			return
		}
		if !l.connected && now.Sub(l.enterTime) >= e.delay {
			l.connected = true
			e.acts.ShareMedia(c.SessionID)
		}
	}
}

func (e *Engine) disconnect(sid domain.SessionID) {
	e.acts.EndCall(sid)
	delete(e.links, sid)
	e.acts.SignalRemoval(sid)
}

// Drop forgets one peer without signaling it, ending the local call if one
// existed. Used when the peer leaves the room entirely.
func (e *Engine) Drop(sid domain.SessionID) {
	if _, ok := e.links[sid]; ok {
		e.acts.EndCall(sid)
		delete(e.links, sid)
	}
}

// Clear wipes every link and pending timer without signaling; the local
// player just entered a zone and proximity evaluation restarts from scratch
// after it leaves.
func (e *Engine) Clear() {
	e.links = make(map[domain.SessionID]*link)
}

// ConnectedIDs lists peers with established links, for the "stop my camera"
// fan-out outside a zone.
func (e *Engine) ConnectedIDs() []domain.SessionID {
	out := make([]domain.SessionID, 0, len(e.links))
	for sid, l := range e.links {
		if l.connected {
			out = append(out, sid)
		}
	}
	return out
}

func (e *Engine) Connected(sid domain.SessionID) bool {
	l, ok := e.links[sid]
	return ok && l.connected
}

func (e *Engine) HasLink(sid domain.SessionID) bool {
	_, ok := e.links[sid]
	return ok
}

func (e *Engine) LinkCount() int { return len(e.links) }

// LinkedIDs lists every peer with any link, pending or connected.
func (e *Engine) LinkedIDs() []domain.SessionID {
	out := make([]domain.SessionID, 0, len(e.links))
	for sid := range e.links {
		out = append(out, sid)
	}
	return out
}
