package engine

import (
	"sync"

	"github.com/MalikaMari9/GameTheory-BlackJack/internal/protocol"
)

// EventGate decides whether an incoming event should reach the reducer. It
// drops duplicates and events addressed to another session or round, and
// remembers the id of the newest accepted event as the resume cursor for
// sync requests.
type EventGate struct {
	mu          sync.Mutex
	seen        map[string]struct{}
	lastEventID string
}

func NewEventGate() *EventGate {
	return &EventGate{seen: make(map[string]struct{})}
}

// Admit reports whether evt should be applied given the current session and
// round. Round zero on either side is the lobby wildcard. The cursor only
// advances for admitted events, so a replayed sync starts from the last
// event that actually changed state.
func (g *EventGate) Admit(evt *protocol.EventMessage, sessionID string, roundID int) bool {
	if evt == nil {
		return false
	}
	if sessionID != "" && evt.SessionID != "" && evt.SessionID != sessionID {
		return false
	}
	if roundID != 0 && evt.RoundID != 0 && evt.RoundID != roundID {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if evt.EventID != "" {
		if _, dup := g.seen[evt.EventID]; dup {
			return false
		}
		g.seen[evt.EventID] = struct{}{}
		g.lastEventID = evt.EventID
	}
	return true
}

func (g *EventGate) LastEventID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastEventID
}

// Reset drops all dedup state. Used on session teardown; ids from a dead
// session must not shadow a new one.
func (g *EventGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen = make(map[string]struct{})
	g.lastEventID = ""
}
