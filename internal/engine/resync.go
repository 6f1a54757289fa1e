package engine

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	// Best-effort requests closer together than this are absorbed.
	resyncSpacing = 250 * time.Millisecond
	// A request with no snapshot reply stops blocking after this long.
	resyncTimeout = 2 * time.Second
)

// ResyncCoordinator rate-limits snapshot resync requests. Best-effort
// triggers (heartbeat, tab focus, network-online) coalesce; forced triggers
// (reconnect, phase change, explicit user refresh) always go out.
type ResyncCoordinator struct {
	clock clockwork.Clock
	log   zerolog.Logger
	ready func() bool
	send  func() error

	mu       sync.Mutex
	inFlight bool
	lastAt   time.Time
	clear    clockwork.Timer
}

func NewResyncCoordinator(clock clockwork.Clock, log zerolog.Logger, ready func() bool, send func() error) *ResyncCoordinator {
	return &ResyncCoordinator{clock: clock, log: log, ready: ready, send: send}
}

// Request asks the server for a fresh snapshot. A best-effort request is
// dropped while one is in flight or within the spacing window of the last
// one; a forced request bypasses both.
func (c *ResyncCoordinator) Request(force bool) {
	if !c.ready() {
		return
	}

	now := c.clock.Now()
	c.mu.Lock()
	if !force && (c.inFlight || now.Sub(c.lastAt) < resyncSpacing) {
		c.mu.Unlock()
		return
	}
	c.inFlight = true
	c.lastAt = now
	if c.clear != nil {
		c.clear.Stop()
	}
	c.clear = c.clock.AfterFunc(resyncTimeout, c.timeout)
	c.mu.Unlock()

	if err := c.send(); err != nil {
		c.log.Warn().Err(err).Msg("sync request failed")
	}
}

func (c *ResyncCoordinator) timeout() {
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
}

// SnapshotReceived clears the in-flight flag. Every snapshot counts, not
// just ones answering our request.
func (c *ResyncCoordinator) SnapshotReceived() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if c.clear != nil {
		c.clear.Stop()
		c.clear = nil
	}
}

func (c *ResyncCoordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	c.lastAt = time.Time{}
	if c.clear != nil {
		c.clear.Stop()
		c.clear = nil
	}
}
