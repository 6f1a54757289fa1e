package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

type syncRecorder struct {
	mu    sync.Mutex
	ready bool
	sends int
}

func (r *syncRecorder) isReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

func (r *syncRecorder) send() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends++
	return nil
}

func (r *syncRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sends
}

func newTestResync(clock clockwork.Clock) (*ResyncCoordinator, *syncRecorder) {
	rec := &syncRecorder{ready: true}
	return NewResyncCoordinator(clock, zerolog.Nop(), rec.isReady, rec.send), rec
}

func TestResyncNotReadyDoesNothing(t *testing.T) {
	c, rec := newTestResync(clockwork.NewFakeClock())
	rec.mu.Lock()
	rec.ready = false
	rec.mu.Unlock()

	c.Request(true)
	if rec.count() != 0 {
		t.Fatalf("sync sent while not ready")
	}
}

func TestResyncBestEffortCoalesces(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c, rec := newTestResync(clock)

	c.Request(false)
	c.Request(false)
	if rec.count() != 1 {
		t.Fatalf("sends = %d, want 1 while in flight", rec.count())
	}

	// The snapshot lands, but the spacing window still applies.
	c.SnapshotReceived()
	c.Request(false)
	if rec.count() != 1 {
		t.Fatalf("sends = %d, want 1 inside spacing window", rec.count())
	}

	clock.Advance(300 * time.Millisecond)
	c.Request(false)
	if rec.count() != 2 {
		t.Fatalf("sends = %d, want 2 after spacing window", rec.count())
	}
}

func TestResyncForcedBypassesThrottle(t *testing.T) {
	c, rec := newTestResync(clockwork.NewFakeClock())

	c.Request(false)
	c.Request(true)
	c.Request(true)
	if rec.count() != 3 {
		t.Fatalf("sends = %d, want 3 for forced requests", rec.count())
	}
}

func TestResyncInFlightTimesOut(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c, rec := newTestResync(clock)

	c.Request(false)
	if rec.count() != 1 {
		t.Fatalf("first request not sent")
	}

	// No snapshot ever arrives. After the timeout the flag clears and a
	// best-effort request goes through again.
	clock.Advance(2 * time.Second)
	waitUntil(t, "in-flight cleared", func() bool {
		c.Request(false)
		return rec.count() == 2
	})
}

func TestResyncResetClearsState(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c, rec := newTestResync(clock)

	c.Request(false)
	c.Reset()

	// Reset clears both the in-flight flag and the spacing window.
	c.Request(false)
	if rec.count() != 2 {
		t.Fatalf("sends = %d, want 2 after reset", rec.count())
	}
}
