package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	defaultAnnounceMs = 3000
	// Slack added to an announcement's duration before it is retired, so
	// the exit animation finishes on screen.
	retireSlackMs = 80
	// The watchdog retires anything that outlived its slot by this much.
	// Retire timers can be starved while a tab is backgrounded.
	watchdogGraceMs  = 200
	watchdogInterval = 300 * time.Millisecond
)

// Announcement is one full-screen banner (GAME BEGIN, DEALER TURN, results).
type Announcement struct {
	ID         string
	Title      string
	Subtitle   string
	Variant    string
	Tone       string
	TargetSeat int
	DurationMs int64
}

type queuedAnnouncement struct {
	a Announcement
}

// AnnouncementScheduler shows announcements one at a time. New entries queue
// behind the active one; priority entries jump to the front of the queue but
// never preempt the active banner. GAME BEGIN is announced at most once per
// session.
type AnnouncementScheduler struct {
	clock    clockwork.Clock
	log      zerolog.Logger
	onChange func(*Announcement)

	mu          sync.Mutex
	queue       []queuedAnnouncement
	active      *Announcement
	activeUntil time.Time
	retire      clockwork.Timer
	beginSeen   map[string]struct{}
}

// NewAnnouncementScheduler builds a scheduler. onChange is called with the
// new active announcement (nil when the screen clears) and may be nil.
func NewAnnouncementScheduler(clock clockwork.Clock, log zerolog.Logger, onChange func(*Announcement)) *AnnouncementScheduler {
	return &AnnouncementScheduler{
		clock:     clock,
		log:       log,
		onChange:  onChange,
		beginSeen: make(map[string]struct{}),
	}
}

// Enqueue adds an announcement. Priority entries go to the front of the
// queue. The active announcement, if any, always finishes its slot first.
func (s *AnnouncementScheduler) Enqueue(a Announcement, priority bool) {
	if strings.TrimSpace(a.Title) == "" {
		return
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.DurationMs <= 0 {
		a.DurationMs = defaultAnnounceMs
	}

	s.mu.Lock()
	if priority {
		s.queue = append([]queuedAnnouncement{{a: a}}, s.queue...)
	} else {
		s.queue = append(s.queue, queuedAnnouncement{a: a})
	}
	s.mu.Unlock()
	s.pump()
}

// EnqueueGameBegin shows the session-opening banner, at most once per
// session id.
func (s *AnnouncementScheduler) EnqueueGameBegin(sessionID string) {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return
	}
	s.mu.Lock()
	if _, done := s.beginSeen[sid]; done {
		s.mu.Unlock()
		return
	}
	s.beginSeen[sid] = struct{}{}
	s.mu.Unlock()

	s.Enqueue(Announcement{
		Title:      "GAME BEGIN",
		Variant:    "reveal",
		Tone:       "neutral",
		DurationMs: defaultAnnounceMs,
	}, true)
}

func (s *AnnouncementScheduler) pump() {
	s.mu.Lock()
	if s.active != nil || len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	next := s.queue[0].a
	s.queue = s.queue[1:]
	s.active = &next
	hold := time.Duration(next.DurationMs+retireSlackMs) * time.Millisecond
	s.activeUntil = s.clock.Now().Add(hold)
	if s.retire != nil {
		s.retire.Stop()
	}
	id := next.ID
	s.retire = s.clock.AfterFunc(hold, func() { s.retireByID(id) })
	s.mu.Unlock()

	s.notify(&next)
}

func (s *AnnouncementScheduler) retireByID(id string) {
	s.mu.Lock()
	if s.active == nil || s.active.ID != id {
		s.mu.Unlock()
		return
	}
	s.active = nil
	s.mu.Unlock()

	s.notify(nil)
	s.pump()
}

// CheckExpired retires an active announcement whose slot has passed. It is
// called by the watchdog and on visibility or focus changes, when timers may
// have been throttled.
func (s *AnnouncementScheduler) CheckExpired() {
	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return
	}
	grace := time.Duration(watchdogGraceMs) * time.Millisecond
	if !s.clock.Now().After(s.activeUntil.Add(grace)) {
		s.mu.Unlock()
		return
	}
	stuck := s.active.Title
	s.active = nil
	if s.retire != nil {
		s.retire.Stop()
		s.retire = nil
	}
	s.mu.Unlock()

	s.log.Debug().Str("title", stuck).Msg("retiring overdue announcement")
	s.notify(nil)
	s.pump()
}

// RunWatchdog sweeps for overdue announcements until ctx is done.
func (s *AnnouncementScheduler) RunWatchdog(ctx context.Context) {
	ticker := s.clock.NewTicker(watchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.CheckExpired()
		}
	}
}

// Active returns a copy of the announcement currently on screen, or nil.
func (s *AnnouncementScheduler) Active() *Announcement {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	a := *s.active
	return &a
}

// Reset clears the queue, the active banner, and the per-session GAME BEGIN
// memory.
func (s *AnnouncementScheduler) Reset() {
	s.mu.Lock()
	s.queue = nil
	s.active = nil
	if s.retire != nil {
		s.retire.Stop()
		s.retire = nil
	}
	s.beginSeen = make(map[string]struct{})
	s.mu.Unlock()

	s.notify(nil)
}

func (s *AnnouncementScheduler) notify(a *Announcement) {
	if s.onChange != nil {
		s.onChange(a)
	}
}
