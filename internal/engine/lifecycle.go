package engine

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/MalikaMari9/GameTheory-BlackJack/internal/protocol"
)

// Status is the externally visible connection state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusClosed     Status = "closed"
)

// Handlers receive decoded server messages and lifecycle notifications.
// They are invoked from the transport's read goroutine and from reconnect
// timers; implementations do their own locking.
type Handlers struct {
	OnWelcome   func(*protocol.WelcomeMessage)
	OnSnapshot  func(*protocol.Snapshot)
	OnEvent     func(*protocol.EventMessage)
	OnError     func(*protocol.ErrorMessage)
	OnStatus    func(Status)
	OnConnected func()

	// AllowReconnect, when set, is consulted before scheduling a redial
	// after an unintentional close. Returning false parks the manager in
	// idle instead of burning the backoff schedule on doomed dials.
	AllowReconnect func() bool
}

// ConnectionConfig tunes the reconnect backoff.
type ConnectionConfig struct {
	BackoffBase   time.Duration
	BackoffGrowth float64
	BackoffCap    time.Duration
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		BackoffBase:   500 * time.Millisecond,
		BackoffGrowth: 1.6,
		BackoffCap:    10 * time.Second,
	}
}

// ConnectionManager owns the dial/redial loop over a Transport. A connection
// closed by the server is redialed with exponential backoff; Close latches
// the manager shut so a late close callback cannot resurrect it. At most one
// reconnect timer is pending at any time.
type ConnectionManager struct {
	transport Transport
	clock     clockwork.Clock
	cfg       ConnectionConfig
	log       zerolog.Logger
	handlers  Handlers

	mu      sync.Mutex
	status  Status
	attempt int
	closed  bool
	pending clockwork.Timer
}

func NewConnectionManager(transport Transport, clock clockwork.Clock, cfg ConnectionConfig, log zerolog.Logger, handlers Handlers) *ConnectionManager {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultConnectionConfig().BackoffBase
	}
	if cfg.BackoffGrowth <= 1 {
		cfg.BackoffGrowth = DefaultConnectionConfig().BackoffGrowth
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = DefaultConnectionConfig().BackoffCap
	}
	return &ConnectionManager{
		transport: transport,
		clock:     clock,
		cfg:       cfg,
		log:       log,
		handlers:  handlers,
		status:    StatusIdle,
	}
}

func (m *ConnectionManager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Connect expresses user intent to be online: it clears the closed latch,
// resets the backoff, and dials. Calling it while already connected or
// connecting is a no-op.
func (m *ConnectionManager) Connect() {
	m.mu.Lock()
	if m.status == StatusConnected || m.status == StatusConnecting {
		m.mu.Unlock()
		return
	}
	m.closed = false
	m.attempt = 0
	m.stopPendingLocked()
	m.mu.Unlock()

	m.dial()
}

func (m *ConnectionManager) dial() {
	m.setStatus(StatusConnecting)
	err := m.transport.Connect(TransportHandlers{
		OnOpen:    m.onOpen,
		OnMessage: m.onMessage,
		OnClose:   m.onClose,
	})
	if err != nil {
		m.log.Warn().Err(err).Msg("connect failed")
		m.onClose(err)
	}
}

func (m *ConnectionManager) onOpen() {
	m.mu.Lock()
	m.attempt = 0
	m.mu.Unlock()
	m.setStatus(StatusConnected)
	if m.handlers.OnConnected != nil {
		m.handlers.OnConnected()
	}
}

func (m *ConnectionManager) onMessage(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		m.log.Warn().Err(err).Msg("dropping undecodable frame")
		return
	}
	switch v := msg.(type) {
	case *protocol.WelcomeMessage:
		if m.handlers.OnWelcome != nil {
			m.handlers.OnWelcome(v)
		}
	case *protocol.Snapshot:
		if m.handlers.OnSnapshot != nil {
			m.handlers.OnSnapshot(v)
		}
	case *protocol.EventMessage:
		if m.handlers.OnEvent != nil {
			m.handlers.OnEvent(v)
		}
	case *protocol.ErrorMessage:
		if m.handlers.OnError != nil {
			m.handlers.OnError(v)
		}
	}
}

func (m *ConnectionManager) onClose(err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.setStatus(StatusClosed)
		return
	}
	if m.pending != nil {
		// A reconnect is already scheduled.
		m.mu.Unlock()
		return
	}
	if m.handlers.AllowReconnect != nil && !m.handlers.AllowReconnect() {
		m.mu.Unlock()
		m.log.Warn().Err(err).Msg("connection lost, not reconnecting")
		m.setStatus(StatusIdle)
		return
	}
	delay := m.backoffDelay(m.attempt)
	m.attempt++
	attempt := m.attempt
	m.pending = m.clock.AfterFunc(delay, m.redial)
	m.mu.Unlock()

	m.log.Info().
		Err(err).
		Int("attempt", attempt).
		Dur("delay", delay).
		Msg("connection lost, reconnecting")
	m.setStatus(StatusConnecting)
}

func (m *ConnectionManager) redial() {
	m.mu.Lock()
	m.pending = nil
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.dial()
}

// backoffDelay grows geometrically from the base and saturates at the cap.
func (m *ConnectionManager) backoffDelay(attempt int) time.Duration {
	d := time.Duration(float64(m.cfg.BackoffBase) * math.Pow(m.cfg.BackoffGrowth, float64(attempt)))
	if d > m.cfg.BackoffCap || d <= 0 {
		return m.cfg.BackoffCap
	}
	return d
}

// Send delivers one client frame. It fails fast when the connection is not
// up so callers can drop optimistic messages instead of queueing them.
func (m *ConnectionManager) Send(v any) error {
	m.mu.Lock()
	ok := m.status == StatusConnected
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("not connected")
	}
	return m.transport.Send(v)
}

// Close shuts the connection down for good. No reconnect fires afterwards.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	m.closed = true
	m.stopPendingLocked()
	m.mu.Unlock()

	err := m.transport.Close()
	m.setStatus(StatusClosed)
	return err
}

func (m *ConnectionManager) stopPendingLocked() {
	if m.pending != nil {
		m.pending.Stop()
		m.pending = nil
	}
}

func (m *ConnectionManager) setStatus(s Status) {
	m.mu.Lock()
	if m.status == s {
		m.mu.Unlock()
		return
	}
	m.status = s
	m.mu.Unlock()
	if m.handlers.OnStatus != nil {
		m.handlers.OnStatus(s)
	}
}
