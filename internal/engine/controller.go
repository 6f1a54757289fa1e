package engine

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/MalikaMari9/GameTheory-BlackJack/internal/protocol"
	"github.com/MalikaMari9/GameTheory-BlackJack/internal/strategy"
	"github.com/MalikaMari9/GameTheory-BlackJack/internal/visual"
)

// Stage is where the player is in the join flow.
type Stage string

const (
	StageNickname Stage = "nickname"
	StageLobby    Stage = "lobby"
	StageTable    Stage = "table"
)

const heartbeatInterval = 10 * time.Second

// View is a consistent, render-ready copy of everything the UI needs.
type View struct {
	Status       Status
	Stage        Stage
	PlayerID     string
	Visual       visual.VisualState
	Announcement *Announcement
	LastError    string
}

// ControllerConfig carries the per-table settings the controller needs.
type ControllerConfig struct {
	TableID    string
	Nickname   string
	RiskLambda float64
}

// Controller wires the connection, the reducer, the event gate, the resync
// coordinator, and the announcement scheduler into one state machine. All
// server callbacks funnel through it; View hands out copies, never live
// state.
type Controller struct {
	cfg       ControllerConfig
	clock     clockwork.Clock
	log       zerolog.Logger
	conn      *ConnectionManager
	reducer   *visual.Reducer
	gate      *EventGate
	resync    *ResyncCoordinator
	announcer *AnnouncementScheduler
	identity  IdentityStore
	advisor   *strategy.Client

	// hasSnapshot flips once the first snapshot of the current session
	// lands; SYNC is meaningless before that.
	hasSnapshot atomic.Bool

	mu        sync.Mutex
	stage     Stage
	status    Status
	state     visual.VisualState
	playerID  string
	lastError string
}

// NewController builds the controller. advisor may be nil when no strategy
// service is configured.
func NewController(cfg ControllerConfig, transport Transport, clock clockwork.Clock, log zerolog.Logger, identity IdentityStore, advisor *strategy.Client) *Controller {
	c := &Controller{
		cfg:      cfg,
		clock:    clock,
		log:      log,
		reducer:  visual.NewReducer(clock),
		gate:     NewEventGate(),
		identity: identity,
		advisor:  advisor,
		stage:    StageNickname,
		status:   StatusIdle,
		state:    visual.MakeInitialVisualState(cfg.TableID),
	}
	if cfg.Nickname != "" {
		c.stage = StageLobby
	}
	c.announcer = NewAnnouncementScheduler(clock, log, nil)
	c.resync = NewResyncCoordinator(clock, log, c.syncReady, c.sendSync)
	c.conn = NewConnectionManager(transport, clock, DefaultConnectionConfig(), log, Handlers{
		OnWelcome:      c.handleWelcome,
		OnSnapshot:     c.handleSnapshot,
		OnEvent:        c.handleEvent,
		OnError:        c.handleError,
		OnStatus:       c.handleStatus,
		OnConnected:    c.handleConnected,
		AllowReconnect: c.identityAvailable,
	})
	return c
}

func (c *Controller) connected() bool {
	return c.conn.Status() == StatusConnected
}

// syncReady guards SYNC: the cursor in last_event_id only means something
// relative to a snapshot the server has already handed us.
func (c *Controller) syncReady() bool {
	return c.connected() && c.hasSnapshot.Load()
}

// identityAvailable reports whether a HELLO could carry anything the server
// can act on. Without a nickname or a reconnect token, redialing just burns
// the backoff schedule.
func (c *Controller) identityAvailable() bool {
	if c.cfg.Nickname != "" {
		return true
	}
	id, err := c.identity.Load()
	if err != nil {
		return false
	}
	return id.Nickname != "" || id.ReconnectToken != ""
}

func (c *Controller) sendSync() error {
	return c.conn.Send(protocol.Sync(c.gate.LastEventID()))
}

// Connect dials the table server. The HELLO handshake runs automatically
// once the socket is up.
func (c *Controller) Connect() {
	c.conn.Connect()
}

// Run drives the background loops until ctx is done: the announcement
// watchdog and the heartbeat that keeps table state fresh.
func (c *Controller) Run(ctx context.Context) {
	go c.announcer.RunWatchdog(ctx)

	ticker := c.clock.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Close()
			return
		case <-ticker.Chan():
			c.mu.Lock()
			atTable := c.stage == StageTable
			c.mu.Unlock()
			if atTable && c.connected() {
				c.resync.Request(false)
			}
		}
	}
}

func (c *Controller) handleConnected() {
	id, err := c.identity.Load()
	if err != nil {
		c.log.Warn().Err(err).Msg("identity load failed")
	}
	nickname := c.cfg.Nickname
	if nickname == "" {
		nickname = id.Nickname
	}
	if nickname == "" && id.ReconnectToken == "" {
		c.log.Warn().Msg("no nickname or reconnect token, holding off hello")
		return
	}
	if err := c.conn.Send(protocol.Hello(nickname, id.ReconnectToken)); err != nil {
		c.log.Warn().Err(err).Msg("hello failed")
	}
}

func (c *Controller) handleWelcome(w *protocol.WelcomeMessage) {
	nickname := c.cfg.Nickname
	if err := c.identity.Save(Identity{
		PlayerID:       w.PlayerID,
		ReconnectToken: w.ReconnectToken,
		Nickname:       nickname,
	}); err != nil {
		c.log.Warn().Err(err).Msg("identity save failed")
	}

	c.mu.Lock()
	c.playerID = w.PlayerID
	if c.stage == StageNickname && nickname != "" {
		c.stage = StageLobby
	}
	c.mu.Unlock()

	c.log.Info().Str("player_id", w.PlayerID).Msg("welcome received")
	if err := c.conn.Send(protocol.JoinTable(c.cfg.TableID)); err != nil {
		c.log.Warn().Err(err).Msg("join failed")
		return
	}
	// On a mid-session reconnect this resumes from the stored cursor.
	// Before the first snapshot it is a no-op; JOIN_TABLE's snapshot push
	// covers the initial state.
	c.resync.Request(true)
}

// stageForPhase maps the server phase onto the join flow: LOBBY means
// seated but waiting, anything else means a round is underway.
func stageForPhase(phase string) Stage {
	if phase == protocol.PhaseLobby {
		return StageLobby
	}
	return StageTable
}

func (c *Controller) handleSnapshot(snap *protocol.Snapshot) {
	c.hasSnapshot.Store(true)
	c.resync.SnapshotReceived()

	c.mu.Lock()
	next := c.reducer.ApplySnapshot(snap, c.state)
	if next.Phase == protocol.PhaseSessionEnded {
		c.mu.Unlock()
		c.ResetSession()
		return
	}
	c.state = next
	c.stage = stageForPhase(next.Phase)
	sessionID, phase := next.SessionID, next.Phase
	c.mu.Unlock()

	// A mid-session join never saw SESSION_STARTED; infer the opening
	// banner from the snapshot.
	if sessionID != "" && phase != protocol.PhaseLobby {
		c.announcer.EnqueueGameBegin(sessionID)
	}
}

func (c *Controller) handleEvent(evt *protocol.EventMessage) {
	if evt.Type == protocol.EventSessionEnded {
		c.ResetSession()
		return
	}

	c.mu.Lock()
	sessionID, roundID := c.state.SessionID, c.state.RoundID
	c.mu.Unlock()

	if !c.gate.Admit(evt, sessionID, roundID) {
		return
	}

	switch evt.Type {
	case protocol.EventSessionStarted:
		sid := evt.SessionID
		if sid == "" {
			sid = sessionID
		}
		c.announcer.EnqueueGameBegin(sid)
	case protocol.EventAnnouncement:
		c.enqueueFromPayload(evt, sessionID)
	}

	c.mu.Lock()
	c.state = c.reducer.ApplyEvent(evt, c.state)
	if evt.Type == protocol.EventSessionStarted || evt.Type == protocol.EventPhaseChanged {
		c.stage = stageForPhase(c.state.Phase)
	}
	c.mu.Unlock()

	// Phase transitions and session starts are where drift hurts most;
	// reconcile against an authoritative snapshot immediately.
	if evt.Type == protocol.EventSessionStarted || evt.Type == protocol.EventPhaseChanged {
		c.resync.Request(true)
	}
}

func (c *Controller) enqueueFromPayload(evt *protocol.EventMessage, sessionID string) {
	title := strings.TrimSpace(evt.Payload.Str("title"))
	if title == "" {
		return
	}
	if strings.EqualFold(title, "GAME BEGIN") {
		sid := evt.SessionID
		if sid == "" {
			sid = sessionID
		}
		c.announcer.EnqueueGameBegin(sid)
		return
	}

	tone := evt.Payload.Str("tone")
	if tone == "" {
		tone = "neutral"
	}
	variant := evt.Payload.Str("variant")
	if variant == "" {
		variant = "reveal"
	}
	c.announcer.Enqueue(Announcement{
		Title:      title,
		Subtitle:   strings.TrimSpace(evt.Payload.Str("subtitle")),
		Variant:    variant,
		Tone:       tone,
		TargetSeat: evt.Payload.Int("target_seat", 0),
		DurationMs: evt.Payload.Int64("duration_ms", 0),
	}, false)
}

func (c *Controller) handleError(e *protocol.ErrorMessage) {
	c.mu.Lock()
	c.lastError = e.Code + ": " + e.Message
	c.mu.Unlock()
	c.log.Warn().Str("code", e.Code).Str("message", e.Message).Msg("server error")
}

func (c *Controller) handleStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// ResetSession tears the current session down: the socket is closed on
// purpose, per-session caches are dropped, and the player returns to the
// lobby with a fresh table.
func (c *Controller) ResetSession() {
	if err := c.conn.Close(); err != nil {
		c.log.Debug().Err(err).Msg("close during session reset")
	}
	c.gate.Reset()
	c.resync.Reset()
	c.announcer.Reset()
	c.hasSnapshot.Store(false)

	c.mu.Lock()
	c.state = visual.MakeInitialVisualState(c.cfg.TableID)
	c.stage = StageLobby
	c.lastError = ""
	c.mu.Unlock()
}

// Close shuts the controller down without clearing identity.
func (c *Controller) Close() {
	if err := c.conn.Close(); err != nil {
		c.log.Debug().Err(err).Msg("close")
	}
}

// RequestSync forces a snapshot refresh on the user's behalf.
func (c *Controller) RequestSync() {
	c.resync.Request(true)
}

// HandleVisible runs when the client regains visibility: throttled timers
// may have wedged an announcement, and table state may be stale.
func (c *Controller) HandleVisible() {
	c.announcer.CheckExpired()
	c.resync.Request(false)
}

// HandleFocus mirrors HandleVisible for window focus.
func (c *Controller) HandleFocus() {
	c.announcer.CheckExpired()
	c.resync.Request(false)
}

// HandleOnline runs when the network comes back.
func (c *Controller) HandleOnline() {
	c.conn.Connect()
	c.resync.Request(false)
}

func (c *Controller) ToggleReady() error {
	return c.conn.Send(protocol.ReadyToggle())
}

func (c *Controller) StartSession() error {
	return c.conn.Send(protocol.StartSession())
}

func (c *Controller) PlaceBet(amount int) error {
	return c.conn.Send(protocol.PlaceBet(amount, uuid.NewString()))
}

func (c *Controller) Act(action string) error {
	return c.conn.Send(protocol.Action(action, uuid.NewString()))
}

func (c *Controller) Vote(vote string) error {
	return c.conn.Send(protocol.VoteContinue(vote, uuid.NewString()))
}

// ConfigureTable sends admin table tunables; only non-zero fields reach the
// wire.
func (c *Controller) ConfigureTable(cfg protocol.AdminConfigMessage) error {
	return c.conn.Send(protocol.AdminConfig(cfg))
}

// Advice asks the strategy service what to do with the current hand. The
// stale flag is true when a newer request superseded this one mid-flight.
func (c *Controller) Advice(ctx context.Context) (*strategy.Response, bool, error) {
	if c.advisor == nil {
		return nil, false, nil
	}

	c.mu.Lock()
	state := c.state.Clone()
	playerID := c.playerID
	c.mu.Unlock()

	seat := state.SeatByPlayer(playerID)
	canDouble := seat != nil && len(seat.Hand) == 2 && seat.Bankroll >= seat.Bet
	req, ok := strategy.BuildRequest(state, playerID, canDouble, c.cfg.RiskLambda)
	if !ok {
		return nil, false, nil
	}
	return c.advisor.AnalyzeLatest(ctx, req)
}

// View returns a self-contained copy of the current client state.
func (c *Controller) View() View {
	c.mu.Lock()
	v := View{
		Status:    c.status,
		Stage:     c.stage,
		PlayerID:  c.playerID,
		Visual:    c.state.Clone(),
		LastError: c.lastError,
	}
	c.mu.Unlock()
	v.Announcement = c.announcer.Active()
	return v
}
