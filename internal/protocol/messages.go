package protocol

import "encoding/json"

// Server message type tags. Event messages carry no fixed tag set; they are
// identified by the presence of an event_id field (see Decode).
const (
	TypeWelcome  = "WELCOME"
	TypeSnapshot = "SNAPSHOT"
	TypeError    = "ERROR"
)

// Event types the reducer understands. The wire may carry types outside this
// list; unknown types must flow through the pipeline as no-ops.
const (
	EventPhaseChanged     = "PHASE_CHANGED"
	EventRoundStarted     = "ROUND_STARTED"
	EventDealStarted      = "DEAL_STARTED"
	EventTurnStarted      = "TURN_STARTED"
	EventReadyChanged     = "READY_CHANGED"
	EventBetPlaced        = "BET_PLACED"
	EventBetDoubled       = "BET_DOUBLED"
	EventChipsCollect     = "CHIPS_COLLECT"
	EventCardDealt        = "CARD_DEALT"
	EventDealerRevealHole = "DEALER_REVEAL_HOLE"
	EventDealerAction     = "DEALER_ACTION"
	EventHandsRevealed    = "HANDS_REVEALED"
	EventPayout           = "PAYOUT"
	EventVoteStarted      = "VOTE_STARTED"
	EventVoteResult       = "VOTE_RESULT"
	EventSessionStarted   = "SESSION_STARTED"
	EventSessionEnded     = "SESSION_ENDED"
	EventAnnouncement     = "ANNOUNCEMENT"
)

// Game phases as emitted by the server in snapshot meta and PHASE_CHANGED events.
const (
	PhaseLobby          = "LOBBY"
	PhaseWaitingForBets = "WAITING_FOR_BETS"
	PhaseDealInitial    = "DEAL_INITIAL"
	PhasePlayerTurns    = "PLAYER_TURNS"
	PhaseDealerTurn     = "DEALER_TURN"
	PhaseSettle         = "SETTLE"
	PhaseVoteContinue   = "VOTE_CONTINUE"
	PhaseSessionEnded   = "SESSION_ENDED"
)

// PlayerState is the per-player record inside a snapshot. The server keeps
// table state in string-valued hashes, so every field arrives as a string;
// hand_cards and hand_ids are JSON-encoded arrays inside those strings.
type PlayerState struct {
	Seat         string `json:"seat"`
	Name         string `json:"name"`
	Bankroll     string `json:"bankroll"`
	Status       string `json:"status"`
	Bet          string `json:"bet"`
	Ready        string `json:"ready,omitempty"`
	BetSubmitted string `json:"bet_submitted,omitempty"`
	HandIDs      string `json:"hand_ids,omitempty"`
	HandCount    string `json:"hand_count,omitempty"`
	HandCards    string `json:"hand_cards,omitempty"`
}

// Snapshot is a full, authoritative point-in-time state push. Seats map
// "seat:N" keys to player ids; meta carries session/round/phase/turn fields.
type Snapshot struct {
	Type             string                     `json:"type"`
	Meta             map[string]string          `json:"meta"`
	Seats            map[string]string          `json:"seats"`
	Players          map[string]PlayerState     `json:"players"`
	DealerHand       map[string]string          `json:"dealer_hand"`
	PublicRoundState map[string]json.RawMessage `json:"public_round_state,omitempty"`
}

// EventMessage is an incremental, typed notification of a single state change.
// RoundID zero means a lobby-phase event that applies regardless of the
// current round.
type EventMessage struct {
	EventID   string  `json:"event_id"`
	Type      string  `json:"type"`
	SessionID string  `json:"session_id"`
	RoundID   int     `json:"round_id"`
	Payload   Payload `json:"payload"`
}

// WelcomeMessage completes the HELLO handshake.
type WelcomeMessage struct {
	Type           string `json:"type"`
	PlayerID       string `json:"player_id"`
	ReconnectToken string `json:"reconnect_token"`
}

// ErrorMessage is a protocol-level error. It is surfaced to the user as a
// transient banner and never terminates the connection.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// HelloMessage opens the handshake. The reconnect token is optional and lets
// the server re-bind this connection to an existing player.
type HelloMessage struct {
	Type           string `json:"type"`
	Nickname       string `json:"nickname"`
	ReconnectToken string `json:"reconnect_token,omitempty"`
}

type JoinTableMessage struct {
	Type    string `json:"type"`
	TableID string `json:"table_id"`
}

type ReadyToggleMessage struct {
	Type string `json:"type"`
}

type StartSessionMessage struct {
	Type string `json:"type"`
}

type PlaceBetMessage struct {
	Type      string `json:"type"`
	Amount    int    `json:"amount"`
	RequestID string `json:"request_id"`
}

type ActionMessage struct {
	Type      string `json:"type"`
	Action    string `json:"action"`
	RequestID string `json:"request_id"`
}

type VoteContinueMessage struct {
	Type      string `json:"type"`
	Vote      string `json:"vote"`
	RequestID string `json:"request_id"`
}

// SyncMessage requests a fresh snapshot plus any events after LastEventID.
type SyncMessage struct {
	Type        string `json:"type"`
	LastEventID string `json:"last_event_id"`
}

// AdminConfigMessage carries optional table tunables; zero-valued fields are
// omitted from the wire so the server only sees what the admin changed.
type AdminConfigMessage struct {
	Type                  string  `json:"type"`
	StartingBankroll      int     `json:"starting_bankroll,omitempty"`
	MinBet                int     `json:"min_bet,omitempty"`
	MaxBet                int     `json:"max_bet,omitempty"`
	ShoeDecks             int     `json:"shoe_decks,omitempty"`
	ReshuffleRemainingPct float64 `json:"reshuffle_when_remaining_pct,omitempty"`
}

func Hello(nickname, reconnectToken string) HelloMessage {
	return HelloMessage{Type: "HELLO", Nickname: nickname, ReconnectToken: reconnectToken}
}

func JoinTable(tableID string) JoinTableMessage {
	return JoinTableMessage{Type: "JOIN_TABLE", TableID: tableID}
}

func ReadyToggle() ReadyToggleMessage {
	return ReadyToggleMessage{Type: "READY_TOGGLE"}
}

func StartSession() StartSessionMessage {
	return StartSessionMessage{Type: "START_SESSION"}
}

func PlaceBet(amount int, requestID string) PlaceBetMessage {
	return PlaceBetMessage{Type: "PLACE_BET", Amount: amount, RequestID: requestID}
}

func Action(action, requestID string) ActionMessage {
	return ActionMessage{Type: "ACTION", Action: action, RequestID: requestID}
}

func VoteContinue(vote, requestID string) VoteContinueMessage {
	return VoteContinueMessage{Type: "VOTE_CONTINUE", Vote: vote, RequestID: requestID}
}

func Sync(lastEventID string) SyncMessage {
	return SyncMessage{Type: "SYNC", LastEventID: lastEventID}
}

func AdminConfig(msg AdminConfigMessage) AdminConfigMessage {
	msg.Type = "ADMIN_CONFIG"
	return msg
}
