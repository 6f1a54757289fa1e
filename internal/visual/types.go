package visual

// VisualCard is one rendered card. Code is empty while the card is unknown
// (face down); HandID plus CardIndex form a stable slot key when the protocol
// supplies them, letting redelivered deals update a card in place. Delay
// fields pace the deal/flip animations; zero means no delay was derived.
type VisualCard struct {
	ID          string `json:"id"`
	Code        string `json:"code,omitempty"`
	FaceDown    bool   `json:"face_down,omitempty"`
	DealtAt     int64  `json:"dealt_at,omitempty"`
	HandID      string `json:"hand_id,omitempty"`
	CardIndex   int    `json:"card_index"`
	DealDelayMs int64  `json:"deal_delay_ms,omitempty"`
	FlipDelayMs int64  `json:"flip_delay_ms,omitempty"`
}

// NoCardIndex marks a card that carries no stable slot key.
const NoCardIndex = -1

// VisualPayout is the most recent payout for a seat. It is superseded by the
// next payout, never accumulated; the renderer owns its ephemeral display.
type VisualPayout struct {
	ID     string `json:"id"`
	Seat   int    `json:"seat"`
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
	At     int64  `json:"at"`
}

// VisualSeat is one seat's renderable state. PID empty means the seat is
// unoccupied; an unoccupied seat holds no bet, bankroll, hand, or payout.
// BetPlacedAt and ChipCollectAt are animation triggers (epoch ms, 0 = idle).
type VisualSeat struct {
	Seat          int           `json:"seat"`
	PID           string        `json:"pid,omitempty"`
	Name          string        `json:"name"`
	Bankroll      int           `json:"bankroll"`
	Status        string        `json:"status"`
	Bet           int           `json:"bet"`
	BetPlacedAt   int64         `json:"bet_placed_at"`
	ChipCollectAt int64         `json:"chip_collect_at"`
	Ready         bool          `json:"ready"`
	Hand          []VisualCard  `json:"hand"`
	LastPayout    *VisualPayout `json:"last_payout,omitempty"`
}

type VisualDealer struct {
	Hand []VisualCard `json:"hand"`
}

// VisualState is the root renderable projection. It belongs to exactly one
// (SessionID, RoundID) pair and is owned exclusively by the reducer: callers
// treat it as an immutable value and replace it wholesale on every apply.
type VisualState struct {
	TableID       string       `json:"table_id"`
	SeatCount     int          `json:"seat_count"`
	SessionID     string       `json:"session_id"`
	RoundID       int          `json:"round_id"`
	Phase         string       `json:"phase"`
	DealerRule    string       `json:"dealer_rule"`
	TurnSeat      int          `json:"turn_seat"`
	VoteDeadline  int64        `json:"vote_deadline_ts"`
	DealStartedTs int64        `json:"deal_started_ts"`
	Seats         []VisualSeat `json:"seats"`
	Dealer        VisualDealer `json:"dealer"`
}

// Clone returns a deep copy safe to hand to other goroutines (the state API
// serializes it outside the controller lock).
func (v VisualState) Clone() VisualState {
	out := v
	out.Seats = cloneSeats(v.Seats)
	out.Dealer.Hand = cloneHand(v.Dealer.Hand)
	return out
}

// SeatByNumber returns the seat with the given number, or nil.
func (v VisualState) SeatByNumber(seat int) *VisualSeat {
	for i := range v.Seats {
		if v.Seats[i].Seat == seat {
			return &v.Seats[i]
		}
	}
	return nil
}

// SeatByPlayer returns the seat occupied by the given player id, or nil.
func (v VisualState) SeatByPlayer(pid string) *VisualSeat {
	if pid == "" {
		return nil
	}
	for i := range v.Seats {
		if v.Seats[i].PID == pid {
			return &v.Seats[i]
		}
	}
	return nil
}

func cloneHand(hand []VisualCard) []VisualCard {
	if hand == nil {
		return nil
	}
	out := make([]VisualCard, len(hand))
	copy(out, hand)
	return out
}

func cloneSeat(s VisualSeat) VisualSeat {
	out := s
	out.Hand = cloneHand(s.Hand)
	if s.LastPayout != nil {
		p := *s.LastPayout
		out.LastPayout = &p
	}
	return out
}

func cloneSeats(seats []VisualSeat) []VisualSeat {
	out := make([]VisualSeat, len(seats))
	for i, s := range seats {
		out[i] = cloneSeat(s)
	}
	return out
}
