package visual

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/MalikaMari9/GameTheory-BlackJack/internal/protocol"
)

const (
	// DefaultSeatCount is used until a snapshot reveals a higher seat number.
	DefaultSeatCount = 5

	// Deal pacing constants. The shuffle lead-in and inter-card gap feed the
	// fallback delay heuristic when an event carries no deal timeline.
	shuffleLeadMs    = 1500
	defaultDealGapMs = 320
	flipExtraMs      = 360
)

// Reducer derives the renderable VisualState from raw protocol messages.
// ApplySnapshot and ApplyEvent are total functions: any input, including a
// malformed or unknown one, yields a valid next state — at worst the previous
// state unchanged. Inputs are never mutated.
type Reducer struct {
	clock clockwork.Clock
}

func NewReducer(clock clockwork.Clock) *Reducer {
	return &Reducer{clock: clock}
}

// MakeInitialVisualState is the empty-table state a session starts from and
// returns to on session reset.
func MakeInitialVisualState(tableID string) VisualState {
	seats := make([]VisualSeat, DefaultSeatCount)
	for i := range seats {
		seats[i] = emptySeat(i + 1)
	}
	return VisualState{
		TableID:   tableID,
		SeatCount: DefaultSeatCount,
		Phase:     protocol.PhaseLobby,
		Seats:     seats,
		Dealer:    VisualDealer{},
	}
}

func emptySeat(seat int) VisualSeat {
	return VisualSeat{Seat: seat, Name: "Empty", Status: "empty"}
}

func (r *Reducer) nowMs() int64 {
	return r.clock.Now().UnixMilli()
}

func (r *Reducer) newCard(code string, faceDown bool, dealtAt int64) VisualCard {
	return VisualCard{
		ID:        uuid.NewString(),
		Code:      code,
		FaceDown:  faceDown,
		DealtAt:   dealtAt,
		CardIndex: NoCardIndex,
	}
}

// dealTimeline is the synthetic clock some deal events carry: a start
// timestamp plus a per-card sequence and gap. It yields a presentation delay
// only when the computed offset is still in the future.
type dealTimeline struct {
	has       bool
	startedTs int64
	seq       int
	gapMs     int64
	delayMs   int64
	hasDelay  bool
}

func timelineFrom(p protocol.Payload, nowMs int64) dealTimeline {
	t := dealTimeline{
		startedTs: p.Int64("deal_started_ts", 0),
		seq:       p.Int("deal_seq", -1),
		gapMs:     p.Int64("deal_gap_ms", defaultDealGapMs),
	}
	t.has = t.startedTs > 0 && t.seq >= 0
	if t.has {
		if raw := t.startedTs + int64(t.seq)*t.gapMs - nowMs; raw > 0 {
			t.delayMs = raw
			t.hasDelay = true
		}
	}
	return t
}

// snapshotHand rebuilds a seat hand from the JSON-encoded strings a snapshot
// player record carries. Unknown slots become face-down placeholders so the
// hand is dense from index 0 to count-1.
func snapshotHand(sessionID string, roundID, seat int, p protocol.PlayerState) []VisualCard {
	raw := protocol.ParseStringList(p.HandCards)
	count := int(protocol.ParseInt(p.HandCount, int64(len(raw))))
	if len(raw) > count {
		count = len(raw)
	}
	if count <= 0 {
		return nil
	}

	sid := sessionID
	if sid == "" {
		sid = "s"
	}
	handID := fmt.Sprintf("snap:%s:%d:%d", sid, roundID, seat)
	if ids := protocol.ParseStringList(p.HandIDs); len(ids) > 0 && ids[0] != "" {
		handID = ids[0]
	}

	cards := make([]VisualCard, count)
	for i := range cards {
		code := ""
		if i < len(raw) {
			code = raw[i]
		}
		cards[i] = VisualCard{
			ID:        fmt.Sprintf("snap:%s:%d:%d:%d", sid, roundID, seat, i),
			Code:      code,
			FaceDown:  code == "",
			HandID:    handID,
			CardIndex: i,
		}
	}
	return cards
}

func snapshotSeatCount(snap *protocol.Snapshot) int {
	max := 0
	for key := range snap.Seats {
		var n int
		if _, err := fmt.Sscanf(key, "seat:%d", &n); err == nil && n > max {
			max = n
		}
	}
	if max < DefaultSeatCount {
		return DefaultSeatCount
	}
	return max
}

// ApplySnapshot reconciles an authoritative snapshot over the previous state.
// Identity, phase, turn, and per-seat scalars come from the snapshot; hands
// are preserved from prev when the snapshot omits them and the round did not
// change. A round or session change wipes every per-round transient first.
func (r *Reducer) ApplySnapshot(snap *protocol.Snapshot, prev VisualState) VisualState {
	if snap == nil {
		return prev
	}
	meta := snap.Meta
	if meta == nil {
		meta = map[string]string{}
	}

	sessionID := meta["session_id"]
	roundID := int(protocol.ParseInt(meta["round_id"], 0))
	phase := meta["phase"]
	if phase == "" {
		phase = protocol.PhaseLobby
	}
	turnSeat := int(protocol.ParseInt(meta["turn_seat"], 0))
	voteDeadline := protocol.ParseInt(meta["vote_deadline_ts"], 0)
	dealerRule := meta["dealer_soft_17_rule"]
	if dealerRule == "" {
		dealerRule = prev.DealerRule
	}
	dealStartedTs := protocol.ParseInt(meta["deal_started_ts"], 0)

	seatCount := snapshotSeatCount(snap)
	reset := sessionID != prev.SessionID || roundID != prev.RoundID

	prevBySeat := make(map[int]VisualSeat, len(prev.Seats))
	for _, s := range prev.Seats {
		prevBySeat[s.Seat] = s
	}

	seats := make([]VisualSeat, seatCount)
	for idx := range seats {
		seatNum := idx + 1
		prior, ok := prevBySeat[seatNum]
		if !ok {
			prior = emptySeat(seatNum)
		}
		prior = cloneSeat(prior)

		pid := snap.Seats[fmt.Sprintf("seat:%d", seatNum)]
		if pid == "" {
			// Empty seat: zero the authoritative scalars but keep transient
			// animation fields so a momentary vacancy does not flicker.
			next := prior
			next.PID = ""
			next.Name = "Empty"
			next.Bankroll = 0
			next.Status = "empty"
			next.Bet = 0
			next.BetPlacedAt = 0
			next.ChipCollectAt = 0
			next.Ready = false
			if reset {
				next.Hand = nil
				next.LastPayout = nil
			}
			seats[idx] = next
			continue
		}

		p, hasPlayer := snap.Players[pid]
		next := prior
		next.Seat = seatNum
		next.PID = pid
		next.Name = pid
		if hasPlayer && p.Name != "" {
			next.Name = p.Name
		}
		if hasPlayer {
			next.Bankroll = int(protocol.ParseInt(p.Bankroll, int64(prior.Bankroll)))
			if p.Status != "" {
				next.Status = p.Status
			}
			next.Bet = int(protocol.ParseInt(p.Bet, int64(prior.Bet)))
			next.Ready = protocol.IsReadyFlag(p.Ready)
		} else {
			next.Ready = false
		}

		switch {
		case reset:
			next.BetPlacedAt = 0
			next.ChipCollectAt = 0
		default:
			if next.Bet != prior.Bet {
				next.BetPlacedAt = 0
			}
			if next.Bet <= 0 {
				next.ChipCollectAt = 0
			}
		}

		fromSnapshot := snapshotHand(sessionID, roundID, seatNum, p)
		switch {
		case len(fromSnapshot) > 0:
			next.Hand = fromSnapshot
		case reset:
			next.Hand = nil
		}
		if reset {
			next.LastPayout = nil
		}
		seats[idx] = next
	}

	next := prev
	next.SeatCount = seatCount
	next.SessionID = sessionID
	next.RoundID = roundID
	next.Phase = phase
	next.DealerRule = dealerRule
	next.TurnSeat = turnSeat
	next.VoteDeadline = voteDeadline
	next.Seats = seats
	next.Dealer = VisualDealer{Hand: r.reconcileDealerHand(snap, prev, phase, reset)}
	switch {
	case reset:
		next.DealStartedTs = 0
	case dealStartedTs > 0:
		next.DealStartedTs = dealStartedTs
	default:
		next.DealStartedTs = prev.DealStartedTs
	}
	return next
}

// reconcileDealerHand resolves the dealer hand from a snapshot. The snapshot
// is authoritative for dealer-visible cards; a session/round reset takes its
// cards outright, since the prior hand belongs to a dead round. Within the
// same round the never-downgrade rule applies: once the hole card has been
// revealed locally, an intermediate snapshot that still shows a face-down
// card during DEALER_TURN must not fold the hand back up.
func (r *Reducer) reconcileDealerHand(snap *protocol.Snapshot, prev VisualState, phase string, reset bool) []VisualCard {
	dealerCards := protocol.ParseStringList(snap.DealerHand["cards"])
	hasFaceDown := protocol.ParseInt(snap.DealerHand["face_down"], 0) == 1

	fromSnapshot := make([]VisualCard, 0, len(dealerCards)+1)
	for _, code := range dealerCards {
		c := r.newCard(code, false, 0)
		fromSnapshot = append(fromSnapshot, c)
	}
	if hasFaceDown {
		fromSnapshot = append(fromSnapshot, r.newCard("", true, 0))
	}

	if reset {
		return fromSnapshot
	}

	prior := cloneHand(prev.Dealer.Hand)
	priorKnown := 0
	for _, c := range prior {
		if c.Code != "" {
			priorKnown++
		}
	}
	snapshotKnown := 0
	for _, code := range dealerCards {
		if code != "" {
			snapshotKnown++
		}
	}

	downgrades := phase == protocol.PhaseDealerTurn &&
		priorKnown >= 2 &&
		snapshotKnown < priorKnown &&
		hasFaceDown
	if downgrades {
		return prior
	}
	if len(fromSnapshot) > 0 {
		return fromSnapshot
	}
	return prior
}

// ApplyEvent patches the previous state with one event. Each event type maps
// to a narrow local transform; unknown types and events for another
// session/round return prev unchanged.
func (r *Reducer) ApplyEvent(evt *protocol.EventMessage, prev VisualState) VisualState {
	if evt == nil || evt.Type == "" {
		return prev
	}
	if prev.SessionID != "" && evt.SessionID != "" && evt.SessionID != prev.SessionID {
		return prev
	}
	// Round 0 is the lobby: pre-round events always pass.
	if prev.RoundID != 0 && evt.RoundID != 0 && evt.RoundID != prev.RoundID {
		return prev
	}

	payload := evt.Payload
	if payload == nil {
		payload = protocol.Payload{}
	}

	switch evt.Type {
	case protocol.EventPhaseChanged:
		next := prev
		if phase := payload.Str("phase"); phase != "" {
			next.Phase = phase
		}
		return next

	case protocol.EventRoundStarted:
		next := prev
		if rule := payload.Str("dealer_soft_17_rule"); rule != "" {
			next.DealerRule = rule
		}
		return next

	case protocol.EventDealStarted:
		next := prev
		next.DealStartedTs = payload.Int64("deal_started_ts", 0)
		return next

	case protocol.EventTurnStarted:
		next := prev
		if seat := payload.Int("seat", 0); seat != 0 {
			next.TurnSeat = seat
		}
		return next

	case protocol.EventReadyChanged:
		seatNum := payload.Int("seat", 0)
		idx := seatIndex(prev.Seats, seatNum)
		if idx < 0 {
			return prev
		}
		next := prev
		next.Seats = cloneSeats(prev.Seats)
		next.Seats[idx].Ready = payload.Bool("ready")
		return next

	case protocol.EventBetPlaced, protocol.EventBetDoubled:
		seatNum := payload.Int("seat", 0)
		idx := seatIndex(prev.Seats, seatNum)
		if idx < 0 {
			return prev
		}
		next := prev
		next.Seats = cloneSeats(prev.Seats)
		next.Seats[idx].Bet = payload.Int("amount", 0)
		next.Seats[idx].BetPlacedAt = r.nowMs()
		next.Seats[idx].ChipCollectAt = 0
		return next

	case protocol.EventChipsCollect:
		next := prev
		next.Seats = cloneSeats(prev.Seats)
		now := r.nowMs()
		for i := range next.Seats {
			if next.Seats[i].Bet > 0 {
				next.Seats[i].ChipCollectAt = now
			}
		}
		return next

	case protocol.EventCardDealt:
		return r.applyCardDealt(payload, prev)

	case protocol.EventDealerRevealHole:
		return r.applyDealerReveal(payload, prev)

	case protocol.EventDealerAction:
		return r.applyDealerAction(payload, prev)

	case protocol.EventHandsRevealed:
		return r.applyHandsRevealed(payload, prev)

	case protocol.EventPayout:
		seatNum := payload.Int("seat", 0)
		idx := seatIndex(prev.Seats, seatNum)
		if idx < 0 {
			return prev
		}
		next := prev
		next.Seats = cloneSeats(prev.Seats)
		next.Seats[idx].LastPayout = &VisualPayout{
			ID:     uuid.NewString(),
			Seat:   seatNum,
			Delta:  payload.Int("delta", 0),
			Reason: payload.Str("reason"),
			At:     r.nowMs(),
		}
		return next

	case protocol.EventVoteStarted:
		next := prev
		next.VoteDeadline = payload.Int64("deadline_ts", 0)
		return next

	case protocol.EventSessionStarted:
		next := prev
		next.Dealer = VisualDealer{}
		next.Seats = cloneSeats(prev.Seats)
		for i := range next.Seats {
			next.Seats[i].Bet = 0
			next.Seats[i].BetPlacedAt = 0
			next.Seats[i].ChipCollectAt = 0
			next.Seats[i].Hand = nil
			next.Seats[i].LastPayout = nil
		}
		return next

	case protocol.EventVoteResult, protocol.EventSessionEnded:
		// Lifecycle-layer events; the reducer leaves state alone.
		return prev

	default:
		return prev
	}
}

func seatIndex(seats []VisualSeat, seat int) int {
	for i := range seats {
		if seats[i].Seat == seat {
			return i
		}
	}
	return -1
}

// bettingSeats returns the seat numbers currently occupied with a live bet,
// ascending. Deal order follows this sequence, which drives the fallback
// delay heuristic.
func bettingSeats(seats []VisualSeat) []int {
	var out []int
	for _, s := range seats {
		if s.PID != "" && s.Bet > 0 {
			out = append(out, s.Seat)
		}
	}
	sort.Ints(out)
	return out
}

func (r *Reducer) applyCardDealt(payload protocol.Payload, prev VisualState) VisualState {
	to := payload.Str("to")
	faceDown := payload.Bool("face_down")
	card := payload.Str("card")
	now := r.nowMs()

	active := bettingSeats(prev.Seats)
	activeCount := len(active)
	tl := timelineFrom(payload, now)

	nextDealStartedTs := prev.DealStartedTs
	if tl.startedTs > 0 {
		nextDealStartedTs = tl.startedTs
	}

	if to == "dealer" {
		hand := cloneHand(prev.Dealer.Hand)
		isInitial := prev.Phase == protocol.PhaseDealInitial

		seq := 0
		switch {
		case tl.has:
			seq = tl.seq
		case isInitial && card != "":
			seq = activeCount
		case isInitial:
			seq = 2*activeCount + 1
		}
		delay, hasDelay := tl.delayMs, tl.hasDelay
		if !hasDelay && isInitial {
			delay, hasDelay = shuffleLeadMs+int64(seq)*defaultDealGapMs, true
		}
		dealtAt := int64(0)
		if hasDelay {
			dealtAt = now
		}

		next := prev
		next.DealStartedTs = nextDealStartedTs

		if card == "" && faceDown {
			// Redelivered hole-card placeholder: refresh the existing back
			// instead of appending a second one.
			for i, c := range hand {
				if c.FaceDown && c.Code == "" {
					if c.DealtAt == 0 {
						c.DealtAt = dealtAt
					}
					if c.DealDelayMs == 0 && hasDelay {
						c.DealDelayMs = delay
					}
					hand[i] = c
					next.Dealer = VisualDealer{Hand: hand}
					return next
				}
			}
		}
		if card != "" {
			for i, c := range hand {
				if c.Code == card {
					c.FaceDown = false
					if c.DealtAt == 0 {
						c.DealtAt = dealtAt
					}
					if c.DealDelayMs == 0 && hasDelay {
						c.DealDelayMs = delay
					}
					hand[i] = c
					next.Dealer = VisualDealer{Hand: hand}
					return next
				}
			}
		}

		dealt := r.newCard(card, faceDown, dealtAt)
		if hasDelay {
			dealt.DealDelayMs = delay
		}
		next.Dealer = VisualDealer{Hand: append(hand, dealt)}
		return next
	}

	seatNum := payload.Int("seat", 0)
	idx := seatIndex(prev.Seats, seatNum)
	if idx < 0 {
		return prev
	}

	next := prev
	next.DealStartedTs = nextDealStartedTs
	next.Seats = cloneSeats(prev.Seats)
	hand := next.Seats[idx].Hand

	handID := payload.Str("hand_id")
	cardIndex := NoCardIndex
	if payload.Has("card_index") {
		cardIndex = payload.Int("card_index", NoCardIndex)
	}

	if handID != "" && cardIndex >= 0 {
		isInitial := prev.Phase == protocol.PhaseDealInitial
		seatRank := 0
		for i, s := range active {
			if s == seatNum {
				seatRank = i
				break
			}
		}

		seq := 0
		switch {
		case tl.has:
			seq = tl.seq
		case isInitial && cardIndex == 0:
			seq = seatRank
		case isInitial:
			seq = activeCount + 1 + seatRank
		}
		delay, hasDelay := tl.delayMs, tl.hasDelay
		if !hasDelay && isInitial {
			delay, hasDelay = shuffleLeadMs+int64(seq)*defaultDealGapMs, true
		}
		var flip int64
		dealtAt := int64(0)
		if hasDelay {
			flip = delay + flipExtraMs
			dealtAt = now
		}

		next.Seats[idx].Hand = upsertIndexedCard(hand, handID, cardIndex, card, faceDown, dealtAt, delay, flip, hasDelay)
		return next
	}

	if card != "" {
		for _, c := range hand {
			if c.Code == card {
				// Duplicate delivery without a slot key: content stays put.
				return next
			}
		}
	}
	next.Seats[idx].Hand = append(cloneHand(hand), r.newCard(card, faceDown, now))
	return next
}

// upsertIndexedCard places a card into its (handID, cardIndex) slot,
// discarding cards from other hand ids and backfilling gaps with face-down
// placeholders so the hand stays dense.
func upsertIndexedCard(hand []VisualCard, handID string, cardIndex int, code string, faceDown bool, dealtAt, delay, flip int64, hasDelay bool) []VisualCard {
	indexed := make(map[int]VisualCard)
	maxIndex := -1
	for _, c := range hand {
		if c.HandID != handID || c.CardIndex < 0 {
			continue
		}
		if c.CardIndex > maxIndex {
			maxIndex = c.CardIndex
		}
		indexed[c.CardIndex] = c
	}
	if cardIndex > maxIndex {
		maxIndex = cardIndex
	}

	existing := indexed[cardIndex]
	dealDelay, flipDelay := existing.DealDelayMs, existing.FlipDelayMs
	if hasDelay {
		dealDelay, flipDelay = delay, flip
	}
	indexed[cardIndex] = VisualCard{
		ID:          fmt.Sprintf("h:%s:%d", handID, cardIndex),
		Code:        code,
		FaceDown:    faceDown,
		DealtAt:     dealtAt,
		HandID:      handID,
		CardIndex:   cardIndex,
		DealDelayMs: dealDelay,
		FlipDelayMs: flipDelay,
	}

	out := make([]VisualCard, maxIndex+1)
	for i := 0; i <= maxIndex; i++ {
		if c, ok := indexed[i]; ok {
			out[i] = c
			continue
		}
		out[i] = VisualCard{
			ID:        fmt.Sprintf("h:%s:%d", handID, i),
			FaceDown:  true,
			HandID:    handID,
			CardIndex: i,
		}
	}
	return out
}

// applyDealerReveal replaces exactly the first two dealer slots (up-card and
// hole-card), keeping card identity where slots already exist so the flip
// animates in place instead of re-dealing.
func (r *Reducer) applyDealerReveal(payload protocol.Payload, prev VisualState) VisualState {
	cards := payload.List("cards")
	now := r.nowMs()
	tl := timelineFrom(payload, now)

	if len(cards) >= 2 {
		up, _ := cards[0].(string)
		hole, _ := cards[1].(string)

		existing := cloneHand(prev.Dealer.Hand)
		if len(existing) > 2 {
			existing = existing[:2]
		}
		next := existing
		if len(next) < 1 {
			next = append(next, r.newCard(up, false, now))
		}
		if len(next) < 2 {
			next = append(next, r.newCard("", true, now))
		}

		if up != "" {
			next[0] = VisualCard{ID: next[0].ID, Code: up, DealtAt: next[0].DealtAt, CardIndex: NoCardIndex}
		}
		if hole != "" {
			c := VisualCard{ID: next[1].ID, Code: hole, DealtAt: next[1].DealtAt, CardIndex: NoCardIndex}
			if tl.hasDelay {
				c.FlipDelayMs = tl.delayMs
			}
			next[1] = c
		}

		out := prev
		out.Dealer = VisualDealer{Hand: next}
		return out
	}

	var hand []VisualCard
	for _, item := range cards {
		if code, ok := item.(string); ok {
			hand = append(hand, r.newCard(code, false, now))
		}
	}
	out := prev
	out.Dealer = VisualDealer{Hand: hand}
	return out
}

func (r *Reducer) applyDealerAction(payload protocol.Payload, prev VisualState) VisualState {
	if payload.Str("action") != "draw" {
		return prev
	}
	card := payload.Str("card")
	if card == "" {
		return prev
	}

	now := r.nowMs()
	tl := timelineFrom(payload, now)
	dealt := r.newCard(card, false, 0)
	if tl.hasDelay {
		dealt.DealtAt = now
		dealt.DealDelayMs = tl.delayMs
	}

	next := prev
	next.Dealer = VisualDealer{Hand: append(cloneHand(prev.Dealer.Hand), dealt)}
	return next
}

// applyHandsRevealed replaces the dealer hand and every named seat hand with
// the authoritative end-of-round cards.
func (r *Reducer) applyHandsRevealed(payload protocol.Payload, prev VisualState) VisualState {
	now := r.nowMs()

	var dealerHand []VisualCard
	for _, item := range payload.List("dealer") {
		if code, ok := item.(string); ok {
			dealerHand = append(dealerHand, r.newCard(code, false, now))
		}
	}

	next := prev
	next.Dealer = VisualDealer{Hand: dealerHand}
	next.Seats = cloneSeats(prev.Seats)

	for _, item := range payload.List("players") {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		seatNum := int(protocol.AsInt64(entry["seat"], 0))
		idx := seatIndex(next.Seats, seatNum)
		if idx < 0 {
			continue
		}
		rawCards, _ := entry["cards"].([]any)
		var hand []VisualCard
		for _, rc := range rawCards {
			if code, ok := rc.(string); ok {
				hand = append(hand, r.newCard(code, false, now))
			}
		}
		next.Seats[idx].Hand = hand
	}
	return next
}
