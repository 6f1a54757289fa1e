package strategy

import (
	"strings"

	"github.com/MalikaMari9/GameTheory-BlackJack/internal/visual"
)

// BuildRequest assembles an analysis request for the given player from the
// current table state. It reports false when the table is not analyzable
// yet: fewer than two face-up player cards, an unknown dealer upcard, or no
// live bet.
func BuildRequest(v visual.VisualState, playerID string, canDouble bool, riskLambda float64) (Request, bool) {
	seat := v.SeatByPlayer(playerID)
	if seat == nil || seat.Bet <= 0 {
		return Request{}, false
	}

	var cards []string
	for _, c := range seat.Hand {
		if !c.FaceDown && c.Code != "" {
			cards = append(cards, c.Code)
		}
	}
	if len(cards) < 2 {
		return Request{}, false
	}

	if len(v.Dealer.Hand) == 0 {
		return Request{}, false
	}
	up := v.Dealer.Hand[0]
	if up.FaceDown || up.Code == "" {
		return Request{}, false
	}

	rule := "S17"
	if strings.EqualFold(v.DealerRule, "H17") {
		rule = "H17"
	}

	return Request{
		PlayerCards:  cards,
		DealerUpcard: up.Code,
		Bet:          seat.Bet,
		Bankroll:     seat.Bankroll,
		Rule:         rule,
		CanDouble:    canDouble,
		RiskLambda:   riskLambda,
	}, true
}
