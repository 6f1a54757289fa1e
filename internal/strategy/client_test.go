package strategy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/MalikaMari9/GameTheory-BlackJack/internal/visual"
)

func sampleRequest() Request {
	return Request{
		PlayerCards:  []string{"AS", "7D"},
		DealerUpcard: "KH",
		Bet:          50,
		Bankroll:     1000,
		Rule:         "S17",
		CanDouble:    true,
		RiskLambda:   0.5,
	}
}

func TestAnalyzeRoundTrip(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/strategy/blackjack" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(Response{
			BestAction:  "stand",
			PlayerTotal: 18,
			IsSoft:      true,
			Actions: []ActionValue{
				{Action: "stand", EV: 0.12, Util: 0.11},
				{Action: "hit", EV: -0.05, Util: -0.06},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	resp, err := c.Analyze(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if resp.BestAction != "stand" || resp.PlayerTotal != 18 || !resp.IsSoft {
		t.Fatalf("response = %+v", resp)
	}
	if got.DealerUpcard != "KH" || got.Bet != 50 || !got.CanDouble {
		t.Fatalf("request on the wire = %+v", got)
	}
}

func TestAnalyzeNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad hand", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	if _, err := c.Analyze(context.Background(), sampleRequest()); err == nil {
		t.Fatalf("expected error for 400 response")
	}
}

func TestAnalyzeLatestCancelsPrevious(t *testing.T) {
	arrived := make(chan struct{})
	var mu sync.Mutex
	var firstCancelled bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		json.NewDecoder(r.Body).Decode(&req)
		if req.Bet == 1 {
			// The slow first request: block until it is cancelled.
			close(arrived)
			<-r.Context().Done()
			mu.Lock()
			firstCancelled = true
			mu.Unlock()
			return
		}
		json.NewEncoder(w).Encode(Response{BestAction: "hit"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		slow := sampleRequest()
		slow.Bet = 1
		resp, stale, _ := c.AnalyzeLatest(context.Background(), slow)
		if !stale || resp != nil {
			t.Errorf("superseded request returned resp=%+v stale=%v", resp, stale)
		}
	}()

	// Let the slow request reach the server, then supersede it.
	<-arrived
	fast := sampleRequest()
	fast.Bet = 2
	resp, stale, err := c.AnalyzeLatest(context.Background(), fast)
	if err != nil || stale {
		t.Fatalf("latest request failed: resp=%+v stale=%v err=%v", resp, stale, err)
	}
	if resp.BestAction != "hit" {
		t.Fatalf("response = %+v", resp)
	}

	<-firstDone
	mu.Lock()
	cancelled := firstCancelled
	mu.Unlock()
	if !cancelled {
		t.Fatalf("first request was not cancelled")
	}
}

func upturnState() visual.VisualState {
	v := visual.MakeInitialVisualState("t1")
	v.SessionID = "sess-1"
	v.DealerRule = "h17"
	v.Seats[0].PID = "p9"
	v.Seats[0].Bet = 50
	v.Seats[0].Bankroll = 950
	v.Seats[0].Hand = []visual.VisualCard{
		{ID: "c1", Code: "AS"},
		{ID: "c2", Code: "7D"},
	}
	v.Dealer.Hand = []visual.VisualCard{
		{ID: "d1", Code: "KH"},
		{ID: "d2", FaceDown: true},
	}
	return v
}

func TestBuildRequestFromTableState(t *testing.T) {
	req, ok := BuildRequest(upturnState(), "p9", true, 0.5)
	if !ok {
		t.Fatalf("expected analyzable state")
	}
	if len(req.PlayerCards) != 2 || req.DealerUpcard != "KH" {
		t.Fatalf("request = %+v", req)
	}
	if req.Rule != "H17" {
		t.Fatalf("rule = %q, want H17 from table rule", req.Rule)
	}
	if req.Bet != 50 || req.Bankroll != 950 || !req.CanDouble {
		t.Fatalf("request = %+v", req)
	}
}

func TestBuildRequestRejectsUnanalyzableStates(t *testing.T) {
	// Unknown player.
	if _, ok := BuildRequest(upturnState(), "nobody", false, 0); ok {
		t.Fatalf("unknown player analyzable")
	}

	// No live bet.
	noBet := upturnState()
	noBet.Seats[0].Bet = 0
	if _, ok := BuildRequest(noBet, "p9", false, 0); ok {
		t.Fatalf("betless seat analyzable")
	}

	// A face-down second card means fewer than two known cards.
	hidden := upturnState()
	hidden.Seats[0].Hand[1] = visual.VisualCard{ID: "c2", FaceDown: true}
	if _, ok := BuildRequest(hidden, "p9", false, 0); ok {
		t.Fatalf("hidden hand analyzable")
	}

	// Dealer upcard not revealed yet.
	noUp := upturnState()
	noUp.Dealer.Hand = []visual.VisualCard{{ID: "d1", FaceDown: true}}
	if _, ok := BuildRequest(noUp, "p9", false, 0); ok {
		t.Fatalf("hidden upcard analyzable")
	}

	// Defaults to S17 when the table rule is absent.
	bare := upturnState()
	bare.DealerRule = ""
	req, ok := BuildRequest(bare, "p9", false, 0)
	if !ok || req.Rule != "S17" {
		t.Fatalf("rule = %q ok=%v, want S17 default", req.Rule, ok)
	}
}
