// Package strategy queries the game-theory sidecar for optimal-play advice.
package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Request is one analysis ask: the visible table state for a single hand.
type Request struct {
	PlayerCards  []string `json:"player_cards"`
	DealerUpcard string   `json:"dealer_upcard"`
	Bet          int      `json:"bet"`
	Bankroll     int      `json:"bankroll"`
	Rule         string   `json:"rule"`
	CanDouble    bool     `json:"can_double"`
	RiskLambda   float64  `json:"risk_lambda"`
}

// ActionValue is the solver's expected value for one candidate action.
type ActionValue struct {
	Action string  `json:"action"`
	EV     float64 `json:"ev"`
	Util   float64 `json:"util"`
}

// Response is the solver's verdict for a Request.
type Response struct {
	BestAction  string        `json:"best_action"`
	PlayerTotal int           `json:"player_total"`
	IsSoft      bool          `json:"is_soft"`
	Actions     []ActionValue `json:"actions"`
	BustChance  float64       `json:"bust_chance"`
}

const requestTimeout = 5 * time.Second

// Client talks to the strategy service over HTTP. AnalyzeLatest implements
// last-request-wins: firing a new request cancels the previous one, and a
// response that is no longer the newest is discarded.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
		log:     log,
	}
}

// Analyze performs one blocking analysis call.
func (c *Client) Analyze(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode strategy request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/strategy/blackjack", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build strategy request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("strategy service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("strategy service returned %d: %s", resp.StatusCode, msg)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode strategy response: %w", err)
	}
	return &out, nil
}

// AnalyzeLatest runs Analyze with last-request-wins semantics. The returned
// stale flag is true when a newer request was issued while this one was in
// flight; the caller should drop the result.
func (c *Client) AnalyzeLatest(ctx context.Context, req Request) (*Response, bool, error) {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	c.seq++
	token := c.seq
	c.mu.Unlock()

	resp, err := c.Analyze(ctx, req)

	c.mu.Lock()
	stale := token != c.seq
	if !stale {
		c.cancel = nil
	}
	c.mu.Unlock()
	cancel()

	if stale {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return resp, false, nil
}
