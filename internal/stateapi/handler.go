// Package stateapi exposes the client's current view over HTTP for local
// tooling and debugging overlays.
package stateapi

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/MalikaMari9/GameTheory-BlackJack/internal/engine"
	"github.com/MalikaMari9/GameTheory-BlackJack/internal/visual"
)

// Provider hands out the current client view.
type Provider interface {
	View() engine.View
}

// Handler serves read-only state endpoints.
type Handler struct {
	provider Provider
	log      zerolog.Logger
}

func NewHandler(provider Provider, log zerolog.Logger) *Handler {
	return &Handler{provider: provider, log: log}
}

// RegisterRoutes mounts the endpoints on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/state", h.handleState)
	mux.HandleFunc("GET /health", h.handleHealth)
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	view := h.provider.View()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stateResponse{
		Status:       string(view.Status),
		Stage:        string(view.Stage),
		PlayerID:     view.PlayerID,
		Visual:       view.Visual,
		Announcement: view.Announcement,
		LastError:    view.LastError,
	}); err != nil {
		h.log.Warn().Err(err).Msg("encode state response")
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type stateResponse struct {
	Status       string               `json:"status"`
	Stage        string               `json:"stage"`
	PlayerID     string               `json:"player_id"`
	Visual       visual.VisualState   `json:"visual"`
	Announcement *engine.Announcement `json:"announcement,omitempty"`
	LastError    string               `json:"last_error,omitempty"`
}
