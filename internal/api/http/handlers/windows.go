package handlers

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"dexindexer/internal/domain"
)

type tokenWindowsResponse struct {
	Token string     `json:"token"`
	W5m   domain.Agg `json:"w5m"`
	W1h   domain.Agg `json:"w1h"`
	W24h  domain.Agg `json:"w24h"`
}

// TokenWindows serves rolling 5m/1h/24h activity of one token
func (h *Handler) TokenWindows(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	win, err := h.Indexer.TokenWindows(r.Context(), id)
	if err != nil {
		h.respond(w, r, "TokenWindows", nil, err)
		return
	}

	h.respond(w, r, "TokenWindows", tokenWindowsResponse{
		Token: id,
		W5m:   win.W5m,
		W1h:   win.W1h,
		W24h:  win.W24h,
	}, nil)
}

// ActiveTokens lists tokens with rolling activity, sorted
func (h *Handler) ActiveTokens(w http.ResponseWriter, r *http.Request) {
	tokens := h.Indexer.WindowTokens()
	if tokens == nil {
		tokens = []string{}
	}
	slices.Sort(tokens)

	h.respond(w, r, "ActiveTokens", map[string]any{"tokens": tokens}, nil)
}
