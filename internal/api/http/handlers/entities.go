package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"dexindexer/pkg/httputil"
)

func (h *Handler) Bundle(w http.ResponseWriter, r *http.Request) {
	b, err := h.Indexer.Bundle(r.Context())
	h.respond(w, r, "Bundle", b, err)
}

func (h *Handler) Factory(w http.ResponseWriter, r *http.Request) {
	f, err := h.Indexer.Factory(r.Context())
	h.respond(w, r, "Factory", f, err)
}

func (h *Handler) Pool(w http.ResponseWriter, r *http.Request) {
	p, err := h.Indexer.Pool(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, "Pool", p, err)
}

// PoolDay serves one pool day bucket; day is unix seconds / 86400
func (h *Handler) PoolDay(w http.ResponseWriter, r *http.Request) {
	day, err := strconv.ParseInt(chi.URLParam(r, "day"), 10, 64)
	if err != nil || day < 0 {
		_ = httputil.Error(w, r, http.StatusBadRequest, httputil.CodeBadRequest, "day must be a non-negative day index", nil)
		return
	}

	d, err := h.Indexer.PoolDayData(r.Context(), chi.URLParam(r, "id"), day)
	h.respond(w, r, "PoolDay", d, err)
}

func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	t, err := h.Indexer.Token(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, "Token", t, err)
}

func (h *Handler) LMPool(w http.ResponseWriter, r *http.Request) {
	p, err := h.Indexer.LMPool(r.Context(), chi.URLParam(r, "pid"))
	h.respond(w, r, "LMPool", p, err)
}
