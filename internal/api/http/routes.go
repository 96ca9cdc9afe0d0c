package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"dexindexer/internal/api/http/handlers"
	"dexindexer/internal/api/http/mw"
)

// Middlewares are optional; nil entries are skipped
type Middlewares struct {
	Log       *mw.LoggingMiddleware
	Gzip      *mw.GzipMiddleware
	RateLimit *mw.RateLimitMiddleware
	JWT       *mw.JWTMiddleware
	CORS      *mw.CORSMiddleware
}

// BuildRouter mounts probes and metrics openly, the websocket behind the rate limit,
// and the query API behind rate limit and JWT
func BuildRouter(h *handlers.Handler, metricsH, wsH http.Handler, m Middlewares) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	if m.Log != nil {
		r.Use(m.Log.Handler)
	}
	if m.CORS != nil {
		r.Use(m.CORS.Handler())
	}

	r.Get("/healthz", h.Healthz)
	r.Get("/readiness", h.Readiness)
	if metricsH != nil {
		r.Method(http.MethodGet, "/metrics", metricsH)
	}

	r.Group(func(limited chi.Router) {
		if m.RateLimit != nil {
			limited.Use(m.RateLimit.Handler)
		}

		if wsH != nil {
			limited.Method(http.MethodGet, "/ws", wsH)
		}

		limited.Route("/api", func(api chi.Router) {
			if m.JWT != nil {
				api.Use(m.JWT.Handler)
			}
			if m.Gzip != nil {
				api.Use(m.Gzip.Handler)
			}

			api.Get("/stats", h.Stats)
			api.Get("/bundle", h.Bundle)
			api.Get("/factory", h.Factory)

			api.Route("/pools/{id}", func(p chi.Router) {
				p.Get("/", h.Pool)
				p.Get("/day/{day}", h.PoolDay)
			})

			api.Get("/tokens", h.ActiveTokens)
			api.Route("/tokens/{id}", func(t chi.Router) {
				t.Get("/", h.Token)
				t.Get("/windows", h.TokenWindows)
			})

			api.Get("/lm/pools/{pid}", h.LMPool)
		})
	})

	return r
}
