package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"gitlab.com/nevasik7/alerting/logger"

	"dexindexer/internal/domain"
	"dexindexer/internal/service"
	"dexindexer/pkg/httputil"
)

const readinessTimeout = 15 * time.Second

// Querier is the read side of the indexer served over HTTP
type Querier interface {
	CheckDependency(ctx context.Context) error
	Stats() service.Stats

	Bundle(ctx context.Context) (*domain.Bundle, error)
	Factory(ctx context.Context) (*domain.Factory, error)
	Pool(ctx context.Context, id string) (*domain.Pool, error)
	PoolDayData(ctx context.Context, poolID string, day int64) (*domain.PoolDayData, error)
	Token(ctx context.Context, id string) (*domain.Token, error)
	TokenWindows(ctx context.Context, id string) (*domain.Windows, error)
	WindowTokens() []string
	LMPool(ctx context.Context, pid string) (*domain.LMPool, error)
}

var _ Querier = (*service.Indexer)(nil)

type Handler struct {
	Log     logger.Logger
	Indexer Querier
}

func NewHandler(log logger.Logger, ix Querier) *Handler {
	if ix == nil {
		panic("indexer cannot be nil")
	}

	return &Handler{Log: log, Indexer: ix}
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	if err := httputil.JSON(w, http.StatusOK, map[string]any{}, nil); err != nil {
		h.Log.Errorf("Healthz handler error: %s", err.Error())
	}
}

// Readiness checks the store and broadcaster the indexer depends on
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	if err := h.Indexer.CheckDependency(ctx); err != nil {
		h.Log.Warnf("Readiness check failed: %v", err)
		err = httputil.Error(w, r, http.StatusServiceUnavailable, httputil.CodeUnavailable, "dependencies check failed", map[string]any{
			"error": err.Error(),
		})
		if err != nil {
			h.Log.Errorf("Readiness handler error: %s", err.Error())
		}
		return
	}

	if err := httputil.JSON(w, http.StatusOK, map[string]string{"dependencies": "healthy"}, nil); err != nil {
		h.Log.Errorf("Readiness handler error: %s", err.Error())
	}
}

// Stats reports pipeline counters
func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	if err := httputil.JSON(w, http.StatusOK, h.Indexer.Stats(), nil); err != nil {
		h.Log.Errorf("Stats handler error: %s", err.Error())
	}
}

// respond writes v, or maps err onto a status
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, name string, v any, err error) {
	if err != nil {
		status, code := http.StatusInternalServerError, httputil.CodeInternal
		if errors.Is(err, service.ErrNotFound) {
			status, code = http.StatusNotFound, httputil.CodeNotFound
		} else {
			h.Log.Errorf("%s handler error: %v", name, err)
		}
		if werr := httputil.Error(w, r, status, code, err.Error(), nil); werr != nil {
			h.Log.Errorf("%s handler write error: %v", name, werr)
		}
		return
	}

	if werr := httputil.JSON(w, http.StatusOK, v, nil); werr != nil {
		h.Log.Errorf("%s handler write error: %v", name, werr)
	}
}
