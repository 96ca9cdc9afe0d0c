package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexindexer/internal/api/http/handlers"
	"dexindexer/internal/api/http/mw"
	"dexindexer/internal/config"
	"dexindexer/internal/domain"
	"dexindexer/internal/metrics"
	"dexindexer/internal/security"
	"dexindexer/internal/service"
	tu "dexindexer/internal/testutil"
)

// ========== Test Helpers ==========

type fakeQuerier struct {
	depErr  error
	pools   map[string]*domain.Pool
	days    map[string]*domain.PoolDayData
	windows map[string]*domain.Windows
}

func notFound(id string) error { return fmt.Errorf("%w: %s", service.ErrNotFound, id) }

func (f *fakeQuerier) CheckDependency(context.Context) error { return f.depErr }
func (f *fakeQuerier) Stats() service.Stats                  { return service.Stats{Processed: 7, LastBlock: 42} }

func (f *fakeQuerier) Bundle(context.Context) (*domain.Bundle, error) {
	return &domain.Bundle{ID: domain.BundleID, NativePriceUSD: decimal.NewFromInt(1800)}, nil
}

func (f *fakeQuerier) Factory(context.Context) (*domain.Factory, error) {
	return nil, errors.New("backend exploded")
}

func (f *fakeQuerier) Pool(_ context.Context, id string) (*domain.Pool, error) {
	if p, ok := f.pools[strings.ToLower(id)]; ok {
		return p, nil
	}
	return nil, notFound(id)
}

func (f *fakeQuerier) PoolDayData(_ context.Context, poolID string, day int64) (*domain.PoolDayData, error) {
	id := domain.BucketID(poolID, day)
	if d, ok := f.days[id]; ok {
		return d, nil
	}
	return nil, notFound(id)
}

func (f *fakeQuerier) Token(_ context.Context, id string) (*domain.Token, error) {
	return nil, notFound(id)
}

func (f *fakeQuerier) TokenWindows(_ context.Context, id string) (*domain.Windows, error) {
	if w, ok := f.windows[id]; ok {
		return w, nil
	}
	return nil, notFound(id)
}

func (f *fakeQuerier) WindowTokens() []string {
	out := make([]string, 0, len(f.windows))
	for k := range f.windows {
		out = append(out, k)
	}
	return out
}

func (f *fakeQuerier) LMPool(_ context.Context, pid string) (*domain.LMPool, error) {
	return &domain.LMPool{ID: pid, Pool: tu.USDCWIPPool}, nil
}

type stubVerifier struct{}

func (stubVerifier) VerifyBearer(h string) (*security.Claims, error) {
	if h != "Bearer good" {
		return nil, security.ErrNoBearerToken
	}
	return &security.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "dashboard"}}, nil
}

func newFake() *fakeQuerier {
	pool := &domain.Pool{ID: tu.USDCWIPPool, FeeTier: tu.FeeTier03}
	day := &domain.PoolDayData{}
	day.ID = domain.BucketID(tu.USDCWIPPool, 19675)
	day.Pool = tu.USDCWIPPool
	day.TxCount = 3

	return &fakeQuerier{
		pools: map[string]*domain.Pool{tu.USDCWIPPool: pool},
		days:  map[string]*domain.PoolDayData{day.ID: day},
		windows: map[string]*domain.Windows{
			tu.WIPAddress: {W5m: domain.Agg{VolumeUSD: decimal.NewFromInt(10), Trades: 1, Buys: 1}},
		},
	}
}

func newRouter(t *testing.T, q handlers.Querier, m Middlewares) http.Handler {
	t.Helper()
	return BuildRouter(handlers.NewHandler(tu.Logger(), q), metrics.New().Handler(), nil, m)
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  struct {
		Code string `json:"code"`
	} `json:"error"`
}

func get(t *testing.T, h http.Handler, path string, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") && rec.Header().Get("Content-Encoding") == "" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

// ========== Route Tests ==========

func TestRouter_Probes(t *testing.T) {
	q := newFake()
	r := newRouter(t, q, Middlewares{})

	rec, env := get(t, r, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", env.Status)

	rec, _ = get(t, r, "/readiness")
	assert.Equal(t, http.StatusOK, rec.Code)

	q.depErr = errors.New("store: redis down")
	rec, env = get(t, r, "/readiness")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "dependencies_unhealthy", env.Error.Code)

	rec, _ = get(t, r, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRouter_Entities(t *testing.T) {
	r := newRouter(t, newFake(), Middlewares{})

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantBody string
		wantErr  string
	}{
		{name: "bundle", path: "/api/bundle", wantCode: 200, wantBody: `"native_price_usd":"1800"`},
		{name: "stats", path: "/api/stats", wantCode: 200, wantBody: `"last_block":42`},
		{name: "factory_internal_error", path: "/api/factory", wantCode: 500, wantErr: "internal"},
		{name: "pool", path: "/api/pools/" + tu.USDCWIPPool, wantCode: 200, wantBody: `"fee_tier":3000`},
		{name: "pool_missing", path: "/api/pools/0xdead", wantCode: 404, wantErr: "not_found"},
		{name: "pool_day", path: "/api/pools/" + tu.USDCWIPPool + "/day/19675", wantCode: 200, wantBody: `"tx_count":3`},
		{name: "pool_day_bad_index", path: "/api/pools/" + tu.USDCWIPPool + "/day/yesterday", wantCode: 400, wantErr: "bad_request"},
		{name: "pool_day_negative", path: "/api/pools/" + tu.USDCWIPPool + "/day/-1", wantCode: 400, wantErr: "bad_request"},
		{name: "token_missing", path: "/api/tokens/" + tu.USDCAddress, wantCode: 404, wantErr: "not_found"},
		{name: "token_windows", path: "/api/tokens/" + tu.WIPAddress + "/windows", wantCode: 200, wantBody: `"trades":1`},
		{name: "token_windows_missing", path: "/api/tokens/" + tu.WBTCAddress + "/windows", wantCode: 404, wantErr: "not_found"},
		{name: "active_tokens", path: "/api/tokens", wantCode: 200, wantBody: tu.WIPAddress},
		{name: "lm_pool", path: "/api/lm/pools/4", wantCode: 200, wantBody: `"id":"4"`},
		{name: "unknown_route", path: "/api/nope", wantCode: 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := get(t, r, tt.path)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantBody != "" {
				assert.Equal(t, "ok", env.Status)
				assert.Contains(t, string(env.Data), tt.wantBody)
			}
			if tt.wantErr != "" {
				assert.Equal(t, "error", env.Status)
				assert.Equal(t, tt.wantErr, env.Error.Code)
			}
		})
	}
}

func TestRouter_JWTGuardsAPIOnly(t *testing.T) {
	jwtMW, err := mw.NewJWTMiddleware(stubVerifier{})
	require.NoError(t, err)
	r := newRouter(t, newFake(), Middlewares{JWT: jwtMW})

	rec, _ := get(t, r, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := get(t, r, "/api/bundle")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", env.Error.Code)

	rec, _ = get(t, r, "/api/bundle", "Authorization", "Bearer good")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_FullMiddlewareStack(t *testing.T) {
	m := metrics.New()
	r := BuildRouter(handlers.NewHandler(tu.Logger(), newFake()), m.Handler(), nil, Middlewares{
		Log:  mw.NewLogging(tu.Logger(), m),
		Gzip: mw.NewGzip(0, tu.Logger()),
		CORS: mw.NewCORS(&config.CORSConfig{}),
	})

	rec, _ := get(t, r, "/api/bundle", "Accept-Encoding", "gzip")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

// ========== Server Tests ==========

func TestNewServer(t *testing.T) {
	_, err := NewServer(nil)
	assert.Error(t, err)

	_, err = NewServer(&ServerDeps{Logger: tu.Logger(), Cfg: &config.HTTPConfig{}})
	assert.Error(t, err)

	s, err := NewServer(&ServerDeps{Logger: tu.Logger(), Cfg: &config.HTTPConfig{}, Handler: http.NotFoundHandler()})
	require.NoError(t, err)
	assert.Equal(t, defaultAddr, s.Addr())
	assert.Equal(t, defaultReadTimeout, s.srv.ReadTimeout)
}

func TestServer_StartShutdown(t *testing.T) {
	r := newRouter(t, newFake(), Middlewares{})
	s, err := NewServer(&ServerDeps{Logger: tu.Logger(), Cfg: &config.HTTPConfig{Addr: "127.0.0.1:0"}, Handler: r})
	require.NoError(t, err)
	require.NoError(t, s.Listen())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.ErrorIs(t, <-errCh, http.ErrServerClosed)
}
