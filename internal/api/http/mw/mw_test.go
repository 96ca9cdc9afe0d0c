package mw

import (
	"compress/gzip"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexindexer/internal/config"
	"dexindexer/internal/metrics"
	"dexindexer/internal/security"
	"dexindexer/internal/stores/redis"
	tu "dexindexer/internal/testutil"
	"dexindexer/pkg/httputil"
)

// ========== Test Helpers ==========

// fakeVerifier accepts "Bearer <subject>" and rejects everything else
type fakeVerifier struct {
	scopeErr bool
}

func (f fakeVerifier) VerifyBearer(h string) (*security.Claims, error) {
	sub, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || sub == "" {
		return nil, security.ErrNoBearerToken
	}
	if f.scopeErr {
		return nil, security.ErrMissingScope
	}
	return &security.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: sub}}, nil
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := &redis.Client{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func request(remote, auth string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/bundle", nil)
	req.RemoteAddr = remote
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	return req
}

func newLimiter(t *testing.T, ipBurst, jwtBurst int, v security.Verifier) (*miniredis.Miniredis, *RateLimitMiddleware) {
	t.Helper()

	mr, rdb := setupTestRedis(t)
	cfg := &config.RateLimitConfig{
		Enabled: true,
		ByIP:    config.RateBucket{RefillPerSec: 1, Burst: ipBurst},
		ByJWT:   config.RateBucket{RefillPerSec: 1, Burst: jwtBurst},
	}
	return mr, NewRateLimit(cfg, rdb, v)
}

// ========== JWT Tests ==========

func TestNewJWTMiddleware(t *testing.T) {
	_, err := NewJWTMiddleware(nil)
	assert.Error(t, err)

	m, err := NewJWTMiddleware(fakeVerifier{})
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestJWTMiddleware_Handler(t *testing.T) {
	m, err := NewJWTMiddleware(fakeVerifier{})
	require.NoError(t, err)

	var seen string
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClaimsFromContext(r.Context()).Subject
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid_token_sets_claims", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("192.0.2.1:1000", "Bearer dashboard"))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "dashboard", seen)
	})

	t.Run("missing_token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("192.0.2.1:1000", ""))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "unauthorized")
	})

	t.Run("missing_scope_is_forbidden", func(t *testing.T) {
		m, err := NewJWTMiddleware(fakeVerifier{scopeErr: true})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		m.Handler(okHandler()).ServeHTTP(rec, request("192.0.2.1:1000", "Bearer dashboard"))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), httputil.CodeForbidden)
	})
}

func TestClaimsFromContext(t *testing.T) {
	assert.Nil(t, ClaimsFromContext(context.Background()))

	ctx := context.WithValue(context.Background(), claimsCtxKey{}, "not claims")
	assert.Nil(t, ClaimsFromContext(ctx))
}

// ========== Rate Limit Tests ==========

func TestNewRateLimit(t *testing.T) {
	_, rdb := setupTestRedis(t)

	assert.Panics(t, func() { NewRateLimit(nil, rdb, nil) })
	assert.Panics(t, func() { NewRateLimit(&config.RateLimitConfig{}, nil, nil) })

	m := NewRateLimit(&config.RateLimitConfig{}, rdb, nil)
	assert.Equal(t, defaultBucketTTL, m.Cfg.ByIP.TTL)
	assert.Equal(t, defaultBucketTTL, m.Cfg.ByJWT.TTL)
}

func TestRateLimit_ByIP(t *testing.T) {
	mr, m := newLimiter(t, 3, 100, nil)
	h := m.Handler(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("192.0.2.1:1000", ""))
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
		assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request("192.0.2.1:1000", ""))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	// other clients keep their own bucket
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, request("192.0.2.2:1000", ""))
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.True(t, mr.Exists(keyPrefixIP+"192.0.2.1"))
	assert.Greater(t, mr.TTL(keyPrefixIP+"192.0.2.1"), time.Duration(0))
}

func TestRateLimit_BySubject(t *testing.T) {
	mr, m := newLimiter(t, 100, 2, fakeVerifier{})
	h := m.Handler(okHandler())

	// the subject bucket follows the token across addresses
	for i, remote := range []string{"192.0.2.1:1000", "192.0.2.2:1000"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request(remote, "Bearer dashboard"))
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request("192.0.2.3:1000", "Bearer dashboard"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, request("192.0.2.3:1000", "Bearer other"))
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.True(t, mr.Exists(keyPrefixJWT+"dashboard"))
}

func TestRateLimit_RedisDownFailsOpen(t *testing.T) {
	mr, m := newLimiter(t, 1, 1, nil)
	m.Log = tu.Logger()
	mr.Close()

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		m.Handler(okHandler()).ServeHTTP(rec, request("192.0.2.1:1000", ""))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestCalculateRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		left   float64
		refill int
		want   int
	}{
		{name: "empty_bucket", left: 0, refill: 1, want: 1},
		{name: "partial_token", left: 0.5, refill: 1, want: 1},
		{name: "slow_refill", left: 0, refill: 0, want: 60},
		{name: "fast_refill", left: 0, refill: 100, want: 1},
		{name: "token_available", left: 2, refill: 1, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calculateRetryAfter(tt.left, tt.refill))
		})
	}
}

func TestExtractClientIP(t *testing.T) {
	trusted := parseTrusted([]string{"10.0.0.0/8", " 172.16.0.1 ", "", "not-an-ip"})
	require.Len(t, trusted, 2)

	tests := []struct {
		name   string
		remote string
		xff    string
		xrip   string
		want   string
	}{
		{name: "direct_client_ignores_xff", remote: "203.0.113.7:5555", xff: "1.2.3.4", want: "203.0.113.7"},
		{name: "trusted_proxy_uses_xff", remote: "10.1.2.3:80", xff: "198.51.100.9", want: "198.51.100.9"},
		{name: "skips_trusted_hops", remote: "10.1.2.3:80", xff: "198.51.100.9, 172.16.0.1, 10.0.0.5", want: "198.51.100.9"},
		{name: "rightmost_untrusted_wins", remote: "10.1.2.3:80", xff: "6.6.6.6, 198.51.100.9", want: "198.51.100.9"},
		{name: "x_real_ip_fallback", remote: "10.1.2.3:80", xrip: "198.51.100.10", want: "198.51.100.10"},
		{name: "all_trusted_returns_peer", remote: "10.1.2.3:80", xff: "10.0.0.9", want: "10.1.2.3"},
		{name: "no_port", remote: "203.0.113.7", want: "203.0.113.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xrip != "" {
				req.Header.Set("X-Real-IP", tt.xrip)
			}
			assert.Equal(t, tt.want, extractClientIP(req, trusted))
		})
	}
}

func TestIsTrusted(t *testing.T) {
	trusted := parseTrusted([]string{"10.0.0.0/8", "::1"})
	assert.True(t, isTrusted(net.ParseIP("10.9.9.9"), trusted))
	assert.True(t, isTrusted(net.ParseIP("::1"), trusted))
	assert.False(t, isTrusted(net.ParseIP("11.0.0.1"), trusted))
	assert.False(t, isTrusted(nil, trusted))
}

// ========== CORS / Gzip / Logging Tests ==========

func TestCORS(t *testing.T) {
	assert.Panics(t, func() { NewCORS(nil) })

	t.Run("wildcard", func(t *testing.T) {
		h := NewCORS(&config.CORSConfig{}).Handler()(okHandler())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("allow_list", func(t *testing.T) {
		h := NewCORS(&config.CORSConfig{Origins: []string{"", "https://app.example"}}).Handler()(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://app.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

		req.Header.Set("Origin", "https://evil.example")
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		h := NewCORS(&config.CORSConfig{}).Handler()(okHandler())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestGzip(t *testing.T) {
	body := strings.Repeat(`{"pool":"0xabc"}`, 100)
	h := NewGzip(0, tu.Logger()).Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, body)
	}))

	t.Run("compresses", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Encoding", "gzip, deflate")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
		zr, err := gzip.NewReader(rec.Body)
		require.NoError(t, err)
		got, err := io.ReadAll(zr)
		require.NoError(t, err)
		assert.Equal(t, body, string(got))
	})

	t.Run("plain_without_accept", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Empty(t, rec.Header().Get("Content-Encoding"))
		assert.Equal(t, body, rec.Body.String())
	})

	t.Run("skips_websocket_upgrade", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		req.Header.Set("Upgrade", "websocket")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Empty(t, rec.Header().Get("Content-Encoding"))
	})
}

func TestLogging_CountsByRoutePattern(t *testing.T) {
	m := metrics.New()

	r := chi.NewRouter()
	r.Use(NewLogging(tu.Logger(), m).Handler)
	r.Get("/api/pools/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"0xa", "0xb"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/pools/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/api/pools/{id}", "404")))
}

func TestLoggingRW_HijackUnsupported(t *testing.T) {
	lrw := &loggingRW{ResponseWriter: httptest.NewRecorder()}
	_, _, err := lrw.Hijack()
	assert.Error(t, err)
}
