package mw

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gitlab.com/nevasik7/alerting/logger"

	"dexindexer/internal/config"
	"dexindexer/internal/security"
	"dexindexer/internal/stores/redis"
	"dexindexer/pkg/httputil"
)

const (
	defaultBucketTTL = 2 * time.Minute
	keyPrefixIP      = "dexindexer:rl:ip:"
	keyPrefixJWT     = "dexindexer:rl:jwt:"
)

type RateLimitMiddleware struct {
	Cfg      *config.RateLimitConfig
	Rdb      *redis.Client
	Verifier security.Verifier // optional
	Log      logger.Logger     // optional
	trusted  []*net.IPNet
}

// NewRateLimit builds a per IP and per token subject limiter over redis token buckets
func NewRateLimit(cfg *config.RateLimitConfig, rdb *redis.Client, verifier security.Verifier) *RateLimitMiddleware {
	if cfg == nil {
		panic("rate limit config cannot be nil")
	}
	if rdb == nil {
		panic("redis client cannot be nil")
	}

	if cfg.ByIP.TTL == 0 {
		cfg.ByIP.TTL = defaultBucketTTL
	}
	if cfg.ByJWT.TTL == 0 {
		cfg.ByJWT.TTL = defaultBucketTTL
	}

	return &RateLimitMiddleware{
		Cfg:      cfg,
		Rdb:      rdb,
		Verifier: verifier,
		trusted:  parseTrusted(cfg.TrustedProxiesList),
	}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now()

		ip := extractClientIP(r, m.trusted)
		if ip == "" {
			ip = "unknown"
		}

		okIP, leftIP := m.allow(ctx, keyPrefixIP+ip, now, m.Cfg.ByIP)
		bucket, left := m.Cfg.ByIP, leftIP
		ok := okIP

		sub := subjectFromContext(r)
		if sub == "" && m.Verifier != nil {
			if c, err := m.Verifier.VerifyBearer(r.Header.Get("Authorization")); err == nil {
				sub = c.Subject
			}
		}
		if sub != "" {
			okJWT, leftJWT := m.allow(ctx, keyPrefixJWT+sub, now, m.Cfg.ByJWT)
			if !okJWT || (okIP && leftJWT < leftIP) {
				bucket, left = m.Cfg.ByJWT, leftJWT
			}
			ok = ok && okJWT
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(bucket.Burst))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(math.Floor(left))))

		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(calculateRetryAfter(left, bucket.RefillPerSec)))
			_ = httputil.Error(w, r, http.StatusTooManyRequests, httputil.CodeRateLimited, "rate limit exceeded", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// --- redis token-bucket (Lua) for atomic and one query ---
var luaTokenBucket = goredis.NewScript(`
-- KEYS[1] = key
-- ARGV[1] = now_ms
-- ARGV[2] = refill_per_sec
-- ARGV[3] = burst
-- ARGV[4] = ttl_seconds
local key   = KEYS[1]
local now   = tonumber(ARGV[1])
local rate  = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local ttl   = tonumber(ARGV[4])

local last_ms = tonumber(redis.call('HGET', key, 'ts') or now)
local tokens  = tonumber(redis.call('HGET', key, 'tok') or burst)

if now > last_ms then
  local delta = (now - last_ms) / 1000.0
  tokens = math.min(burst, tokens + (delta * rate))
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', key, 'tok', tokens, 'ts', now)
redis.call('EXPIRE', key, ttl)

return {allowed, tostring(tokens)}
`)

// allow fails open when redis is unavailable
func (m *RateLimitMiddleware) allow(ctx context.Context, key string, now time.Time, b config.RateBucket) (bool, float64) {
	ttl := int(b.TTL.Seconds())
	if ttl <= 0 {
		ttl = int(defaultBucketTTL.Seconds())
	}

	res, err := luaTokenBucket.Run(ctx, m.Rdb.Client, []string{key},
		now.UnixMilli(),
		b.RefillPerSec,
		b.Burst,
		ttl,
	).Slice()
	if err != nil || len(res) < 2 {
		if err != nil && m.Log != nil {
			m.Log.Warnf("rate limit check failed, key=%s: %v", key, err)
		}
		return true, float64(b.Burst)
	}

	allowed, _ := res[0].(int64)
	s, _ := res[1].(string)
	left, _ := strconv.ParseFloat(s, 64)

	return allowed == 1, left
}

// calculateRetryAfter is the whole seconds until one token refills, at least 1
func calculateRetryAfter(tokensLeft float64, refillPerSec int) int {
	if refillPerSec <= 0 {
		return 60
	}
	need := 1 - tokensLeft
	if need <= 0 {
		return 1
	}
	return max(1, int(math.Ceil(need/float64(refillPerSec))))
}

func parseTrusted(list []string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(list))
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !strings.Contains(s, "/") {
			if ip := net.ParseIP(s); ip != nil && ip.To4() != nil {
				s += "/32"
			} else {
				s += "/128"
			}
		}
		if _, n, err := net.ParseCIDR(s); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func isTrusted(ip net.IP, trusted []*net.IPNet) bool {
	if ip == nil {
		return false
	}
	for _, n := range trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func remoteAddrIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseXFF(h string) []string {
	if h == "" {
		return nil
	}
	parts := strings.Split(h, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// extractClientIP honours X-Forwarded-For only when the direct peer is a trusted proxy;
// the hop list is walked right to left and the first untrusted address wins
func extractClientIP(r *http.Request, trusted []*net.IPNet) string {
	remote := remoteAddrIP(r)
	if !isTrusted(net.ParseIP(remote), trusted) {
		return remote
	}

	hops := parseXFF(r.Header.Get("X-Forwarded-For"))
	for i := len(hops) - 1; i >= 0; i-- {
		ip := net.ParseIP(hops[i])
		if ip == nil {
			continue
		}
		if !isTrusted(ip, trusted) {
			return ip.String()
		}
	}

	if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); xrip != "" && net.ParseIP(xrip) != nil {
		return xrip
	}
	return remote
}
