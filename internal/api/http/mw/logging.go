package mw

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gitlab.com/nevasik7/alerting/logger"

	"dexindexer/internal/metrics"
)

type LoggingMiddleware struct {
	Log     logger.Logger
	Metrics *metrics.Metrics // optional
}

func NewLogging(log logger.Logger, m *metrics.Metrics) *LoggingMiddleware {
	return &LoggingMiddleware{Log: log, Metrics: m}
}

func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lrw := &loggingRW{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lrw, r)

		route := routePattern(r)
		if m.Metrics != nil {
			m.Metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(lrw.status)).Inc()
		}

		m.Log.WithFields(map[string]interface{}{
			"method":     r.Method,
			"route":      route,
			"path":       r.URL.Path,
			"status":     lrw.status,
			"size":       lrw.size,
			"dur_ms":     time.Since(start).Milliseconds(),
			"ip":         remoteAddrIP(r),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}

// routePattern is the matched chi pattern, never the raw path
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type loggingRW struct {
	http.ResponseWriter
	status      int
	size        int
	wroteHeader bool
}

func (w *loggingRW) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingRW) Write(b []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func (w *loggingRW) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets websocket upgrades pass through the logger
func (w *loggingRW) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
