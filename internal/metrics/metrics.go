package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dexindexer"

// Event outcomes
const (
	StatusOK        = "ok"
	StatusDuplicate = "duplicate"
	StatusFailed    = "failed"
	StatusMalformed = "malformed"
)

type Metrics struct {
	reg *prometheus.Registry

	EventsTotal       *prometheus.CounterVec
	EventDuration     *prometheus.HistogramVec
	EntitiesCommitted prometheus.Counter
	AuditRows         *prometheus.CounterVec
	BroadcastErrors   prometheus.Counter
	WindowLate        prometheus.Counter
	HTTPRequests      *prometheus.CounterVec
	WSClients         prometheus.Gauge
	LastBlock         prometheus.Gauge
}

// New registers the indexer collectors plus the go and process collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Processed chain events by kind and outcome.",
		}, []string{"kind", "status"}),
		EventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_duration_seconds",
			Help:      "Time to apply and commit one event.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"kind"}),
		EntitiesCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_committed_total",
			Help:      "Entities written by committed sessions.",
		}),
		AuditRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_rows_total",
			Help:      "Audit rows flushed to clickhouse by outcome.",
		}, []string{"status"}),
		BroadcastErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_errors_total",
			Help:      "Failed patch publications.",
		}),
		WindowLate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "window_late_swaps_total",
			Help:      "Swaps older than the rolling window watermark.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected websocket clients.",
		}),
		LastBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_block",
			Help:      "Block number of the last committed event.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.EventsTotal,
		m.EventDuration,
		m.EntitiesCommitted,
		m.AuditRows,
		m.BroadcastErrors,
		m.WindowLate,
		m.HTTPRequests,
		m.WSClients,
		m.LastBlock,
	)
	return m
}

// ObserveEvent records one processed event
func (m *Metrics) ObserveEvent(kind, status string, started time.Time) {
	m.EventsTotal.WithLabelValues(kind, status).Inc()
	if status == StatusOK {
		m.EventDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
	}
}

// ObserveAuditFlush matches the clickhouse writer flush hook
func (m *Metrics) ObserveAuditFlush(rows int, err error) {
	status := StatusOK
	if err != nil {
		status = StatusFailed
	}
	m.AuditRows.WithLabelValues(status).Add(float64(rows))
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
