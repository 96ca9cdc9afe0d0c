package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"gitlab.com/nevasik7/alerting/logger"

	"dexindexer/internal/config"
	"dexindexer/internal/metrics"
	"dexindexer/internal/pubsub"
)

const (
	defaultMaxConn           = 1024
	defaultReadLimitBytes    = 4096
	defaultWriteTimeout      = 5 * time.Second
	defaultHeartbeatInterval = 30 * time.Second
	defaultSendBuffer        = 256
)

var ErrHubClosed = errors.New("websocket hub closed")

// Message is what clients receive for every matching publish
type Message struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// Hub pushes committed entity patches and window updates to subscribed websocket clients.
// A subscription matches a subject exactly, or by prefix when it ends with "*".
type Hub struct {
	log      logger.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	maxConn      int
	readLimit    int64
	writeTimeout time.Duration
	heartbeat    time.Duration
	sendBuffer   int

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

var _ pubsub.Broadcaster = (*Hub)(nil)

func NewHub(log logger.Logger, cfg *config.WSConfig, m *metrics.Metrics) (*Hub, error) {
	if cfg == nil {
		return nil, errors.New("config is required to the websocket hub")
	}

	h := &Hub{
		log:          log,
		metrics:      m,
		maxConn:      cfg.MaxConn,
		readLimit:    cfg.ReadLimitBytes,
		writeTimeout: cfg.WriteTimeout,
		heartbeat:    cfg.HeartbeatInterval,
		sendBuffer:   cfg.SendBuffer,
		clients:      make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	if h.maxConn <= 0 {
		h.maxConn = defaultMaxConn
	}
	if h.readLimit <= 0 {
		h.readLimit = defaultReadLimitBytes
	}
	if h.writeTimeout <= 0 {
		h.writeTimeout = defaultWriteTimeout
	}
	if h.heartbeat <= 0 {
		h.heartbeat = defaultHeartbeatInterval
	}
	if h.sendBuffer <= 0 {
		h.sendBuffer = defaultSendBuffer
	}

	return h, nil
}

// ServeHTTP upgrades the request and registers the client
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	full, closed := len(h.clients) >= h.maxConn, h.closed
	h.mu.RUnlock()
	if closed || full {
		http.Error(w, "websocket capacity reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("websocket upgrade failed: %v", err)
		return
	}

	c := newClient(h, uuid.NewString(), conn)
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "capacity reached"),
			time.Now().Add(h.writeTimeout))
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || len(h.clients) >= h.maxConn {
		return false
	}
	h.clients[c.id] = c
	if h.metrics != nil {
		h.metrics.WSClients.Inc()
	}
	h.log.Debugf("websocket client %s connected", c.id)
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		if h.metrics != nil {
			h.metrics.WSClients.Dec()
		}
	}
	h.mu.Unlock()

	c.close()
	h.log.Debugf("websocket client %s disconnected", c.id)
}

// Publish fans data out to every client subscribed to subject; slow clients are dropped
func (h *Hub) Publish(_ context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode websocket payload for %s: %w", subject, err)
	}
	frame, err := json.Marshal(Message{Topic: subject, Data: payload})
	if err != nil {
		return fmt.Errorf("failed to encode websocket frame for %s: %w", subject, err)
	}

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrHubClosed
	}
	var slow []*client
	for _, c := range h.clients {
		if !c.subscribed(subject) {
			continue
		}
		if !c.enqueue(frame) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warnf("websocket client %s too slow, dropping", c.id)
		h.unregister(c)
	}
	return nil
}

func (h *Hub) Health(context.Context) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrHubClosed
	}
	return nil
}

// Clients is the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client; further publishes fail with ErrHubClosed
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
	h.log.Info("websocket hub closed")
}

func matches(sub, subject string) bool {
	if prefix, ok := strings.CutSuffix(sub, "*"); ok {
		return strings.HasPrefix(subject, prefix)
	}
	return sub == subject
}
