package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	opSubscribe   = "subscribe"
	opUnsubscribe = "unsubscribe"
	opPing        = "ping"
)

// request is a client control frame, e.g. {"op":"subscribe","topics":["entity.pool"]}
type request struct {
	Op     string   `json:"op"`
	Topics []string `json:"topics"`
}

// reply acknowledges a control frame
type reply struct {
	Op     string   `json:"op"`
	Topics []string `json:"topics,omitempty"`
	Error  string   `json:"error,omitempty"`
}

type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu   sync.RWMutex
	subs map[string]struct{}

	closeOnce sync.Once
}

func newClient(h *Hub, id string, conn *websocket.Conn) *client {
	return &client{
		id:   id,
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
		done: make(chan struct{}),
		subs: make(map[string]struct{}),
	}
}

func (c *client) subscribed(subject string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for s := range c.subs {
		if matches(s, subject) {
			return true
		}
	}
	return false
}

// enqueue never blocks; false means the buffer is full
func (c *client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *client) readPump() {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(c.hub.readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * c.hub.heartbeat))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * c.hub.heartbeat))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debugf("websocket client %s read error: %v", c.id, err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(2 * c.hub.heartbeat))

		c.handle(data)
	}
}

func (c *client) handle(data []byte) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply(reply{Op: "error", Error: "malformed request"})
		return
	}

	switch req.Op {
	case opSubscribe:
		c.mu.Lock()
		for _, t := range req.Topics {
			if t != "" {
				c.subs[t] = struct{}{}
			}
		}
		c.mu.Unlock()
		c.reply(reply{Op: "subscribed", Topics: req.Topics})
	case opUnsubscribe:
		c.mu.Lock()
		for _, t := range req.Topics {
			delete(c.subs, t)
		}
		c.mu.Unlock()
		c.reply(reply{Op: "unsubscribed", Topics: req.Topics})
	case opPing:
		c.reply(reply{Op: "pong"})
	default:
		c.reply(reply{Op: "error", Error: "unknown op " + req.Op})
	}
}

func (c *client) reply(r reply) {
	b, err := json.Marshal(r)
	if err != nil {
		return
	}
	if !c.enqueue(b) {
		c.hub.log.Warnf("websocket client %s reply dropped, buffer full", c.id)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.heartbeat)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.hub.writeTimeout)); err != nil {
				return
			}
		}
	}
}
