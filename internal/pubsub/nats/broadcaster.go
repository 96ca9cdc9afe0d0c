package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"gitlab.com/nevasik7/alerting/logger"

	"dexindexer/internal/config"
	"dexindexer/internal/pubsub"
)

var (
	ErrNotConnected = errors.New("nats: connection not ready")

	_ pubsub.Broadcaster = (*Client)(nil)
)

type Client struct {
	nc     *nats.Conn
	log    logger.Logger
	prefix string
}

func New(log logger.Logger, cfg *config.NATSConfig) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	url := cfg.URL
	if url == "" {
		return nil, errors.New("nats url is required")
	}

	name := cfg.Name
	if name == "" {
		name = "dexindexer"
	}

	opts := []nats.Option{
		nats.Name(name),
		nats.Timeout(5 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1), // endless reconnect
		nats.ReconnectWait(2 * time.Second),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Infof("Connected to NATS successfully, url=%s", url)

	return &Client{
		nc:     nc,
		log:    log,
		prefix: cfg.BroadcastPrefix,
	}, nil
}

// Publish sends data as JSON to prefix.subject
func (c *Client) Publish(_ context.Context, subject string, data interface{}) error {
	if !c.Ready() {
		return ErrNotConnected
	}

	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode message for %s: %w", subject, err)
	}

	full := c.subject(subject)
	if err = c.nc.Publish(full, b); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", full, err)
	}
	return nil
}

func (c *Client) Health(_ context.Context) error {
	if !c.Ready() {
		return ErrNotConnected
	}
	return nil
}

// QueueSubscribe delivers raw messages of subject to handler; a non-empty queue load-balances instances
func (c *Client) QueueSubscribe(subject, queue string, handler func(msg *nats.Msg)) (*nats.Subscription, error) {
	if c.nc == nil {
		return nil, ErrNotConnected
	}

	var (
		sub *nats.Subscription
		err error
	)
	if queue == "" {
		sub, err = c.nc.Subscribe(subject, handler)
	} else {
		sub, err = c.nc.QueueSubscribe(subject, queue, handler)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return sub, nil
}

// Conn exposes the underlying connection for tools
func (c *Client) Conn() *nats.Conn {
	return c.nc
}

func (c *Client) Ready() bool {
	if c.nc == nil {
		return false
	}
	return c.nc.Status() == nats.CONNECTED
}

func (c *Client) Status() nats.Status {
	if c.nc == nil {
		return nats.DISCONNECTED
	}
	return c.nc.Status()
}

func (c *Client) Close() error {
	if c.nc == nil {
		return nil
	}

	if c.nc.Status() == nats.CLOSED {
		return nil
	}

	if err := c.nc.Drain(); err != nil {
		c.log.Errorf("Failed to drain connection to NATS, error=%v", err)
		c.nc.Close()
		return fmt.Errorf("failed to drain connection to NATS: %w", err)
	}

	c.nc.Close()
	c.log.Infof("NATS connection closed gracefully")
	return nil
}

func (c *Client) subject(s string) string {
	if c.prefix == "" {
		return s
	}
	return c.prefix + "." + s
}
