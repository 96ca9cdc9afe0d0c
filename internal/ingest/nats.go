package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"gitlab.com/nevasik7/alerting/logger"

	"dexindexer/internal/config"
	natspkg "dexindexer/internal/pubsub/nats"
)

// NATSConsumer reads envelopes from a core NATS subject; there is no redelivery, failures are logged
type NATSConsumer struct {
	log     logger.Logger
	nc      *natspkg.Client
	proc    Processor
	subject string
	queue   string

	mu  sync.Mutex
	sub *nats.Subscription
}

func NewNATSConsumer(log logger.Logger, cfg *config.NATSIngest, nc *natspkg.Client, proc Processor) (*NATSConsumer, error) {
	if cfg == nil {
		return nil, errors.New("config is required to the nats consumer")
	}
	if nc == nil {
		return nil, errors.New("nats client is required to the nats consumer")
	}

	subject := cfg.Subject
	if subject == "" {
		subject = "dexindexer.events"
	}

	return &NATSConsumer{
		log:     log,
		nc:      nc,
		proc:    proc,
		subject: subject,
		queue:   cfg.Queue,
	}, nil
}

func (c *NATSConsumer) Start(ctx context.Context) error {
	sub, err := c.nc.QueueSubscribe(c.subject, c.queue, func(msg *nats.Msg) {
		if err := c.proc.ProcessRaw(ctx, msg.Data); err != nil {
			c.log.Errorf("Failed to process event from %s: %v", msg.Subject, err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to start nats consumer: %w", err)
	}

	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()

	c.log.Infof("NATS consumer started, subject=%s, queue=%s", c.subject, c.queue)
	return nil
}

func (c *NATSConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub == nil {
		return nil
	}
	err := c.sub.Unsubscribe()
	c.sub = nil
	if err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("failed to unsubscribe nats consumer: %w", err)
	}
	return nil
}
