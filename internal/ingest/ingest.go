package ingest

import (
	"context"
	"errors"
	"fmt"

	"gitlab.com/nevasik7/alerting/logger"

	"dexindexer/internal/config"
	natspkg "dexindexer/internal/pubsub/nats"
)

// Processor handles the raw wire form of one event envelope
type Processor interface {
	ProcessRaw(ctx context.Context, data []byte) error
}

// Consumer feeds broker messages to a Processor until Close
type Consumer interface {
	Start(ctx context.Context) error
	Close() error
}

var ErrUnknownBroker = errors.New("unknown broker type")

// New selects the consumer from ingest.broker_type
func New(log logger.Logger, cfg *config.IngestConfig, nc *natspkg.Client, proc Processor) (Consumer, error) {
	if cfg == nil {
		return nil, errors.New("config is required to the ingest consumer")
	}

	switch cfg.BrokerType {
	case "", "nats":
		return NewNATSConsumer(log, &cfg.NATS, nc, proc)
	case "amqp":
		return NewAMQPConsumer(log, &cfg.AMQP, proc)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBroker, cfg.BrokerType)
	}
}
