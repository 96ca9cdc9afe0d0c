package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"gitlab.com/nevasik7/alerting/logger"

	"dexindexer/internal/config"
	"dexindexer/internal/domain"
)

// AMQPConsumer reads envelopes from a durable RabbitMQ queue with manual acks
type AMQPConsumer struct {
	log  logger.Logger
	cfg  config.AMQPIngest
	proc Processor

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
	done chan struct{}
}

func NewAMQPConsumer(log logger.Logger, cfg *config.AMQPIngest, proc Processor) (*AMQPConsumer, error) {
	if cfg == nil {
		return nil, errors.New("config is required to the amqp consumer")
	}
	if cfg.URL == "" {
		return nil, errors.New("amqp url is required")
	}

	c := *cfg
	if c.Queue == "" {
		c.Queue = "dexindexer.events"
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 64
	}

	return &AMQPConsumer{log: log, cfg: c, proc: proc}, nil
}

func (c *AMQPConsumer) Start(ctx context.Context) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open amqp channel: %w", err)
	}

	deliveries, err := c.declare(ch)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn, c.ch = conn, ch
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		for d := range deliveries {
			c.settle(d, c.proc.ProcessRaw(ctx, d.Body))
		}
	}()

	c.log.Infof("AMQP consumer started, queue=%s, prefetch=%d", c.cfg.Queue, c.cfg.Prefetch)
	return nil
}

func (c *AMQPConsumer) declare(ch *amqp.Channel) (<-chan amqp.Delivery, error) {
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set amqp qos: %w", err)
	}

	q, err := ch.QueueDeclare(
		c.cfg.Queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", c.cfg.Queue, err)
	}

	if c.cfg.Exchange != "" {
		if err = ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("failed to declare exchange %s: %w", c.cfg.Exchange, err)
		}
		if err = ch.QueueBind(q.Name, c.cfg.Key, c.cfg.Exchange, false, nil); err != nil {
			return nil, fmt.Errorf("failed to bind queue %s: %w", q.Name, err)
		}
	}

	deliveries, err := ch.Consume(
		q.Name,
		"",    // consumer
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume %s: %w", q.Name, err)
	}
	return deliveries, nil
}

// settle acks processed deliveries, drops permanent failures and requeues the rest
func (c *AMQPConsumer) settle(d amqp.Delivery, procErr error) {
	var err error
	switch {
	case procErr == nil:
		err = d.Ack(false)
	case domain.IsPermanent(procErr):
		c.log.Errorf("Dropping malformed event %s: %v", d.MessageId, procErr)
		err = d.Nack(false, false)
	default:
		c.log.Warnf("Requeue event %s: %v", d.MessageId, procErr)
		err = d.Nack(false, true)
	}
	if err != nil {
		c.log.Errorf("Failed to settle amqp delivery %d: %v", d.DeliveryTag, err)
	}
}

func (c *AMQPConsumer) Close() error {
	c.mu.Lock()
	ch, conn, done := c.ch, c.conn, c.done
	c.ch, c.conn = nil, nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	var errs []error
	if err := ch.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := conn.Close(); err != nil {
		errs = append(errs, err)
	}
	<-done

	return errors.Join(errs...)
}
