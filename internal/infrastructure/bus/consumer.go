package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/lanepoint/realtime-gateway/internal/domain/event"
	"github.com/lanepoint/realtime-gateway/internal/infrastructure/config"
	"github.com/lanepoint/realtime-gateway/internal/metrics"
)

// Handler dispatches one decoded domain event. A non-nil error sends the
// message back to the queue for redelivery.
type Handler func(ctx context.Context, ev event.DomainEvent) error

// Consumer binds a durable named queue to the fixed list of domain event
// routing keys on a topic exchange and feeds every delivery through the
// handler. Messages are acked only after the handler returns nil; handler
// errors nack with requeue (at-least-once). The consumer loop never stops on
// a handler error, only on ctx cancellation.
type Consumer struct {
	cfg       *config.BusConfig
	handler   Handler
	metrics   *metrics.Registry
	logger    *zap.Logger
	connected atomic.Bool
}

func NewConsumer(cfg *config.BusConfig, handler Handler, reg *metrics.Registry, logger *zap.Logger) *Consumer {
	return &Consumer{cfg: cfg, handler: handler, metrics: reg, logger: logger}
}

// Connected reports whether a live consume channel is up. Used by the health
// endpoint.
func (c *Consumer) Connected() bool {
	return c.connected.Load()
}

// Run owns the bus connection until ctx is cancelled, reconnecting with
// exponential backoff when the broker drops it.
func (c *Consumer) Run(ctx context.Context) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0

	for {
		err := c.consume(ctx, policy)
		c.connected.Store(false)
		if ctx.Err() != nil {
			return
		}

		wait := policy.NextBackOff()
		c.logger.Warn("bus connection lost, reconnecting",
			zap.Error(err), zap.Duration("backoff", wait))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) consume(ctx context.Context, policy backoff.BackOff) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("bus dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("bus channel: %w", err)
	}
	defer ch.Close()

	if err := c.declare(ch); err != nil {
		return err
	}

	deliveries, err := ch.Consume(
		c.cfg.Queue,
		c.cfg.ConsumerTag,
		false, // manual ack
		false, // not exclusive
		false, // no-local unsupported by server, must be false
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("bus consume: %w", err)
	}

	// A fresh outage then starts from the initial backoff interval again.
	policy.Reset()
	c.connected.Store(true)
	c.logger.Info("bus subscription established",
		zap.String("exchange", c.cfg.Exchange),
		zap.String("queue", c.cfg.Queue),
		zap.Int("bindings", len(event.Types)))

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			return fmt.Errorf("bus connection closed: %v", amqpErr)
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("bus deliveries channel closed")
			}
			c.handleDelivery(ctx, d)
		}
	}
}

// declare sets up the durable topology: topic exchange, named queue, one
// binding per consumed event type.
func (c *Consumer) declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		c.cfg.Exchange,
		"topic",
		true,  // durable
		false, // no auto-delete
		false, false, nil,
	); err != nil {
		return fmt.Errorf("declaring exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(
		c.cfg.Queue,
		true,  // durable
		false, // no auto-delete
		false, // not exclusive
		false, nil,
	); err != nil {
		return fmt.Errorf("declaring queue: %w", err)
	}

	for _, key := range event.Types {
		if err := ch.QueueBind(c.cfg.Queue, key, c.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("binding %s: %w", key, err)
		}
	}
	return nil
}

// handleDelivery decodes, dispatches and settles one message. Handler errors
// requeue; payloads that can never decode are rejected without requeue so
// they do not loop forever.
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	var ev event.DomainEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		c.logger.Warn("rejecting undecodable event",
			zap.String("routing_key", d.RoutingKey), zap.Error(err))
		if err := d.Reject(false); err != nil {
			c.logger.Warn("reject failed", zap.Error(err))
		}
		return
	}
	if ev.Type == "" {
		ev.Type = d.RoutingKey
	}

	if err := c.handler(ctx, ev); err != nil {
		c.metrics.EventsFailed.Inc()
		c.logger.Error("event dispatch failed, requeueing",
			zap.String("event_id", ev.ID),
			zap.String("event_type", ev.Type),
			zap.Error(err))
		if err := d.Nack(false, true); err != nil {
			c.logger.Warn("nack failed", zap.Error(err))
		}
		return
	}

	c.metrics.EventsConsumed.WithLabelValues(ev.Type).Inc()
	if err := d.Ack(false); err != nil {
		c.logger.Warn("ack failed", zap.Error(err))
	}
}
