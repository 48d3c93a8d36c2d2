package broker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/rl1809/correlator/internal/core/service"
)

const (
	DefaultPrefetch       = 10
	defaultReconnectDelay = 5 * time.Second
)

type ConsumerConfig struct {
	Prefetch       int
	ReconnectDelay time.Duration
}

type Stats struct {
	Queue     string `json:"queue"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
}

// Consumer pulls deliveries for one Handler with manual acknowledgement.
// Each delivery is processed to completion before it is settled.
type Consumer struct {
	conn    *Connection
	handler Handler
	gate    *Gate
	cfg     ConsumerConfig
	logger  *zap.Logger

	processed atomic.Uint64
	failed    atomic.Uint64
}

func NewConsumer(conn *Connection, handler Handler, gate *Gate, cfg ConsumerConfig, logger *zap.Logger) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = DefaultPrefetch
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if gate == nil {
		gate = NewGate()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		conn:    conn,
		handler: handler,
		gate:    gate,
		cfg:     cfg,
		logger:  logger.With(zap.String("queue", handler.Queue())),
	}
}

func (c *Consumer) Stats() Stats {
	return Stats{
		Queue:     c.handler.Queue(),
		Processed: c.processed.Load(),
		Failed:    c.failed.Load(),
	}
}

// Run consumes until ctx is cancelled, re-establishing the channel after
// broker failures.
func (c *Consumer) Run(ctx context.Context) {
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			c.logger.Info("consumer stopped")
			return
		}

		reconnectsTotal.WithLabelValues(c.handler.Queue()).Inc()
		c.logger.Warn("consumer interrupted, reconnecting",
			zap.Duration("delay", c.cfg.ReconnectDelay),
			zap.Error(err),
		)

		timer := time.NewTimer(c.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.logger.Info("consumer stopped")
			return
		case <-timer.C:
		}
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	queue := c.handler.Queue()
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	c.logger.Info("consuming", zap.Int("prefetch", c.cfg.Prefetch))

	for {
		if err := c.gate.Wait(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr == nil {
				return errors.New("channel closed")
			}
			return amqpErr
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			// a delivery already taken is finished even during shutdown
			c.handleDelivery(context.WithoutCancel(ctx), d)
		}
	}
}

// handleDelivery processes one delivery and settles it: ack on success,
// reject on a malformed body, requeue on transient store failures.
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	queue := c.handler.Queue()
	start := time.Now()
	err := c.handler.Process(ctx, d.Body)
	handleDuration.WithLabelValues(queue).Observe(time.Since(start).Seconds())

	var settleErr error
	switch {
	case err == nil:
		c.processed.Add(1)
		deliveriesTotal.WithLabelValues(queue, "ack").Inc()
		settleErr = d.Ack(false)

	case errors.Is(err, service.ErrTransientIO):
		c.failed.Add(1)
		deliveriesTotal.WithLabelValues(queue, "requeue").Inc()
		c.logger.Warn("transient failure, requeueing message",
			zap.String("correlation_id", d.CorrelationId),
			zap.Error(err),
		)
		settleErr = d.Nack(false, true)

	default:
		c.failed.Add(1)
		deliveriesTotal.WithLabelValues(queue, "reject").Inc()
		c.logger.Error("rejecting message",
			zap.String("correlation_id", d.CorrelationId),
			zap.Bool("malformed", errors.Is(err, ErrMalformedMessage)),
			zap.Error(err),
		)
		settleErr = d.Reject(false)
	}

	if settleErr != nil {
		c.logger.Error("failed to settle delivery",
			zap.Uint64("delivery_tag", d.DeliveryTag),
			zap.Error(settleErr),
		)
	}
}
