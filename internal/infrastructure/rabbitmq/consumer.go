package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jeobran69367/Mspr4-produits/internal/domain/event"
)

var deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "consumer_deliveries_total",
	Help: "Deliveries handled by the consumer, by outcome",
}, []string{"outcome"})

// Handler processes one decoded envelope. A non-nil error requeues the
// message for redelivery.
type Handler func(ctx context.Context, env event.Envelope) error

type Consumer struct {
	conn   *Connection
	tag    string
	logger *slog.Logger
}

func NewConsumer(conn *Connection, tag string, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		conn:   conn,
		tag:    tag,
		logger: logger.With("component", "consumer", "queue", conn.Topology().Queue),
	}
}

// Bind associates another routing pattern with the queue. Binding a
// pattern twice is a no-op.
func (c *Consumer) Bind(ctx context.Context, pattern string) error {
	if !c.conn.IsConnected() {
		if err := c.conn.Connect(ctx); err != nil {
			return err
		}
	}
	return c.conn.Bind(pattern)
}

// Start consumes until ctx is cancelled. A lost connection is re-established
// with the connection's retry policy; Start returns the ConnectionError when
// that fails.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	if !c.conn.IsConnected() {
		if err := c.conn.Connect(ctx); err != nil {
			return err
		}
	}

	// restarts counts stream failures since the last delivery; from the
	// second one on, each restart waits the retry policy's delay.
	restarts := 0
	for {
		delivered, err := c.consume(ctx, h)
		if ctx.Err() != nil {
			return nil
		}
		if delivered {
			restarts = 0
		}
		if restarts > 0 {
			delay := c.conn.cfg.Retry.Delay(restarts)
			c.logger.Warn("delivery stream keeps failing, backing off",
				"restarts", restarts, "delay", delay, "error", err)
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
		} else {
			c.logger.Warn("delivery stream interrupted, reconnecting", "error", err)
		}
		restarts++

		// The consumer owns its connection, so the restart is unconditional.
		if err := c.conn.Reconnect(ctx, nil); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

var errStreamClosed = errors.New("delivery channel closed")

// consume runs one delivery stream and reports whether it handled at least
// one message before ending.
func (c *Consumer) consume(ctx context.Context, h Handler) (bool, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return false, ErrNotConnected
	}
	deliveries, err := ch.Consume(c.conn.Topology().Queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return false, fmt.Errorf("consume: %w", err)
	}
	c.logger.Info("started consuming", "consumer_tag", c.tag)

	delivered := false
	for {
		select {
		case <-ctx.Done():
			if err := ch.Cancel(c.tag, false); err != nil {
				c.logger.Warn("cancel consumer", "error", err)
			}
			return delivered, ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return delivered, errStreamClosed
			}
			delivered = true
			c.handle(ctx, d, h)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, h Handler) {
	var env event.Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		c.logger.Error("dropping undecodable message", "routing_key", d.RoutingKey, "error", err)
		deliveriesTotal.WithLabelValues("rejected").Inc()
		if err := d.Reject(false); err != nil {
			c.logger.Error("reject failed", "error", err)
		}
		return
	}

	if err := h(ctx, env); err != nil {
		c.logger.Error("handler failed, requeueing",
			"routing_key", d.RoutingKey, "event_type", env.EventType, "redelivered", d.Redelivered, "error", err)
		deliveriesTotal.WithLabelValues("requeued").Inc()
		if err := d.Nack(false, true); err != nil {
			c.logger.Error("nack failed", "error", err)
		}
		return
	}

	deliveriesTotal.WithLabelValues("acked").Inc()
	if err := d.Ack(false); err != nil {
		c.logger.Error("ack failed", "error", err)
	}
}
