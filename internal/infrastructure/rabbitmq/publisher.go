package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jeobran69367/Mspr4-produits/internal/domain/event"
)

func RoutingKey(service string, t event.Type, target string) string {
	return event.RoutingKey(service, t, target)
}

type Publisher struct {
	conn    *Connection
	service string
	logger  *slog.Logger
}

func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:    conn,
		service: conn.Topology().ServiceName,
		logger:  logger.With("component", "publisher"),
	}
}

// Envelope stamps a new envelope with an event id and this service as source.
func (p *Publisher) Envelope(t event.Type, data map[string]any) (event.Envelope, error) {
	return event.New(t, data, map[string]any{
		event.MetaEventID:       uuid.NewString(),
		event.MetaSourceService: p.service,
	})
}

// Publish builds the envelope for t and sends it. target may be empty.
func (p *Publisher) Publish(ctx context.Context, t event.Type, data map[string]any, target string) error {
	env, err := p.Envelope(t, data)
	if err != nil {
		return &PublishError{EventType: string(t), RoutingKey: RoutingKey(p.service, t, target), Err: err}
	}
	return p.PublishEnvelope(ctx, env, target)
}

// PublishEnvelope sends a prepared envelope as a persistent message. The
// connection is opened lazily. A connection-level failure triggers exactly
// one reconnect and retry.
func (p *Publisher) PublishEnvelope(ctx context.Context, env event.Envelope, target string) error {
	key := RoutingKey(p.service, env.EventType, target)
	fail := func(err error) error {
		return &PublishError{EventType: string(env.EventType), RoutingKey: key, Err: err}
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fail(err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.ID(),
		Timestamp:    env.Timestamp,
		AppId:        p.service,
		Headers: amqp.Table{
			"source_service": p.service,
			"event_type":     string(env.EventType),
		},
		Body: body,
	}

	if !p.conn.IsConnected() {
		if err := p.conn.Connect(ctx); err != nil {
			return fail(err)
		}
	}

	used, err := p.send(ctx, key, msg)
	if err == nil {
		p.logger.Info("event published", "routing_key", key, "event_id", env.ID())
		return nil
	}
	if !isConnectionError(err) {
		return fail(err)
	}

	p.logger.Warn("publish hit a closed connection, reconnecting", "routing_key", key, "error", err)
	if rerr := p.conn.Reconnect(ctx, used); rerr != nil {
		return fail(errors.Join(err, rerr))
	}
	if _, err := p.send(ctx, key, msg); err != nil {
		return fail(err)
	}
	p.logger.Info("event published after reconnect", "routing_key", key, "event_id", env.ID())
	return nil
}

// send returns the channel it published on so a failure can name it to
// Reconnect.
func (p *Publisher) send(ctx context.Context, key string, msg amqp.Publishing) (Channel, error) {
	ch := p.conn.Channel()
	if ch == nil {
		return nil, ErrNotConnected
	}
	return ch, ch.PublishWithContext(ctx, p.conn.Topology().Exchange, key, false, false, msg)
}

func (p *Publisher) Name() string {
	return "rabbitmq"
}
