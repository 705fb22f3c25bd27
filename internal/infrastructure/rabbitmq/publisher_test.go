package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jeobran69367/Mspr4-produits/internal/domain/event"
)

func TestRoutingKey(t *testing.T) {
	tests := []struct {
		name     string
		service  string
		typ      event.Type
		target   string
		expected string
	}{
		{"own prefix", "produits", event.ProductCreated, "", "produits.product.created"},
		{"directed at peer", "produits", event.StockLowAlert, "commandes", "commandes.stock.low_alert"},
		{"other service", "clients", event.ProductDeleted, "", "clients.product.deleted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RoutingKey(tt.service, tt.typ, tt.target))
		})
	}
}

func TestPublisher_LazyConnectAndPersistentMessage(t *testing.T) {
	ch := (&mockChannel{}).expectTopology()
	var sent amqp.Publishing
	ch.On("PublishWithContext", mock.Anything, "mspr.events", "produits.product.created", false, false, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(5).(amqp.Publishing) }).
		Return(nil).Once()
	d := &scriptedDialer{results: []dialResult{{conn: &mockConn{ch: ch}}}}
	p := NewPublisher(newTestConnection(RoleProducer, d), testLogger())

	err := p.Publish(context.Background(), event.ProductCreated, map[string]any{"sku": "CAFE-001"}, "")
	require.NoError(t, err)

	assert.Equal(t, 1, d.Calls())
	assert.Equal(t, amqp.Persistent, sent.DeliveryMode)
	assert.Equal(t, "application/json", sent.ContentType)
	assert.Equal(t, "produits", sent.Headers["source_service"])
	assert.Equal(t, "product.created", sent.Headers["event_type"])
	assert.NotEmpty(t, sent.MessageId)

	var env event.Envelope
	require.NoError(t, json.Unmarshal(sent.Body, &env))
	assert.Equal(t, event.ProductCreated, env.EventType)
	assert.Equal(t, "CAFE-001", env.Data["sku"])
	assert.Equal(t, sent.MessageId, env.ID())
	assert.Equal(t, "produits", env.Source())
	assert.Equal(t, "UTC", env.Timestamp.Location().String())
}

func TestPublisher_TargetServiceRoutingKey(t *testing.T) {
	ch := (&mockChannel{}).expectTopology()
	ch.On("PublishWithContext", mock.Anything, "mspr.events", "commandes.product.updated", false, false, mock.Anything).
		Return(nil).Once()
	d := &scriptedDialer{results: []dialResult{{conn: &mockConn{ch: ch}}}}
	p := NewPublisher(newTestConnection(RoleProducer, d), testLogger())

	require.NoError(t, p.Publish(context.Background(), event.ProductUpdated, nil, "commandes"))
	ch.AssertExpectations(t)
}

func TestPublisher_ReconnectsOnceOnClosedConnection(t *testing.T) {
	ch1 := (&mockChannel{}).expectTopology()
	ch1.On("PublishWithContext", mock.Anything, mock.Anything, mock.Anything, false, false, mock.Anything).
		Return(amqp.ErrClosed).Once()
	ch2 := (&mockChannel{}).expectTopology()
	ch2.On("PublishWithContext", mock.Anything, mock.Anything, "produits.stock.updated", false, false, mock.Anything).
		Return(nil).Once()
	d := &scriptedDialer{results: []dialResult{{conn: &mockConn{ch: ch1}}, {conn: &mockConn{ch: ch2}}}}
	p := NewPublisher(newTestConnection(RoleProducer, d), testLogger())

	require.NoError(t, p.Publish(context.Background(), event.StockUpdated, map[string]any{"quantite_disponible": 3}, ""))

	assert.Equal(t, 2, d.Calls())
	assert.True(t, ch1.IsClosed())
	ch2.AssertExpectations(t)
}

func TestPublisher_SecondFailurePropagates(t *testing.T) {
	ch1 := (&mockChannel{}).expectTopology()
	ch1.On("PublishWithContext", mock.Anything, mock.Anything, mock.Anything, false, false, mock.Anything).
		Return(amqp.ErrClosed)
	ch2 := (&mockChannel{}).expectTopology()
	ch2.On("PublishWithContext", mock.Anything, mock.Anything, mock.Anything, false, false, mock.Anything).
		Return(amqp.ErrClosed)
	d := &scriptedDialer{results: []dialResult{{conn: &mockConn{ch: ch1}}, {conn: &mockConn{ch: ch2}}}}
	p := NewPublisher(newTestConnection(RoleProducer, d), testLogger())

	err := p.Publish(context.Background(), event.ProductDeleted, nil, "")

	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, "produits.product.deleted", pubErr.RoutingKey)
	assert.ErrorIs(t, err, amqp.ErrClosed)
	assert.Equal(t, 2, d.Calls())
	ch1.AssertNumberOfCalls(t, "PublishWithContext", 1)
	ch2.AssertNumberOfCalls(t, "PublishWithContext", 1)
}

func TestPublisher_NonConnectionErrorIsNotRetried(t *testing.T) {
	ch := (&mockChannel{}).expectTopology()
	ch.On("PublishWithContext", mock.Anything, mock.Anything, mock.Anything, false, false, mock.Anything).
		Return(context.DeadlineExceeded).Once()
	d := &scriptedDialer{results: []dialResult{{conn: &mockConn{ch: ch}}}}
	p := NewPublisher(newTestConnection(RoleProducer, d), testLogger())

	err := p.Publish(context.Background(), event.ProductCreated, nil, "")

	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, 1, d.Calls())
}

func TestPublisher_ConnectFailure(t *testing.T) {
	d := &scriptedDialer{results: []dialResult{{err: errors.New("refused")}}}
	p := NewPublisher(newTestConnection(RoleProducer, d), testLogger())

	err := p.Publish(context.Background(), event.ProductCreated, nil, "")

	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	var connErr *ConnectionError
	assert.ErrorAs(t, err, &connErr)
}

func TestPublisher_RejectsUnknownEventType(t *testing.T) {
	d := &scriptedDialer{results: []dialResult{{err: errors.New("must not dial")}}}
	p := NewPublisher(newTestConnection(RoleProducer, d), testLogger())

	err := p.Publish(context.Background(), event.Type("order.created"), nil, "")

	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, 0, d.Calls())
}

func TestPublisher_PublishEnvelopeKeepsEventID(t *testing.T) {
	ch := (&mockChannel{}).expectTopology()
	var sent amqp.Publishing
	ch.On("PublishWithContext", mock.Anything, mock.Anything, "produits.stock.low_alert", false, false, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(5).(amqp.Publishing) }).
		Return(nil).Once()
	d := &scriptedDialer{results: []dialResult{{conn: &mockConn{ch: ch}}}}
	p := NewPublisher(newTestConnection(RoleProducer, d), testLogger())

	env, err := p.Envelope(event.StockLowAlert, map[string]any{"quantite_minimum": 10})
	require.NoError(t, err)
	require.NoError(t, p.PublishEnvelope(context.Background(), env, ""))

	assert.Equal(t, env.ID(), sent.MessageId)
}
