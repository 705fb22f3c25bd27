package rabbitmq

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/mock"

	"github.com/jeobran69367/Mspr4-produits/internal/retry"
)

type mockChannel struct {
	mock.Mock
	mu     sync.Mutex
	closed bool
}

func (m *mockChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return m.Called(name, kind, durable, autoDelete, internal, noWait, args).Error(0)
}

func (m *mockChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	a := m.Called(name, durable, autoDelete, exclusive, noWait, args)
	return amqp.Queue{Name: name}, a.Error(0)
}

func (m *mockChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	return m.Called(name, key, exchange, noWait, args).Error(0)
}

func (m *mockChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	return m.Called(prefetchCount, prefetchSize, global).Error(0)
}

func (m *mockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return m.Called(ctx, exchange, key, mandatory, immediate, msg).Error(0)
}

func (m *mockChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	a := m.Called(queue, consumer, autoAck, exclusive, noLocal, noWait, args)
	ch, _ := a.Get(0).(chan amqp.Delivery)
	return ch, a.Error(1)
}

func (m *mockChannel) Cancel(consumer string, noWait bool) error {
	return m.Called(consumer, noWait).Error(0)
}

func (m *mockChannel) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockChannel) kill() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

// expectTopology registers the declarations every successful connect makes.
func (m *mockChannel) expectTopology() *mockChannel {
	m.On("ExchangeDeclare", "mspr.events", "topic", true, false, false, false, mock.Anything).Return(nil).Maybe()
	m.On("QueueDeclare", "produits.queue", true, false, false, false, mock.Anything).Return(nil).Maybe()
	m.On("QueueBind", "produits.queue", mock.Anything, "mspr.events", false, mock.Anything).Return(nil).Maybe()
	m.On("Qos", mock.Anything, 0, false).Return(nil).Maybe()
	return m
}

type mockConn struct {
	ch     Channel
	chErr  error
	mu     sync.Mutex
	closed bool
}

func (c *mockConn) Channel() (Channel, error) {
	if c.chErr != nil {
		return nil, c.chErr
	}
	return c.ch, nil
}

func (c *mockConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *mockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// scriptedDialer hands out results in order; the last one repeats.
type scriptedDialer struct {
	mu      sync.Mutex
	results []dialResult
	calls   int
	urls    []string
	block   chan struct{}
}

type dialResult struct {
	conn Conn
	err  error
}

func (d *scriptedDialer) Dial(url string, _ amqp.Config) (Conn, error) {
	if d.block != nil {
		<-d.block
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	i := d.calls
	if i >= len(d.results) {
		i = len(d.results) - 1
	}
	d.calls++
	return d.results[i].conn, d.results[i].err
}

func (d *scriptedDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// recordingAcknowledger records delivery outcomes by tag.
type recordingAcknowledger struct {
	mu       sync.Mutex
	acked    []uint64
	requeued []uint64
	rejected []uint64
}

func (a *recordingAcknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *recordingAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if requeue {
		a.requeued = append(a.requeued, tag)
	} else {
		a.rejected = append(a.rejected, tag)
	}
	return nil
}

func (a *recordingAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *recordingAcknowledger) total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acked) + len(a.requeued) + len(a.rejected)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(role Role) Config {
	return Config{
		Endpoint: Endpoint{Host: "rabbit", Port: 5672, Username: "guest", Password: "guest", VHost: "/"},
		Topology: Topology{
			Exchange:     "mspr.events",
			Queue:        "produits.queue",
			ServiceName:  "produits",
			PeerServices: []string{"commandes", "clients"},
			MaxLength:    10000,
			MessageTTL:   24 * time.Hour,
		},
		Role:     role,
		Prefetch: 10,
		Retry:    retry.Policy{Attempts: 3, InitialDelay: time.Millisecond, Multiplier: 2},
	}
}

func newTestConnection(role Role, d *scriptedDialer) *Connection {
	return NewConnection(testConfig(role), WithDialer(d.Dial), WithLogger(testLogger()))
}
