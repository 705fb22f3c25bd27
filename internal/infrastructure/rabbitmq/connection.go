// Package rabbitmq wraps the AMQP client: connection management with
// retry, topology declaration, event publishing and consuming.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jeobran69367/Mspr4-produits/internal/retry"
)

type Role string

const (
	RoleProducer Role = "producer"
	RoleConsumer Role = "consumer"
)

// Topology is the static broker layout: one durable topic exchange, one
// durable bounded queue bound to this service's prefix and its peers'.
type Topology struct {
	Exchange     string
	Queue        string
	ServiceName  string
	PeerServices []string
	MaxLength    int
	MessageTTL   time.Duration
}

// Patterns returns the initial binding patterns, own prefix first.
func (t Topology) Patterns() []string {
	out := make([]string, 0, len(t.PeerServices)+1)
	out = append(out, t.ServiceName+".#")
	for _, peer := range t.PeerServices {
		if peer == "" || peer == t.ServiceName {
			continue
		}
		out = append(out, peer+".#")
	}
	return out
}

func (t Topology) queueArgs() amqp.Table {
	args := amqp.Table{}
	if t.MaxLength > 0 {
		args["x-max-length"] = int32(t.MaxLength)
	}
	if t.MessageTTL > 0 {
		args["x-message-ttl"] = int32(t.MessageTTL / time.Millisecond)
	}
	return args
}

type Config struct {
	Endpoint
	Topology
	Role                  Role
	Prefetch              int
	ConnectTimeout        time.Duration
	Heartbeat             time.Duration
	TLSInsecureSkipVerify bool
	Retry                 retry.Policy
}

type Option func(*Connection)

func WithDialer(d Dialer) Option {
	return func(c *Connection) { c.dial = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Connection) {
		if l != nil {
			c.logger = l
		}
	}
}

// Connection owns one broker connection and channel for a single role.
// At most one connection attempt runs at a time.
type Connection struct {
	cfg    Config
	url    string
	dial   Dialer
	logger *slog.Logger

	connecting atomic.Bool

	mu       sync.RWMutex
	conn     Conn
	ch       Channel
	bindings []string
}

// NewConnection resolves the broker URL once; it does not dial.
func NewConnection(cfg Config, opts ...Option) *Connection {
	c := &Connection{
		cfg:      cfg,
		url:      ResolveURL(cfg.Endpoint),
		dial:     DialAMQP,
		logger:   slog.Default(),
		bindings: cfg.Topology.Patterns(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "rabbitmq", "role", string(cfg.Role))
	return c
}

func (c *Connection) URL() string {
	return c.url
}

func (c *Connection) Topology() Topology {
	return c.cfg.Topology
}

// Connect dials the broker with retry and declares the topology. It is a
// no-op when already connected and returns ErrConnectInProgress when
// another goroutine is connecting.
func (c *Connection) Connect(ctx context.Context) error {
	if !c.connecting.CompareAndSwap(false, true) {
		return ErrConnectInProgress
	}
	defer c.connecting.Store(false)

	if c.IsConnected() {
		return nil
	}
	return c.establish(ctx)
}

// Reconnect replaces stale, the channel the caller saw fail, with a new
// connection. It returns nil without touching anything when another caller
// has already swapped in a healthy channel. A nil stale always reconnects.
func (c *Connection) Reconnect(ctx context.Context, stale Channel) error {
	if !c.connecting.CompareAndSwap(false, true) {
		return ErrConnectInProgress
	}
	defer c.connecting.Store(false)

	if stale != nil && c.IsConnected() && c.current() != stale {
		c.logger.Debug("connection already restored")
		return nil
	}

	c.teardown()
	return c.establish(ctx)
}

func (c *Connection) current() Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ch
}

func (c *Connection) establish(ctx context.Context) error {
	masked := MaskURL(c.url)
	c.logger.Info("connecting to rabbitmq", "url", masked, "schedule", c.cfg.Retry.Schedule())

	var conn Conn
	var ch Channel
	err := retry.Do(ctx, c.cfg.Retry, func(attempt int) error {
		var err error
		conn, ch, err = c.open()
		if err != nil {
			c.logger.Warn("rabbitmq connection attempt failed",
				"attempt", attempt, "max", c.cfg.Retry.Attempts, "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		var ex *retry.ExhaustedError
		attempts := 0
		if errors.As(err, &ex) {
			attempts = ex.Attempts
		}
		c.logger.Error("rabbitmq unreachable", "url", masked, "error", err)
		return &ConnectionError{URL: masked, Attempts: attempts, Err: err}
	}

	c.mu.Lock()
	c.conn, c.ch = conn, ch
	c.mu.Unlock()

	c.logger.Info("connected to rabbitmq",
		"exchange", c.cfg.Exchange, "queue", c.cfg.Queue, "bindings", c.Bindings())
	return nil
}

func (c *Connection) open() (Conn, Channel, error) {
	conn, err := c.dial(c.url, c.amqpConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	if c.cfg.Role == RoleConsumer && c.cfg.Prefetch > 0 {
		if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, nil, fmt.Errorf("set qos: %w", err)
		}
	}

	if err := c.declare(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

func (c *Connection) declare(ch Channel) error {
	t := c.cfg.Topology
	if err := ch.ExchangeDeclare(t.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.Exchange, err)
	}
	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, t.queueArgs()); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}
	for _, pattern := range c.Bindings() {
		if err := ch.QueueBind(t.Queue, pattern, t.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", t.Queue, pattern, err)
		}
	}
	return nil
}

// Bind adds a routing pattern to the queue. Already bound patterns are
// skipped. The pattern is re-applied on every reconnect.
func (c *Connection) Bind(pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range c.bindings {
		if p == pattern {
			return nil
		}
	}
	if c.ch == nil || c.ch.IsClosed() {
		return ErrNotConnected
	}
	t := c.cfg.Topology
	if err := c.ch.QueueBind(t.Queue, pattern, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind %s to %s: %w", t.Queue, pattern, err)
	}
	c.bindings = append(c.bindings, pattern)
	c.logger.Info("queue bound", "queue", t.Queue, "routing_key", pattern)
	return nil
}

func (c *Connection) Bindings() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.bindings...)
}

// Channel returns the live channel, or nil.
func (c *Connection) Channel() Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ch == nil || c.ch.IsClosed() {
		return nil
	}
	return c.ch
}

func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed() && c.ch != nil && !c.ch.IsClosed()
}

// Status is "connected" or "disconnected", for health reporting.
func (c *Connection) Status() string {
	if c.IsConnected() {
		return "connected"
	}
	return "disconnected"
}

func (c *Connection) teardown() {
	c.mu.Lock()
	conn, ch := c.conn, c.ch
	c.conn, c.ch = nil, nil
	c.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

// Close releases the channel and connection.
func (c *Connection) Close() error {
	c.teardown()
	c.logger.Info("rabbitmq connection closed")
	return nil
}
