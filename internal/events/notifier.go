// Package events publishes catalog changes after the owning write has
// committed. Publication is fire-and-forget: failures are logged, counted
// and spooled for the relay, never returned to the caller.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jeobran69367/Mspr4-produits/internal/domain/event"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/spool"
)

var (
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Envelopes accepted by a sink",
	}, []string{"sink", "event_type"})
	eventsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_publish_failed_total",
		Help: "Envelopes a sink failed to accept",
	}, []string{"sink", "event_type"})
	eventsSpooled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_spooled_total",
		Help: "Envelopes written to the spool after a failed primary publish",
	}, []string{"event_type"})
)

// Sink accepts a prepared envelope.
type Sink interface {
	Name() string
	PublishEnvelope(ctx context.Context, env event.Envelope, target string) error
}

// Publisher is the primary sink; it also stamps new envelopes.
type Publisher interface {
	Sink
	Envelope(t event.Type, data map[string]any) (event.Envelope, error)
}

// Spooler keeps envelopes the primary sink refused.
type Spooler interface {
	Create(ctx context.Context, e *spool.Event) error
}

type Option func(*Notifier)

func WithMirror(s Sink) Option {
	return func(n *Notifier) {
		if s != nil {
			n.mirrors = append(n.mirrors, s)
		}
	}
}

func WithSpool(s Spooler) Option {
	return func(n *Notifier) { n.spool = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) {
		if l != nil {
			n.logger = l
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.timeout = d
		}
	}
}

type Notifier struct {
	primary Publisher
	mirrors []Sink
	spool   Spooler
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewNotifier(primary Publisher, opts ...Option) *Notifier {
	n := &Notifier{
		primary: primary,
		logger:  slog.Default(),
		timeout: 5 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.With("component", "notifier")
	return n
}

func (n *Notifier) Notify(ctx context.Context, t event.Type, data map[string]any) {
	n.NotifyTo(ctx, t, data, "")
}

// NotifyTo publishes to the primary sink and every mirror. The request
// context only contributes its values: a client that hangs up does not
// abort a publish that is already under way. Each sink and the spool write
// get their own timeout, so a slow primary cannot starve the fallback.
func (n *Notifier) NotifyTo(ctx context.Context, t event.Type, data map[string]any, target string) {
	env, err := n.primary.Envelope(t, data)
	if err != nil {
		n.logger.Error("event not built", "event_type", t, "error", err)
		eventsFailed.WithLabelValues(n.primary.Name(), string(t)).Inc()
		return
	}

	base := context.WithoutCancel(ctx)

	if err := n.publish(base, n.primary, env, target); err != nil {
		n.logger.Warn("event publish failed", "event_type", t, "event_id", env.ID(), "error", err)
		n.spoolEnvelope(base, env, target, err)
	}

	for _, m := range n.mirrors {
		if err := n.publish(base, m, env, target); err != nil {
			n.logger.Warn("event mirror failed", "sink", m.Name(), "event_type", t, "error", err)
		}
	}
}

func (n *Notifier) publish(base context.Context, s Sink, env event.Envelope, target string) error {
	ctx, cancel := context.WithTimeout(base, n.timeout)
	defer cancel()

	if err := s.PublishEnvelope(ctx, env, target); err != nil {
		eventsFailed.WithLabelValues(s.Name(), string(env.EventType)).Inc()
		return err
	}
	eventsPublished.WithLabelValues(s.Name(), string(env.EventType)).Inc()
	return nil
}

func (n *Notifier) spoolEnvelope(base context.Context, env event.Envelope, target string, cause error) {
	if n.spool == nil {
		return
	}
	ctx, cancel := context.WithTimeout(base, n.timeout)
	defer cancel()

	payload, err := json.Marshal(env)
	if err != nil {
		n.logger.Error("event not spooled", "event_id", env.ID(), "error", err)
		return
	}
	now := n.now().UTC()
	rec := &spool.Event{
		ID:            env.ID(),
		EventType:     string(env.EventType),
		RoutingTarget: target,
		Payload:       payload,
		Status:        spool.StatusNew,
		LastError:     cause.Error(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := n.spool.Create(ctx, rec); err != nil {
		n.logger.Error("event lost: spool write failed", "event_type", env.EventType, "event_id", env.ID(), "error", err)
		return
	}
	eventsSpooled.WithLabelValues(string(env.EventType)).Inc()
	n.logger.Info("event spooled for relay", "event_type", env.EventType, "event_id", env.ID())
}
