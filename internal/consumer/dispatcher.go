// Package consumer applies events from peer services to the catalog.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jeobran69367/Mspr4-produits/internal/domain"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/event"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/inbox"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/stock"
)

var (
	eventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consumer_events_processed_total",
		Help: "Inbound events by type and result",
	}, []string{"event_type", "result"})
	processingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "consumer_processing_duration_seconds",
		Help:    "Time taken to apply an inbound event",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2},
	})
)

// Inbound event types published by the order service. Both the English and
// the French names are in use.
const (
	OrderCreated    event.Type = "order.created"
	OrderCancelled  event.Type = "order.cancelled"
	CommandeCreee   event.Type = "commande.creee"
	CommandeAnnulee event.Type = "commande.annulee"
)

const defaultConsumer = "produits-service"

type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Stocks applies and announces quantity movements.
type Stocks interface {
	Apply(ctx context.Context, productID uuid.UUID, delta int) (*stock.Stock, error)
	Announce(ctx context.Context, s *stock.Stock, delta int)
}

type movement struct {
	ProductID uuid.UUID
	Delta     int
}

type applied struct {
	stock *stock.Stock
	delta int
}

type Dispatcher struct {
	name   string
	tx     Transactor
	inbox  inbox.Repository
	stocks Stocks
	logger *slog.Logger
	// sign per handled type: -1 reserves, +1 releases.
	signs map[event.Type]int
}

func NewDispatcher(name string, tx Transactor, inboxRepo inbox.Repository, stocks Stocks, logger *slog.Logger) *Dispatcher {
	if name == "" {
		name = defaultConsumer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		name:   name,
		tx:     tx,
		inbox:  inboxRepo,
		stocks: stocks,
		logger: logger.With("component", "dispatcher", "consumer", name),
		signs: map[event.Type]int{
			OrderCreated:    -1,
			CommandeCreee:   -1,
			OrderCancelled:  1,
			CommandeAnnulee: 1,
		},
	}
}

// Handle matches rabbitmq.Handler. A nil return acknowledges the delivery:
// unknown types, duplicates and business rule failures are all final.
// Infrastructure errors are returned so the message is redelivered.
func (d *Dispatcher) Handle(ctx context.Context, env event.Envelope) error {
	sign, ok := d.signs[env.EventType]
	if !ok {
		d.logger.Debug("ignoring event", "event_type", env.EventType, "source", env.Source())
		eventsProcessed.WithLabelValues(string(env.EventType), "ignored").Inc()
		return nil
	}

	started := time.Now()
	moves, err := movements(env.Data, sign)
	if err != nil {
		d.logger.Warn("malformed event payload", "event_type", env.EventType, "event_id", env.ID(), "error", err)
		eventsProcessed.WithLabelValues(string(env.EventType), "invalid").Inc()
		return nil
	}

	var done []applied
	duplicate := false
	err = d.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if id := env.ID(); id != "" {
			isNew, err := d.inbox.SaveIfNotExists(txCtx, &inbox.Event{
				Consumer:    d.name,
				EventID:     id,
				EventType:   string(env.EventType),
				Source:      env.Source(),
				ProcessedAt: time.Now().UTC(),
			})
			if err != nil {
				return fmt.Errorf("inbox save: %w", err)
			}
			if !isNew {
				duplicate = true
				return nil
			}
		}

		done = done[:0]
		for _, m := range moves {
			s, err := d.stocks.Apply(txCtx, m.ProductID, m.Delta)
			if err != nil {
				return err
			}
			done = append(done, applied{stock: s, delta: m.Delta})
		}
		return nil
	})

	switch {
	case err == nil && duplicate:
		d.logger.Info("duplicate event skipped", "event_type", env.EventType, "event_id", env.ID())
		eventsProcessed.WithLabelValues(string(env.EventType), "duplicate").Inc()
		return nil
	case err == nil:
	case domain.IsValidation(err) || domain.IsNotFound(err):
		d.logger.Warn("event rejected by business rules",
			"event_type", env.EventType, "event_id", env.ID(), "error", err)
		eventsProcessed.WithLabelValues(string(env.EventType), "rejected").Inc()
		return nil
	default:
		eventsProcessed.WithLabelValues(string(env.EventType), "failed").Inc()
		return fmt.Errorf("apply %s: %w", env.EventType, err)
	}

	for _, a := range done {
		d.stocks.Announce(ctx, a.stock, a.delta)
	}
	processingDuration.Observe(time.Since(started).Seconds())
	eventsProcessed.WithLabelValues(string(env.EventType), "applied").Inc()
	d.logger.Info("event applied", "event_type", env.EventType, "event_id", env.ID(), "lines", len(done))
	return nil
}

var errNoItems = errors.New("data.items is empty")

// movements reads data.items[{product_id, quantite}]. produit_id is
// accepted as an alias.
func movements(data map[string]any, sign int) ([]movement, error) {
	raw, ok := data["items"].([]any)
	if !ok || len(raw) == 0 {
		return nil, errNoItems
	}

	out := make([]movement, 0, len(raw))
	for i, item := range raw {
		fields, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("items[%d] is not an object", i)
		}
		idStr, _ := fields["product_id"].(string)
		if idStr == "" {
			idStr, _ = fields["produit_id"].(string)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("items[%d].product_id: %w", i, err)
		}
		qty, ok := fields["quantite"].(float64)
		if !ok || qty <= 0 || qty != float64(int(qty)) {
			return nil, fmt.Errorf("items[%d].quantite must be a positive integer", i)
		}
		out = append(out, movement{ProductID: id, Delta: sign * int(qty)})
	}
	return out, nil
}
