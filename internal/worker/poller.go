package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jeobran69367/Mspr4-produits/internal/domain/event"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/spool"
)

var (
	eventsRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_spool_events_relayed_total",
		Help: "Spooled events re-published to the broker",
	})
	relayErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_spool_publish_errors_total",
		Help: "Failed re-publish attempts",
	})
	batchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "worker_spool_batch_size",
		Help:    "Rows claimed per poll",
		Buckets: []float64{1, 5, 10, 25, 50, 100},
	})
)

// Publisher re-sends an envelope exactly as it was first built.
type Publisher interface {
	PublishEnvelope(ctx context.Context, env event.Envelope, target string) error
}

type SpoolPoller struct {
	repo        spool.Repository
	publisher   Publisher
	batch       int
	sendTimeout time.Duration
	logger      *slog.Logger
}

func NewSpoolPoller(repo spool.Repository, publisher Publisher, batch int, logger *slog.Logger) *SpoolPoller {
	if batch <= 0 {
		batch = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SpoolPoller{
		repo:        repo,
		publisher:   publisher,
		batch:       batch,
		sendTimeout: 5 * time.Second,
		logger:      logger.With("component", "spool_poller"),
	}
}

// ProcessBatch claims up to batch rows, re-publishes them and records the
// outcome. It returns how many rows were published.
func (p *SpoolPoller) ProcessBatch(ctx context.Context) (int, error) {
	events, err := p.repo.FetchBatch(ctx, p.batch)
	if err != nil {
		return 0, fmt.Errorf("fetch spool batch: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}
	batchSize.Observe(float64(len(events)))

	var processedIDs, failedIDs []string
	var lastErr error

	for _, e := range events {
		var env event.Envelope
		if err := json.Unmarshal(e.Payload, &env); err != nil {
			// An unreadable payload never becomes publishable.
			p.logger.Error("dropping undecodable spool row", "id", e.ID, "error", err)
			processedIDs = append(processedIDs, e.ID)
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, p.sendTimeout)
		err := p.publisher.PublishEnvelope(sendCtx, env, e.RoutingTarget)
		cancel()

		if err != nil {
			p.logger.Warn("re-publish failed",
				"id", e.ID, "event_type", e.EventType, "attempts", e.Attempts, "error", err)
			relayErrors.Inc()
			failedIDs = append(failedIDs, e.ID)
			lastErr = err
			continue
		}

		eventsRelayed.Inc()
		processedIDs = append(processedIDs, e.ID)
	}

	if len(processedIDs) > 0 {
		if err := p.repo.MarkProcessed(ctx, processedIDs); err != nil {
			return 0, fmt.Errorf("mark processed: %w", err)
		}
		p.logger.Info("spool batch relayed", "count", len(processedIDs))
	}

	if len(failedIDs) > 0 {
		if err := p.repo.MarkFailed(ctx, failedIDs, lastErr.Error()); err != nil {
			p.logger.Error("mark failed", "count", len(failedIDs), "error", err)
		}
	}

	return len(processedIDs), nil
}
