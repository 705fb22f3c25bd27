package inbox

import (
	"context"
	"time"
)

// Event marks an inbound event as handled by one consumer.
type Event struct {
	Consumer    string    `json:"consumer"`
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	Source      string    `json:"source"`
	ProcessedAt time.Time `json:"processed_at"`
}

type Repository interface {
	// SaveIfNotExists reports true when the event was recorded now and false
	// when this consumer already processed it.
	SaveIfNotExists(ctx context.Context, e *Event) (bool, error)
}
