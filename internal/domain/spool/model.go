package spool

import (
	"context"
	"time"
)

const (
	StatusNew        = "new"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
)

// Event is an envelope whose direct publish failed and waits for the relay.
type Event struct {
	ID            string    `json:"id"`
	EventType     string    `json:"event_type"`
	RoutingTarget string    `json:"routing_target"`
	Payload       []byte    `json:"payload"`
	Status        string    `json:"status"`
	Attempts      int       `json:"attempts"`
	LastError     string    `json:"last_error"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Repository interface {
	Create(ctx context.Context, event *Event) error
	FetchBatch(ctx context.Context, limit int) ([]*Event, error)
	MarkProcessed(ctx context.Context, ids []string) error
	MarkFailed(ctx context.Context, ids []string, reason string) error
}
