package event

import (
	"fmt"
	"time"
)

type Type string

const (
	ProductCreated Type = "product.created"
	ProductUpdated Type = "product.updated"
	ProductDeleted Type = "product.deleted"
	StockUpdated   Type = "stock.updated"
	StockLowAlert  Type = "stock.low_alert"
)

// Valid reports whether t belongs to the closed set this service publishes.
// Inbound envelopes from peer services may carry other types.
func (t Type) Valid() bool {
	switch t {
	case ProductCreated, ProductUpdated, ProductDeleted, StockUpdated, StockLowAlert:
		return true
	}
	return false
}

const (
	MetaEventID       = "event_id"
	MetaSourceService = "source_service"
)

// Envelope is the JSON body exchanged on the broker.
type Envelope struct {
	EventType Type           `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// New builds an envelope stamped with the current UTC time.
func New(t Type, data map[string]any, metadata map[string]any) (Envelope, error) {
	if !t.Valid() {
		return Envelope{}, fmt.Errorf("unknown event type %q", t)
	}
	if data == nil {
		data = map[string]any{}
	}
	return Envelope{
		EventType: t,
		Timestamp: time.Now().UTC(),
		Data:      data,
		Metadata:  metadata,
	}, nil
}

// ID returns metadata.event_id when present.
func (e Envelope) ID() string {
	if e.Metadata == nil {
		return ""
	}
	id, _ := e.Metadata[MetaEventID].(string)
	return id
}

// Source returns metadata.source_service when present.
func (e Envelope) Source() string {
	if e.Metadata == nil {
		return ""
	}
	s, _ := e.Metadata[MetaSourceService].(string)
	return s
}

// RoutingKey builds "<service>.<event_type>", or "<target>.<event_type>"
// when the event is directed at a peer service. The result depends only on
// its arguments.
func RoutingKey(service string, t Type, target string) string {
	if target != "" {
		return target + "." + string(t)
	}
	return service + "." + string(t)
}
