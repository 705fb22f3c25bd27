// Package kafka mirrors published envelopes onto a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jeobran69367/Mspr4-produits/internal/domain/event"
)

type Config struct {
	Brokers []string
	Topic   string
}

// MessageWriter is the subset of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer  MessageWriter
	topic   string
	service string
}

func NewProducer(cfg Config, service string) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		MaxAttempts:            5,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return NewProducerWithWriter(w, cfg.Topic, service)
}

func NewProducerWithWriter(w MessageWriter, topic, service string) *Producer {
	return &Producer{writer: w, topic: topic, service: service}
}

// PublishEnvelope writes env keyed by its routing key, so one key's events
// stay ordered within a partition.
func (p *Producer) PublishEnvelope(ctx context.Context, env event.Envelope, target string) error {
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.RoutingKey(p.service, env.EventType, target)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.EventType)},
			{Key: "source_service", Value: []byte(p.service)},
		},
		Time: env.Timestamp,
	}
	if id := env.ID(); id != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "event_id", Value: []byte(id)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to %s: %w", p.topic, err)
	}
	return nil
}

func (p *Producer) Name() string {
	return "kafka"
}

func (p *Producer) Topic() string {
	return p.topic
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
