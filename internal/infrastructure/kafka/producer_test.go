package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jeobran69367/Mspr4-produits/internal/domain/event"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	return m.Called(ctx, msgs).Error(0)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

func headers(msg kafka.Message) map[string]string {
	out := map[string]string{}
	for _, h := range msg.Headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

func TestProducer_PublishEnvelope(t *testing.T) {
	w := &mockWriter{}
	var written []kafka.Message
	w.On("WriteMessages", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { written = args.Get(1).([]kafka.Message) }).
		Return(nil).Once()
	p := NewProducerWithWriter(w, "produits-events", "produits")

	env, err := event.New(event.StockUpdated, map[string]any{"quantite_disponible": 5},
		map[string]any{event.MetaEventID: "evt-42"})
	require.NoError(t, err)

	require.NoError(t, p.PublishEnvelope(context.Background(), env, ""))

	require.Len(t, written, 1)
	msg := written[0]
	assert.Equal(t, "produits.stock.updated", string(msg.Key))
	assert.Equal(t, map[string]string{
		"event_type":     "stock.updated",
		"source_service": "produits",
		"event_id":       "evt-42",
	}, headers(msg))
	assert.WithinDuration(t, env.Timestamp, msg.Time, time.Millisecond)

	var decoded event.Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.StockUpdated, decoded.EventType)
}

func TestProducer_TargetedKey(t *testing.T) {
	w := &mockWriter{}
	w.On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
		return len(msgs) == 1 && string(msgs[0].Key) == "commandes.stock.low_alert"
	})).Return(nil).Once()
	p := NewProducerWithWriter(w, "produits-events", "produits")

	env, err := event.New(event.StockLowAlert, nil, nil)
	require.NoError(t, err)

	require.NoError(t, p.PublishEnvelope(context.Background(), env, "commandes"))
	w.AssertExpectations(t)
}

func TestProducer_WriteError(t *testing.T) {
	w := &mockWriter{}
	boom := errors.New("leader not available")
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(boom)
	p := NewProducerWithWriter(w, "produits-events", "produits")

	env, err := event.New(event.ProductDeleted, nil, nil)
	require.NoError(t, err)

	err = p.PublishEnvelope(context.Background(), env, "")
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "produits-events")
}
