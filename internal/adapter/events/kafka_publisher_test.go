package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/core/domain"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishOrderPlaced(t *testing.T) {
	w := &fakeWriter{}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := &KafkaPublisher{writer: w, now: func() time.Time { return now }}

	order := domain.Order{
		ID:         "order-1",
		CustomerID: "cust-1",
		Items:      []domain.OrderLine{{ItemID: "a", Quantity: 3}},
		TotalBill:  decimal.NewFromInt(30),
		CreatedAt:  now,
	}
	require.NoError(t, p.PublishOrderPlaced(context.Background(), order))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "cust-1", string(msg.Key))
	assert.Equal(t, now, msg.Time)

	var evt OrderPlaced
	require.NoError(t, json.Unmarshal(msg.Value, &evt))
	assert.Equal(t, "order-1", evt.OrderID)
	assert.NotEmpty(t, evt.EventID)
	assert.True(t, evt.TotalBill.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, order.Items, evt.Items)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishOrderPlaced_WriteError(t *testing.T) {
	p := &KafkaPublisher{writer: &fakeWriter{err: errors.New("broker down")}, now: time.Now}
	err := p.PublishOrderPlaced(context.Background(), domain.Order{ID: "o"})
	assert.ErrorContains(t, err, "broker down")
}

func TestNewKafkaPublisher_FlushesPromptly(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "order.placed")
	t.Cleanup(func() { _ = p.Close() })

	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "order.placed", w.Topic)
	assert.Equal(t, kafka.RequireOne, w.RequiredAcks)
	assert.LessOrEqual(t, w.BatchTimeout, 50*time.Millisecond)
	assert.Positive(t, w.BatchTimeout)
}
