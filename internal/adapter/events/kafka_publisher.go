package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
)

// OrderPlaced is the payload written to the order topic after a checkout
// commits.
type OrderPlaced struct {
	EventID    string             `json:"event_id"`
	OrderID    string             `json:"order_id"`
	CustomerID string             `json:"customer_id"`
	Items      []domain.OrderLine `json:"items"`
	TotalBill  decimal.Decimal    `json:"total_bill"`
	CreatedAt  time.Time          `json:"created_at"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// publishBatchTimeout keeps a synchronous write in the checkout path from
// waiting out kafka-go's default one second batch window.
const publishBatchTimeout = 10 * time.Millisecond

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: publishBatchTimeout,
		},
		now: time.Now,
	}
}

// PublishOrderPlaced keys messages by customer so one customer's orders stay
// on one partition.
func (p *KafkaPublisher) PublishOrderPlaced(ctx context.Context, order domain.Order) error {
	now := p.now().UTC()
	data, err := json.Marshal(OrderPlaced{
		EventID:    uuid.NewString(),
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Items:      order.Items,
		TotalBill:  order.TotalBill,
		CreatedAt:  order.CreatedAt,
		OccurredAt: now,
	})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(order.CustomerID), Value: data, Time: now}); err != nil {
		return fmt.Errorf("write order event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
