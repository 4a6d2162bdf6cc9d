package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/order"
)

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Sequencer interface {
	NextSequence(ctx context.Context, partitionKey string) (int64, error)
}

// Publisher emits order status changes on the events exchange. It
// implements order.Notifier.
type Publisher struct {
	mu       sync.Mutex
	ch       channel
	seq      Sequencer
	producer string
}

func NewPublisher(conn *amqp.Connection, seq Sequencer) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareEventsExchange(ch); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}
	return newPublisher(ch, seq), nil
}

func newPublisher(ch channel, seq Sequencer) *Publisher {
	return &Publisher{ch: ch, seq: seq, producer: serviceName}
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

func (p *Publisher) SendOrderStatusUpdate(ctx context.Context, u order.StatusUpdate) error {
	seq, err := p.seq.NextSequence(ctx, u.OrderID)
	if err != nil {
		return fmt.Errorf("reserve sequence: %w", err)
	}

	correlationID := middleware.GetReqID(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	env := EventEnvelope[OrderStatusPayload]{
		EventName:     EventNameOrderStatusChanged,
		EventVersion:  1,
		EventID:       uuid.NewString(),
		CorrelationID: correlationID,
		Producer:      p.producer,
		PartitionKey:  u.OrderID,
		Sequence:      &seq,
		OccurredAt:    u.OccurredAt.UTC(),
		Schema:        "order.status.v1",
		Payload: OrderStatusPayload{
			OrderID:        u.OrderID,
			OrderNumber:    u.OrderNumber,
			UserID:         u.UserID,
			Status:         string(u.Status),
			PreviousStatus: string(u.PreviousStatus),
			Note:           u.Note,
			TotalPrice:     u.TotalPrice,
			Timestamp:      u.OccurredAt.UTC(),
		},
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal OrderStatusChanged: %w", err)
	}
	return p.publishJSON(ctx, OrderStatusRoutingKey, body)
}

func (p *Publisher) publishJSON(ctx context.Context, routingKey string, body []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}
