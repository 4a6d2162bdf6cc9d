package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type ackRecord struct {
	tag     uint64
	ack     bool
	requeue bool
}

type fakeAcknowledger struct {
	mu   sync.Mutex
	acks []ackRecord
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks = append(a.acks, ackRecord{tag: tag, ack: true})
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks = append(a.acks, ackRecord{tag: tag, requeue: requeue})
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func TestConsumeAcksAndNacks(t *testing.T) {
	ack := &fakeAcknowledger{}
	msgs := make(chan amqp.Delivery, 4)
	msgs <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte("ok")}
	msgs <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte("bad")}
	msgs <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 3, Body: []byte("flaky")}
	msgs <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 4, Body: []byte("flaky"), Redelivered: true}
	close(msgs)

	handler := func(ctx context.Context, body []byte) error {
		switch string(body) {
		case "bad":
			return permanent(errors.New("malformed"))
		case "flaky":
			return errors.New("timeout")
		}
		return nil
	}

	err := consume(context.Background(), msgs, handler, zerolog.Nop())
	require.ErrorContains(t, err, "closed")
	require.Equal(t, []ackRecord{
		{tag: 1, ack: true},
		{tag: 2, requeue: false},
		{tag: 3, requeue: true},
		{tag: 4, requeue: false},
	}, ack.acks)
}

func TestConsumeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := consume(ctx, make(chan amqp.Delivery), func(context.Context, []byte) error { return nil }, zerolog.Nop())
	require.NoError(t, err)
}
