package events

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

func DialRabbit(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// ConsumePaymentResults binds this service's payment queue to the events
// exchange and processes deliveries until ctx is cancelled.
func ConsumePaymentResults(ctx context.Context, conn *amqp.Connection, handler HandlerFunc, logger zerolog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := declareEventsExchange(ch); err != nil {
		return fmt.Errorf("declare events exchange: %w", err)
	}

	queue := queueName(PaymentResultRoutingKey)
	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(queue, PaymentResultRoutingKey, EventsExchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}
	if err := ch.Qos(16, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}

	msgs, err := ch.Consume(
		queue,
		paymentResultConsumerName, // consumer tag
		false,                     // autoAck
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	logger.Info().Str("queue", queue).Msg("payment result consumer started")
	return consume(ctx, msgs, handler, logger)
}

func consume(ctx context.Context, msgs <-chan amqp.Delivery, handler HandlerFunc, logger zerolog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("stopping payment result consumer")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}

			if err := handler(ctx, msg.Body); err != nil {
				// Transient failures get one more attempt.
				requeue := !isPermanent(err) && !msg.Redelivered
				logger.Error().Err(err).Bool("requeue", requeue).Msg("handle payment result")
				_ = msg.Nack(false, requeue)
				continue
			}
			_ = msg.Ack(false)
		}
	}
}
