package events

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EventsExchange          = "ecommerce.events"
	OrderStatusRoutingKey   = "order.status.v1"
	PaymentResultRoutingKey = "payment.result.v1"
	serviceName             = "reservation-service-go"

	EventNameOrderStatusChanged = "OrderStatusChanged"
	EventNamePaymentResult      = "PaymentResult"
)

func serviceQueue(service, routingKey string) string {
	return service + "." + routingKey
}

func queueName(routingKey string) string {
	return serviceQueue(serviceName, routingKey)
}

type exchangeDeclarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
}

func declareEventsExchange(ch exchangeDeclarer) error {
	return ch.ExchangeDeclare(
		EventsExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
}
