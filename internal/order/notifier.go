package order

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// StatusUpdate is what customers are told when an order is placed or moves.
type StatusUpdate struct {
	OrderID        string          `json:"orderId"`
	OrderNumber    string          `json:"orderNumber"`
	UserID         string          `json:"userId"`
	Status         Status          `json:"status"`
	PreviousStatus Status          `json:"previousStatus,omitempty"`
	Note           string          `json:"note,omitempty"`
	TotalPrice     decimal.Decimal `json:"totalPrice"`
	OccurredAt     time.Time       `json:"occurredAt"`
}

// Notifier delivers status updates. Delivery is best effort.
type Notifier interface {
	SendOrderStatusUpdate(ctx context.Context, u StatusUpdate) error
}

// LogNotifier writes updates to the log; used when no broker is configured.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) SendOrderStatusUpdate(ctx context.Context, u StatusUpdate) error {
	n.Logger.Info().
		Str("order_id", u.OrderID).
		Str("order_number", u.OrderNumber).
		Str("status", string(u.Status)).
		Msg("order status update")
	return nil
}
