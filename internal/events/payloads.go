package events

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatusPayload struct {
	OrderID        string          `json:"orderId"`
	OrderNumber    string          `json:"orderNumber"`
	UserID         string          `json:"userId"`
	Status         string          `json:"status"`
	PreviousStatus string          `json:"previousStatus,omitempty"`
	Note           string          `json:"note,omitempty"`
	TotalPrice     decimal.Decimal `json:"totalPrice"`
	Timestamp      time.Time       `json:"timestamp"`
}

// PaymentResultPayload is sent by the payment provider bridge once a charge
// settles. Status is one of PAID, FAILED or REFUNDED.
type PaymentResultPayload struct {
	OrderID               string    `json:"orderId"`
	Status                string    `json:"status"`
	ProviderTransactionID string    `json:"providerTransactionId,omitempty"`
	Reason                string    `json:"reason,omitempty"`
	Timestamp             time.Time `json:"timestamp"`
}
