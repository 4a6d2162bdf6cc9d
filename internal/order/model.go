package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

type Item struct {
	ID        string          `json:"id"`
	ProductID string          `json:"productId"`
	VariantID string          `json:"variantId,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type Payment struct {
	ID                    string          `json:"id"`
	Amount                decimal.Decimal `json:"amount"`
	Status                PaymentStatus   `json:"status"`
	ProviderTransactionID string          `json:"providerTransactionId,omitempty"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

type TimelineEntry struct {
	Status    Status    `json:"status"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Order struct {
	ID                string          `json:"orderId"`
	OrderNumber       string          `json:"orderNumber"`
	UserID            string          `json:"userId"`
	SessionID         string          `json:"sessionId,omitempty"`
	Status            Status          `json:"status"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	ShippingCost      decimal.Decimal `json:"shippingCost"`
	TotalPrice        decimal.Decimal `json:"totalPrice"`
	PaymentMethod     string          `json:"paymentMethod"`
	ShippingAddressID string          `json:"shippingAddressId"`
	BillingAddressID  string          `json:"billingAddressId"`
	Items             []Item          `json:"items"`
	Payment           *Payment        `json:"payment,omitempty"`
	Timeline          []TimelineEntry `json:"timeline,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}
