package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/stock"
)

type stockResponse struct {
	VariantID string `json:"variantId"`
	Total     int    `json:"totalStock"`
	Reserved  int    `json:"reservedStock"`
	Available int    `json:"availableStock"`
}

func newStockResponse(l stock.Level) stockResponse {
	return stockResponse{VariantID: l.VariantID, Total: l.Total, Reserved: l.Reserved, Available: l.Available()}
}

type adjustStockRequest struct {
	VariantID  string `json:"variantId"`
	TotalStock *int   `json:"totalStock"`
}

type reserveRequest struct {
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

type reserveResponse struct {
	Success       bool           `json:"success"`
	ReservationID string         `json:"reservationId,omitempty"`
	ExpiresAt     *time.Time     `json:"expiresAt,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}

type convertRequest struct {
	ReservationIDs []string `json:"reservationIds"`
}

type orderItemRequest struct {
	ProductID string          `json:"productId"`
	VariantID string          `json:"variantId,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type createOrderRequest struct {
	IdempotencyKey        string             `json:"idempotencyKey,omitempty"`
	Items                 []orderItemRequest `json:"items"`
	Subtotal              decimal.Decimal    `json:"subtotal"`
	ShippingCost          decimal.Decimal    `json:"shippingCost"`
	Total                 decimal.Decimal    `json:"total"`
	PaymentMethod         string             `json:"paymentMethod"`
	PaymentStatus         string             `json:"paymentStatus,omitempty"`
	ProviderTransactionID string             `json:"providerTransactionId,omitempty"`
	ShippingAddressID     string             `json:"shippingAddressId"`
	BillingAddressID      string             `json:"billingAddressId"`
}

func (req createOrderRequest) toInput(id Identity, key string) order.CreateInput {
	in := order.CreateInput{
		Holder:                id.Holder,
		IdempotencyKey:        key,
		Subtotal:              req.Subtotal,
		ShippingCost:          req.ShippingCost,
		Total:                 req.Total,
		PaymentMethod:         req.PaymentMethod,
		PaymentStatus:         order.PaymentStatus(req.PaymentStatus),
		ProviderTransactionID: req.ProviderTransactionID,
		ShippingAddressID:     req.ShippingAddressID,
		BillingAddressID:      req.BillingAddressID,
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, order.ItemInput{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
	}
	return in
}

type createOrderResponse struct {
	Success     bool            `json:"success"`
	OrderID     string          `json:"orderId"`
	OrderNumber string          `json:"orderNumber"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
	Replayed    bool            `json:"replayed,omitempty"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

type updateStatusResponse struct {
	Success bool         `json:"success"`
	Order   *order.Order `json:"order"`
}
