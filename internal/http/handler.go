package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/reservation"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/stock"
)

// Reservations is the stock and reservation surface, implemented by
// *reservation.Manager.
type Reservations interface {
	Level(ctx context.Context, variantID string) (stock.Level, error)
	AdjustTotal(ctx context.Context, variantID string, total int) (stock.Level, error)
	Reserve(ctx context.Context, in reservation.ReserveInput) (reservation.Reservation, error)
	Get(ctx context.Context, id string, holder reservation.Holder) (reservation.Reservation, error)
	Cancel(ctx context.Context, id string, holder reservation.Holder) (bool, error)
	ConvertBatch(ctx context.Context, ids []string, holder reservation.Holder) []reservation.ConversionResult
}

// Orders is implemented by *order.Service.
type Orders interface {
	CreateOrder(ctx context.Context, in order.CreateInput) (order.CreateResult, error)
	UpdateStatus(ctx context.Context, in order.UpdateStatusInput) (*order.Order, error)
	Get(ctx context.Context, orderID string, actor order.Actor) (*order.Order, error)
	ListForHolder(ctx context.Context, holder reservation.Holder) ([]order.Order, error)
}

type Handler struct {
	reservations Reservations
	orders       Orders
}

func NewHandler(reservations Reservations, orders Orders) *Handler {
	return &Handler{reservations: reservations, orders: orders}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	lvl, err := h.reservations.Level(r.Context(), chi.URLParam(r, "variantId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStockResponse(lvl))
}

func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	if !IdentityFrom(r.Context()).IsAdmin {
		writeError(w, r, apperr.Forbidden("admin_required", "stock adjustments require an admin"))
		return
	}

	var req adjustStockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, "invalid JSON body")
		return
	}
	if req.VariantID == "" || req.TotalStock == nil {
		badRequest(w, r, "variantId and totalStock are required")
		return
	}

	lvl, err := h.reservations.AdjustTotal(r.Context(), req.VariantID, *req.TotalStock)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStockResponse(lvl))
}

func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, "invalid JSON body")
		return
	}

	res, err := h.reservations.Reserve(r.Context(), reservation.ReserveInput{
		VariantID: req.VariantID,
		Quantity:  req.Quantity,
		Holder:    IdentityFrom(r.Context()).Holder,
	})
	if err != nil {
		if e, ok := apperr.As(err); ok && e.Kind == apperr.KindStockUnavailable {
			writeJSON(w, http.StatusConflict, reserveResponse{Reason: e.Message, Details: e.Details})
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reserveResponse{
		Success:       true,
		ReservationID: res.ID,
		ExpiresAt:     &res.ExpiresAt,
	})
}

func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.reservations.Get(r.Context(), chi.URLParam(r, "id"), IdentityFrom(r.Context()).Holder)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	ok, err := h.reservations.Cancel(r.Context(), chi.URLParam(r, "id"), IdentityFrom(r.Context()).Holder)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": ok})
}

func (h *Handler) ConvertReservations(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, "invalid JSON body")
		return
	}
	if len(req.ReservationIDs) == 0 {
		badRequest(w, r, "reservationIds is required")
		return
	}

	results := h.reservations.ConvertBatch(r.Context(), req.ReservationIDs, IdentityFrom(r.Context()).Holder)
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, "invalid JSON body")
		return
	}

	key := strings.TrimSpace(r.Header.Get(HeaderIdemKey))
	if key == "" {
		key = strings.TrimSpace(req.IdempotencyKey)
	}

	res, err := h.orders.CreateOrder(r.Context(), req.toInput(IdentityFrom(r.Context()), key))
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, createOrderResponse{
		Success:     true,
		OrderID:     res.OrderID,
		OrderNumber: res.OrderNumber,
		TotalPrice:  res.TotalPrice,
		Replayed:    res.Replayed,
	})
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListForHolder(r.Context(), IdentityFrom(r.Context()).Holder)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "orderId"), IdentityFrom(r.Context()).Actor())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, "invalid JSON body")
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), order.UpdateStatusInput{
		OrderID: chi.URLParam(r, "orderId"),
		Status:  order.Status(strings.ToUpper(strings.TrimSpace(req.Status))),
		Note:    req.Note,
		Actor:   IdentityFrom(r.Context()).Actor(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updateStatusResponse{Success: true, Order: o})
}
