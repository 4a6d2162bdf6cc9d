package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/clock"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/metrics"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/stock"
)

const (
	DefaultTTL         = 15 * time.Minute
	DefaultMaxQuantity = 10
)

var tracer = otel.Tracer("reservation-service/reservation")

// Manager owns the reservation lifecycle. Stock counters only move in the
// same transaction as a won status transition.
type Manager struct {
	tx          db.Transactor
	ledger      stock.Ledger
	store       Store
	clock       clock.Clock
	ttl         time.Duration
	maxQuantity int
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Manager)

// WithTTL overrides the default lifetime of new reservations.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

func WithMaxQuantity(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxQuantity = n
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func NewManager(tx db.Transactor, ledger stock.Ledger, store Store, clk clock.Clock, opts ...Option) *Manager {
	m := &Manager{
		tx:          tx,
		ledger:      ledger,
		store:       store,
		clock:       clk,
		ttl:         DefaultTTL,
		maxQuantity: DefaultMaxQuantity,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type ReserveInput struct {
	VariantID string
	Quantity  int
	Holder    Holder
}

func (in ReserveInput) validate(maxQuantity int) error {
	if in.VariantID == "" {
		return apperr.Validation("variant_required", "variantId is required")
	}
	if in.Quantity <= 0 || in.Quantity > maxQuantity {
		return apperr.Validation("quantity_invalid", "quantity out of range").
			WithDetail("min", 1).
			WithDetail("max", maxQuantity)
	}
	if in.Holder.IsZero() {
		return apperr.Validation("holder_required", "a session or user is required")
	}
	return nil
}

// CheckAvailability is an advisory read; the answer may be stale by the time
// the caller acts on it.
func (m *Manager) CheckAvailability(ctx context.Context, variantID string, qty int) (bool, error) {
	lvl, err := m.ledger.Get(ctx, variantID)
	if err != nil {
		return false, err
	}
	return lvl.Available() >= qty, nil
}

// Level returns the current counters of a variant.
func (m *Manager) Level(ctx context.Context, variantID string) (stock.Level, error) {
	return m.ledger.Get(ctx, variantID)
}

// AdjustTotal overwrites the physical stock of a variant.
func (m *Manager) AdjustTotal(ctx context.Context, variantID string, total int) (stock.Level, error) {
	var lvl stock.Level
	err := m.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := m.ledger.SetTotal(ctx, variantID, total); err != nil {
			return err
		}
		var err error
		lvl, err = m.ledger.Get(ctx, variantID)
		return err
	})
	return lvl, err
}

// HeldBy sums the quantity of a variant the holder still has on hold.
func (m *Manager) HeldBy(ctx context.Context, variantID string, holder Holder) (int, error) {
	if holder.IsZero() {
		return 0, nil
	}
	return m.store.SumActiveForHolder(ctx, variantID, holder, m.clock.Now())
}

// Reserve places a hold on stock for the holder. It fails with
// StockUnavailable when the variant cannot cover the quantity.
func (m *Manager) Reserve(ctx context.Context, in ReserveInput) (Reservation, error) {
	ctx, span := tracer.Start(ctx, "reservation.Reserve")
	defer span.End()
	span.SetAttributes(attribute.String("variant.id", in.VariantID), attribute.Int("quantity", in.Quantity))

	if err := in.validate(m.maxQuantity); err != nil {
		return Reservation{}, err
	}

	now := m.clock.Now()
	res := Reservation{
		ID:        uuid.NewString(),
		VariantID: in.VariantID,
		Quantity:  in.Quantity,
		SessionID: in.Holder.SessionID,
		UserID:    in.Holder.UserID,
		Status:    StatusActive,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
		UpdatedAt: now,
	}

	err := m.tx.WithTx(ctx, func(ctx context.Context) error {
		ok, err := m.ledger.TryReserve(ctx, in.VariantID, in.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			lvl, err := m.ledger.Get(ctx, in.VariantID)
			if err != nil {
				return err
			}
			return apperr.StockUnavailable("not enough stock").
				WithDetail("variantId", in.VariantID).
				WithDetail("requested", in.Quantity).
				WithDetail("available", lvl.Available())
		}
		return m.store.Insert(ctx, res)
	})
	if err != nil {
		if apperr.Is(err, apperr.KindStockUnavailable) {
			m.metrics.ObserveReservation("unavailable")
		}
		span.RecordError(err)
		return Reservation{}, err
	}

	m.metrics.ObserveReservation("reserved")
	m.logger.Info().
		Str("reservation_id", res.ID).
		Str("variant_id", res.VariantID).
		Int("quantity", res.Quantity).
		Time("expires_at", res.ExpiresAt).
		Msg("stock reserved")
	return res, nil
}

// Get returns a reservation the holder owns.
func (m *Manager) Get(ctx context.Context, id string, holder Holder) (Reservation, error) {
	r, err := m.store.Get(ctx, id)
	if err != nil {
		return Reservation{}, err
	}
	if !holder.Owns(r) {
		return Reservation{}, forbidden(id)
	}
	return r, nil
}

// Cancel releases an active reservation. It returns false without error when
// the reservation already reached a terminal status.
func (m *Manager) Cancel(ctx context.Context, id string, holder Holder) (bool, error) {
	var cancelled bool
	err := m.tx.WithTx(ctx, func(ctx context.Context) error {
		r, err := m.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if !holder.Owns(r) {
			return forbidden(id)
		}
		if r.Status != StatusActive {
			return nil
		}
		won, err := m.store.Transition(ctx, id, StatusActive, StatusCancelled, m.clock.Now())
		if err != nil || !won {
			return err
		}
		if err := m.ledger.Release(ctx, r.VariantID, r.Quantity); err != nil {
			return err
		}
		cancelled = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if cancelled {
		m.metrics.ObserveReservation("cancelled")
		m.logger.Info().Str("reservation_id", id).Msg("reservation cancelled")
	}
	return cancelled, nil
}

// Convert consumes the held stock of an active, unexpired reservation.
// A reservation that is no longer active yields a Conflict and changes nothing.
func (m *Manager) Convert(ctx context.Context, id string, holder Holder) (Reservation, error) {
	var out Reservation
	err := m.tx.WithTx(ctx, func(ctx context.Context) error {
		r, err := m.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if !holder.Owns(r) {
			return forbidden(id)
		}
		if r.Status != StatusActive {
			return notActive(r)
		}
		now := m.clock.Now()
		if !r.ExpiresAt.After(now) {
			return apperr.Conflict("reservation_expired", "reservation has expired").WithDetail("id", id)
		}
		won, err := m.store.Transition(ctx, id, StatusActive, StatusConverted, now)
		if err != nil {
			return err
		}
		if !won {
			latest, err := m.store.Get(ctx, id)
			if err != nil {
				return err
			}
			return notActive(latest)
		}
		if err := m.ledger.Commit(ctx, r.VariantID, r.Quantity); err != nil {
			return err
		}
		r.Status = StatusConverted
		r.UpdatedAt = now
		out = r
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}
	m.metrics.ObserveReservation("converted")
	m.logger.Info().Str("reservation_id", id).Str("variant_id", out.VariantID).Msg("reservation converted")
	return out, nil
}

// ConvertBatch converts each id on its own; one failure does not undo the others.
func (m *Manager) ConvertBatch(ctx context.Context, ids []string, holder Holder) []ConversionResult {
	results := make([]ConversionResult, 0, len(ids))
	for _, id := range ids {
		if _, err := m.Convert(ctx, id, holder); err != nil {
			results = append(results, ConversionResult{ID: id, Reason: reason(err)})
			continue
		}
		results = append(results, ConversionResult{ID: id, Success: true})
	}
	return results
}

// Expire moves a due reservation to EXPIRED and releases its stock. It
// returns false when the reservation is not active or not yet due.
func (m *Manager) Expire(ctx context.Context, id string) (bool, error) {
	var expired bool
	err := m.tx.WithTx(ctx, func(ctx context.Context) error {
		r, err := m.store.Get(ctx, id)
		if err != nil {
			return err
		}
		now := m.clock.Now()
		if r.Status != StatusActive || r.ExpiresAt.After(now) {
			return nil
		}
		won, err := m.store.Transition(ctx, id, StatusActive, StatusExpired, now)
		if err != nil || !won {
			return err
		}
		if err := m.ledger.Release(ctx, r.VariantID, r.Quantity); err != nil {
			return err
		}
		expired = true
		return nil
	})
	return expired, err
}

func forbidden(id string) error {
	return apperr.Forbidden("reservation_forbidden", "reservation belongs to another holder").WithDetail("id", id)
}

func notActive(r Reservation) error {
	return apperr.Conflict("reservation_not_active", "reservation is not active").
		WithDetail("id", r.ID).
		WithDetail("status", string(r.Status))
}

func reason(err error) string {
	if e, ok := apperr.As(err); ok && e.Kind != apperr.KindInternal {
		return e.Message
	}
	return "internal error"
}
