package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/clock"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/idempotency"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/metrics"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/pricing"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/reservation"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/stock"
)

const DefaultMaxItemQuantity = 10

var tracer = otel.Tracer("reservation-service/order")

type AddressBook interface {
	OwnedBy(ctx context.Context, userID, addressID string) (bool, error)
}

type PriceValidator interface {
	Validate(ctx context.Context, in pricing.Input) (pricing.Quote, error)
}

// StockChecker answers the stock pre-flight. *reservation.Manager implements it.
type StockChecker interface {
	Level(ctx context.Context, variantID string) (stock.Level, error)
	HeldBy(ctx context.Context, variantID string, holder reservation.Holder) (int, error)
}

// Actor is whoever asks for a change. Admins skip ownership checks.
type Actor struct {
	Holder  reservation.Holder
	IsAdmin bool
}

var systemActor = Actor{IsAdmin: true}

type Deps struct {
	Tx          db.Transactor
	Repo        Repository
	Idempotency idempotency.Ledger
	Prices      PriceValidator
	Stock       StockChecker
	Addresses   AddressBook
	Notifier    Notifier
	Clock       clock.Clock
}

type Service struct {
	Deps
	transitions     Transitions
	maxItemQuantity int
	logger          zerolog.Logger
	metrics         *metrics.Metrics
}

type Option func(*Service)

func WithTransitions(t Transitions) Option {
	return func(s *Service) {
		if t != nil {
			s.transitions = t
		}
	}
}

func WithMaxItemQuantity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxItemQuantity = n
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(deps Deps, opts ...Option) *Service {
	s := &Service{
		Deps:            deps,
		transitions:     DefaultTransitions(),
		maxItemQuantity: DefaultMaxItemQuantity,
		logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Clock == nil {
		s.Clock = clock.NewSystem()
	}
	if s.Notifier == nil {
		s.Notifier = LogNotifier{Logger: s.logger}
	}
	return s
}

type ItemInput struct {
	ProductID string
	VariantID string
	Quantity  int
	Price     decimal.Decimal
}

type CreateInput struct {
	Holder                reservation.Holder
	IdempotencyKey        string
	Items                 []ItemInput
	Subtotal              decimal.Decimal
	ShippingCost          decimal.Decimal
	Total                 decimal.Decimal
	PaymentMethod         string
	PaymentStatus         PaymentStatus
	ProviderTransactionID string
	ShippingAddressID     string
	BillingAddressID      string
}

func (in CreateInput) validate(maxQuantity int) error {
	if in.Holder.UserID == "" {
		return apperr.Forbidden("authentication_required", "orders require a signed-in user")
	}
	if strings.TrimSpace(in.IdempotencyKey) == "" {
		return apperr.Validation("idempotency_key_required", "idempotency key is required")
	}
	if len(in.Items) == 0 {
		return apperr.Validation("items_required", "at least one item is required")
	}
	for i, it := range in.Items {
		if it.ProductID == "" {
			return apperr.Validation("product_required", "productId is required").WithDetail("item", i)
		}
		// Over the limit is rejected, never clamped.
		if it.Quantity <= 0 || it.Quantity > maxQuantity {
			return apperr.Validation("quantity_invalid", "quantity out of range").
				WithDetail("item", i).
				WithDetail("min", 1).
				WithDetail("max", maxQuantity)
		}
		if it.Price.IsNegative() {
			return apperr.Validation("price_invalid", "price must not be negative").WithDetail("item", i)
		}
	}
	if in.ShippingCost.IsNegative() {
		return apperr.Validation("shipping_invalid", "shipping cost must not be negative")
	}
	if in.ShippingAddressID == "" || in.BillingAddressID == "" {
		return apperr.Validation("address_required", "shipping and billing addresses are required")
	}
	if in.PaymentMethod == "" {
		return apperr.Validation("payment_method_required", "payment method is required")
	}
	if in.PaymentStatus != "" && !in.PaymentStatus.Valid() {
		return apperr.Validation("payment_status_invalid", "unknown payment status")
	}
	return nil
}

type CreateResult struct {
	OrderID     string          `json:"orderId"`
	OrderNumber string          `json:"orderNumber"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
	Replayed    bool            `json:"replayed"`
}

// stage tracks how far a create request got: RECEIVED, VALIDATED, PERSISTED
// and COMPLETE, or REJECTED.
type stage string

const (
	stageReceived  stage = "RECEIVED"
	stageValidated stage = "VALIDATED"
	stagePersisted stage = "PERSISTED"
	stageComplete  stage = "COMPLETE"
	stageRejected  stage = "REJECTED"
)

// errReplay aborts the create transaction when another request already
// recorded the same idempotency key.
type errReplay struct {
	rec *idempotency.Record
}

func (e errReplay) Error() string { return "idempotency key already recorded" }

// CreateOrder validates and persists an order exactly once per idempotency
// key. A retry of a recorded key returns the original order without
// re-running price or stock checks.
func (s *Service) CreateOrder(ctx context.Context, in CreateInput) (CreateResult, error) {
	ctx, span := tracer.Start(ctx, "order.CreateOrder")
	defer span.End()

	started := time.Now()
	res, st, err := s.createOrder(ctx, in)
	span.SetAttributes(attribute.String("order.stage", string(st)), attribute.Bool("order.replayed", res.Replayed))

	outcome := "created"
	switch {
	case err != nil && st == stageRejected:
		outcome = "rejected"
	case err != nil:
		outcome = "failed"
	case res.Replayed:
		outcome = "replayed"
	}
	s.metrics.ObserveOrder(outcome, time.Since(started))

	if err != nil {
		span.RecordError(err)
		s.logger.Warn().Err(err).Str("stage", string(st)).Str("user_id", in.Holder.UserID).Msg("order rejected")
		return CreateResult{}, err
	}
	return res, nil
}

func (s *Service) createOrder(ctx context.Context, in CreateInput) (CreateResult, stage, error) {
	if err := in.validate(s.maxItemQuantity); err != nil {
		return CreateResult{}, stageRejected, err
	}

	key := idempotency.Key("order", in.Holder.UserID, in.IdempotencyKey)
	prior, err := s.Idempotency.Get(ctx, key)
	if err != nil {
		return CreateResult{}, stageReceived, apperr.Internal("idempotency lookup", err)
	}
	if prior != nil && prior.Status == idempotency.StatusSuccess {
		return replayed(prior), stageComplete, nil
	}

	for _, addr := range []string{in.ShippingAddressID, in.BillingAddressID} {
		owned, err := s.Addresses.OwnedBy(ctx, in.Holder.UserID, addr)
		if err != nil {
			return CreateResult{}, stageReceived, apperr.Internal("address lookup", err)
		}
		if !owned {
			return CreateResult{}, stageRejected, apperr.Forbidden("address_forbidden", "address does not belong to user").
				WithDetail("addressId", addr)
		}
	}

	quote, err := s.Prices.Validate(ctx, toPricingInput(in))
	if err != nil {
		return CreateResult{}, stageFor(err), err
	}

	if err := s.preflightStock(ctx, in); err != nil {
		return CreateResult{}, stageFor(err), err
	}

	o := s.buildOrder(in, quote)
	rec := idempotency.Record{
		Key:             key,
		TransactionType: idempotency.TypeOrderCreate,
		EntityID:        o.ID,
		EntityCode:      o.OrderNumber,
		Status:          idempotency.StatusSuccess,
		Amount:          o.TotalPrice,
		UserID:          o.UserID,
		Details:         map[string]any{"itemCount": len(o.Items)},
		CreatedAt:       o.CreatedAt,
	}

	err = s.Tx.WithTx(ctx, func(ctx context.Context) error {
		inserted, existing, err := s.Idempotency.RecordIfAbsent(ctx, rec)
		if err != nil {
			return err
		}
		if !inserted {
			return errReplay{rec: existing}
		}
		return s.Repo.Create(ctx, o)
	})
	var replay errReplay
	switch {
	case errors.As(err, &replay):
		return replayed(replay.rec), stageComplete, nil
	case err != nil:
		if _, ok := apperr.As(err); ok {
			return CreateResult{}, stageValidated, err
		}
		return CreateResult{}, stageValidated, apperr.Internal("persist order", err)
	}

	s.logger.Info().
		Str("stage", string(stagePersisted)).
		Str("order_id", o.ID).
		Str("order_number", o.OrderNumber).
		Str("user_id", o.UserID).
		Str("total", o.TotalPrice.StringFixed(2)).
		Msg("order created")

	s.notify(ctx, o, "", "order placed")
	return CreateResult{OrderID: o.ID, OrderNumber: o.OrderNumber, TotalPrice: o.TotalPrice}, stageComplete, nil
}

// preflightStock checks each variant can cover the order. Stock the same
// holder already has on hold counts as available to them.
func (s *Service) preflightStock(ctx context.Context, in CreateInput) error {
	wanted := map[string]int{}
	for _, it := range in.Items {
		if it.VariantID != "" {
			wanted[it.VariantID] += it.Quantity
		}
	}
	ids := make([]string, 0, len(wanted))
	for id := range wanted {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		lvl, err := s.Stock.Level(ctx, id)
		if err != nil {
			return err
		}
		held, err := s.Stock.HeldBy(ctx, id, in.Holder)
		if err != nil {
			return apperr.Internal("held stock lookup", err)
		}
		if available := lvl.Available() + held; available < wanted[id] {
			return apperr.StockUnavailable("not enough stock").
				WithDetail("variantId", id).
				WithDetail("requested", wanted[id]).
				WithDetail("available", available)
		}
	}
	return nil
}

func (s *Service) buildOrder(in CreateInput, q pricing.Quote) *Order {
	now := s.Clock.Now()
	o := &Order{
		ID:                uuid.NewString(),
		OrderNumber:       newOrderNumber(now),
		UserID:            in.Holder.UserID,
		SessionID:         in.Holder.SessionID,
		Status:            StatusPending,
		Subtotal:          q.Subtotal,
		ShippingCost:      q.ShippingCost,
		TotalPrice:        q.Total,
		PaymentMethod:     in.PaymentMethod,
		ShippingAddressID: in.ShippingAddressID,
		BillingAddressID:  in.BillingAddressID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for _, l := range q.Lines {
		o.Items = append(o.Items, Item{
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
			Price:     l.UnitPrice,
		})
	}
	payStatus := in.PaymentStatus
	if payStatus == "" {
		payStatus = PaymentPending
	}
	o.Payment = &Payment{
		Amount:                q.Total,
		Status:                payStatus,
		ProviderTransactionID: in.ProviderTransactionID,
		UpdatedAt:             now,
	}
	o.Timeline = []TimelineEntry{{Status: StatusPending, Note: "order placed", CreatedAt: now}}
	return o
}

type UpdateStatusInput struct {
	OrderID string
	Status  Status
	Note    string
	Actor   Actor
}

// UpdateStatus applies one transition from the table and appends one
// timeline entry. A concurrent change makes it fail with Conflict.
func (s *Service) UpdateStatus(ctx context.Context, in UpdateStatusInput) (*Order, error) {
	var (
		o    *Order
		prev Status
	)
	err := s.Tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		o, prev, err = s.transition(ctx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, o, prev, in.Note)
	return o, nil
}

func (s *Service) transition(ctx context.Context, in UpdateStatusInput) (*Order, Status, error) {
	if !in.Status.Valid() {
		return nil, "", apperr.Validation("status_invalid", "unknown order status").WithDetail("status", string(in.Status))
	}

	o, err := s.Repo.Get(ctx, in.OrderID)
	if err != nil {
		return nil, "", err
	}
	if !in.Actor.IsAdmin {
		if o.UserID != in.Actor.Holder.UserID {
			return nil, "", apperr.Forbidden("order_forbidden", "order belongs to another user")
		}
		if in.Status != StatusCancelled {
			return nil, "", apperr.Forbidden("status_forbidden", "customers may only cancel orders")
		}
	}
	if !s.transitions.Allowed(o.Status, in.Status) {
		return nil, "", s.invalidTransition(o.Status, in.Status)
	}

	now := s.Clock.Now()
	won, err := s.Repo.CompareAndSetStatus(ctx, o.ID, o.Status, in.Status, now)
	if err != nil {
		return nil, "", err
	}
	if !won {
		latest, err := s.Repo.Get(ctx, o.ID)
		if err != nil {
			return nil, "", err
		}
		return nil, "", s.invalidTransition(latest.Status, in.Status)
	}

	entry := TimelineEntry{Status: in.Status, Note: in.Note, CreatedAt: now}
	if err := s.Repo.AppendTimeline(ctx, o.ID, entry); err != nil {
		return nil, "", err
	}

	prev := o.Status
	o.Status = in.Status
	o.UpdatedAt = now
	o.Timeline = append(o.Timeline, entry)
	return o, prev, nil
}

func (s *Service) invalidTransition(current, requested Status) error {
	next := s.transitions.Next(current)
	valid := make([]string, 0, len(next))
	for _, n := range next {
		valid = append(valid, string(n))
	}
	return apperr.Conflict("invalid_status_transition", fmt.Sprintf("cannot move order from %s to %s", current, requested)).
		WithDetail("currentStatus", string(current)).
		WithDetail("requestedStatus", string(requested)).
		WithDetail("validNextStatuses", valid)
}

type PaymentUpdate struct {
	OrderID               string
	Status                PaymentStatus
	ProviderTransactionID string
}

// RecordPayment stores a payment result. A paid pending order moves on to
// PROCESSING in the same transaction. When ctx already carries a transaction
// the status notification waits for that transaction to commit.
func (s *Service) RecordPayment(ctx context.Context, in PaymentUpdate) error {
	if !in.Status.Valid() {
		return apperr.Validation("payment_status_invalid", "unknown payment status")
	}

	var (
		moved *Order
		prev  Status
	)
	err := s.Tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.Repo.UpdatePayment(ctx, in.OrderID, in.Status, in.ProviderTransactionID, s.Clock.Now()); err != nil {
			return err
		}
		if in.Status != PaymentPaid {
			return nil
		}
		o, err := s.Repo.Get(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if o.Status != StatusPending {
			return nil
		}
		moved, prev, err = s.transition(ctx, UpdateStatusInput{
			OrderID: in.OrderID,
			Status:  StatusProcessing,
			Note:    "payment received",
			Actor:   systemActor,
		})
		return err
	})
	if err != nil {
		return err
	}
	if moved != nil {
		s.notify(ctx, moved, prev, "payment received")
	}
	return nil
}

// Get returns an order visible to the actor.
func (s *Service) Get(ctx context.Context, orderID string, actor Actor) (*Order, error) {
	o, err := s.Repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && o.UserID != actor.Holder.UserID {
		return nil, apperr.Forbidden("order_forbidden", "order belongs to another user")
	}
	return o, nil
}

// ListForHolder returns the holder's orders, newest first. Guests have none.
func (s *Service) ListForHolder(ctx context.Context, holder reservation.Holder) ([]Order, error) {
	if holder.UserID == "" {
		return []Order{}, nil
	}
	orders, err := s.Repo.ListByUser(ctx, holder.UserID)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []Order{}
	}
	return orders, nil
}

// notify publishes once the caller's transaction, if any, has committed.
func (s *Service) notify(ctx context.Context, o *Order, prev Status, note string) {
	update := StatusUpdate{
		OrderID:        o.ID,
		OrderNumber:    o.OrderNumber,
		UserID:         o.UserID,
		Status:         o.Status,
		PreviousStatus: prev,
		Note:           note,
		TotalPrice:     o.TotalPrice,
		OccurredAt:     s.Clock.Now(),
	}
	db.AfterCommit(ctx, func(ctx context.Context) {
		if err := s.Notifier.SendOrderStatusUpdate(ctx, update); err != nil {
			s.logger.Warn().Err(err).Str("order_id", o.ID).Msg("order notification failed")
		}
	})
}

func replayed(rec *idempotency.Record) CreateResult {
	return CreateResult{
		OrderID:     rec.EntityID,
		OrderNumber: rec.EntityCode,
		TotalPrice:  rec.Amount,
		Replayed:    true,
	}
}

func toPricingInput(in CreateInput) pricing.Input {
	out := pricing.Input{
		Subtotal:     in.Subtotal,
		ShippingCost: in.ShippingCost,
		Total:        in.Total,
	}
	for _, it := range in.Items {
		out.Items = append(out.Items, pricing.Item{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
	}
	return out
}

func stageFor(err error) stage {
	if apperr.KindOf(err) == apperr.KindInternal {
		return stageReceived
	}
	return stageRejected
}

func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "ORD-" + now.Format("20060102") + "-" + suffix
}
