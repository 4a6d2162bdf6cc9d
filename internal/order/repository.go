package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/db"
)

// Repository persists orders with their items, payment and timeline. Writes
// run on the transaction carried by ctx.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, orderID string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	CompareAndSetStatus(ctx context.Context, orderID string, from, to Status, at time.Time) (bool, error)
	AppendTimeline(ctx context.Context, orderID string, e TimelineEntry) error
	UpdatePayment(ctx context.Context, orderID string, status PaymentStatus, providerTxID string, at time.Time) error
}

type PostgresRepository struct {
	db *db.Runner
}

func NewPostgresRepository(runner *db.Runner) *PostgresRepository {
	return &PostgresRepository{db: runner}
}

func (r *PostgresRepository) Create(ctx context.Context, o *Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	q := r.db.Q(ctx)

	_, err := q.Exec(ctx, `
		INSERT INTO orders (id, order_number, user_id, session_id, status, subtotal, shipping_cost, total_price,
		                    payment_method, shipping_address_id, billing_address_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9, $10, $11, $12, $13)
	`, o.ID, o.OrderNumber, o.UserID, o.SessionID, string(o.Status), o.Subtotal.String(), o.ShippingCost.String(), o.TotalPrice.String(),
		o.PaymentMethod, o.ShippingAddressID, o.BillingAddressID, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return apperr.Conflict("order_exists", "order already exists").WithDetail("orderNumber", o.OrderNumber)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range o.Items {
		it := &o.Items[i]
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		_, err = q.Exec(ctx, `
			INSERT INTO order_items (id, order_id, line_no, product_id, variant_id, quantity, price)
			VALUES ($1, $2, $3, $4, $5, $6, $7::numeric)
		`, it.ID, o.ID, i, it.ProductID, it.VariantID, it.Quantity, it.Price.String())
		if err != nil {
			return fmt.Errorf("insert order_item: %w", err)
		}
	}

	if p := o.Payment; p != nil {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		_, err = q.Exec(ctx, `
			INSERT INTO payments (id, order_id, amount, status, provider_transaction_id, updated_at)
			VALUES ($1, $2, $3::numeric, $4, $5, $6)
		`, p.ID, o.ID, p.Amount.String(), string(p.Status), p.ProviderTransactionID, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
	}

	for _, e := range o.Timeline {
		if err := r.AppendTimeline(ctx, o.ID, e); err != nil {
			return err
		}
	}
	return nil
}

const selectOrder = `
	SELECT id, order_number, user_id, session_id, status, subtotal::text, shipping_cost::text, total_price::text,
	       payment_method, shipping_address_id, billing_address_id, created_at, updated_at
	FROM orders`

func (r *PostgresRepository) Get(ctx context.Context, orderID string) (*Order, error) {
	q := r.db.Q(ctx)

	o, err := scanOrder(q.QueryRow(ctx, selectOrder+` WHERE id=$1`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("order_not_found", "order not found").WithDetail("orderId", orderID)
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	if o.Items, err = r.items(ctx, o.ID); err != nil {
		return nil, err
	}

	var (
		p      Payment
		amount string
		status string
	)
	err = q.QueryRow(ctx, `
		SELECT id, amount::text, status, provider_transaction_id, updated_at
		FROM payments WHERE order_id=$1
	`, o.ID).Scan(&p.ID, &amount, &status, &p.ProviderTransactionID, &p.UpdatedAt)
	switch {
	case err == nil:
		p.Status = PaymentStatus(status)
		if p.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse payment amount: %w", err)
		}
		o.Payment = &p
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("select payment: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT status, note, created_at
		FROM order_timeline WHERE order_id=$1 ORDER BY id
	`, o.ID)
	if err != nil {
		return nil, fmt.Errorf("select order_timeline: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			e      TimelineEntry
			status string
		)
		if err := rows.Scan(&status, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", err)
		}
		e.Status = Status(status)
		o.Timeline = append(o.Timeline, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return o, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.db.Q(ctx).Query(ctx, selectOrder+` WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	for i := range orders {
		if orders[i].Items, err = r.items(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *PostgresRepository) CompareAndSetStatus(ctx context.Context, orderID string, from, to Status, at time.Time) (bool, error) {
	tag, err := r.db.Q(ctx).Exec(ctx, `
		UPDATE orders SET status=$3, updated_at=$4
		WHERE id=$1 AND status=$2
	`, orderID, string(from), string(to), at)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) AppendTimeline(ctx context.Context, orderID string, e TimelineEntry) error {
	_, err := r.db.Q(ctx).Exec(ctx, `
		INSERT INTO order_timeline (order_id, status, note, created_at)
		VALUES ($1, $2, $3, $4)
	`, orderID, string(e.Status), e.Note, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order_timeline: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdatePayment(ctx context.Context, orderID string, status PaymentStatus, providerTxID string, at time.Time) error {
	tag, err := r.db.Q(ctx).Exec(ctx, `
		UPDATE payments
		SET status=$2, provider_transaction_id=COALESCE(NULLIF($3, ''), provider_transaction_id), updated_at=$4
		WHERE order_id=$1
	`, orderID, string(status), providerTxID, at)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("payment_not_found", "payment not found").WithDetail("orderId", orderID)
	}
	return nil
}

// items returns the lines in the order they were submitted.
func (r *PostgresRepository) items(ctx context.Context, orderID string) ([]Item, error) {
	rows, err := r.db.Q(ctx).Query(ctx, `
		SELECT id, product_id, variant_id, quantity, price::text
		FROM order_items WHERE order_id=$1 ORDER BY line_no
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("select order_items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			it    Item
			price string
		)
		if err := rows.Scan(&it.ID, &it.ProductID, &it.VariantID, &it.Quantity, &price); err != nil {
			return nil, fmt.Errorf("scan order_item: %w", err)
		}
		if it.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse item price: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return items, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o                         Order
		status                    string
		subtotal, shipping, total string
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.SessionID, &status, &subtotal, &shipping, &total,
		&o.PaymentMethod, &o.ShippingAddressID, &o.BillingAddressID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)
	for _, f := range []struct {
		raw string
		dst *decimal.Decimal
	}{{subtotal, &o.Subtotal}, {shipping, &o.ShippingCost}, {total, &o.TotalPrice}} {
		if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", f.raw, err)
		}
	}
	return &o, nil
}
