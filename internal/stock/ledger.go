package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/db"
)

// Ledger owns the totalStock/reservedStock counters of each variant.
// Every method runs on the transaction carried by ctx, if any.
type Ledger interface {
	Get(ctx context.Context, variantID string) (Level, error)
	TryReserve(ctx context.Context, variantID string, qty int) (bool, error)
	Release(ctx context.Context, variantID string, qty int) error
	Commit(ctx context.Context, variantID string, qty int) error
	SetTotal(ctx context.Context, variantID string, total int) error
}

type PostgresLedger struct {
	db *db.Runner
}

func NewPostgresLedger(runner *db.Runner) *PostgresLedger {
	return &PostgresLedger{db: runner}
}

func (l *PostgresLedger) Get(ctx context.Context, variantID string) (Level, error) {
	lvl := Level{VariantID: variantID}
	err := l.db.Q(ctx).QueryRow(ctx, `
		SELECT total_stock, reserved_stock
		FROM product_variants
		WHERE id=$1
	`, variantID).Scan(&lvl.Total, &lvl.Reserved)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Level{}, apperr.NotFound("variant_not_found", "variant not found").WithDetail("variantId", variantID)
		}
		return Level{}, fmt.Errorf("select stock level: %w", err)
	}
	return lvl, nil
}

// TryReserve grows reservedStock by qty only if enough stock is available.
// The check and the increment are one statement, so concurrent callers on
// the same variant are serialised by the row lock.
func (l *PostgresLedger) TryReserve(ctx context.Context, variantID string, qty int) (bool, error) {
	tag, err := l.db.Q(ctx).Exec(ctx, `
		UPDATE product_variants
		SET reserved_stock = reserved_stock + $2, updated_at = now()
		WHERE id=$1 AND total_stock - reserved_stock >= $2
	`, variantID, qty)
	if err != nil {
		return false, fmt.Errorf("reserve stock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release shrinks reservedStock by qty, flooring at zero.
func (l *PostgresLedger) Release(ctx context.Context, variantID string, qty int) error {
	_, err := l.db.Q(ctx).Exec(ctx, `
		UPDATE product_variants
		SET reserved_stock = GREATEST(reserved_stock - $2, 0), updated_at = now()
		WHERE id=$1
	`, variantID, qty)
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	return nil
}

// Commit turns a held quantity into consumed stock.
func (l *PostgresLedger) Commit(ctx context.Context, variantID string, qty int) error {
	tag, err := l.db.Q(ctx).Exec(ctx, `
		UPDATE product_variants
		SET total_stock = total_stock - $2,
		    reserved_stock = GREATEST(reserved_stock - $2, 0),
		    updated_at = now()
		WHERE id=$1 AND total_stock >= $2
	`, variantID, qty)
	if err != nil {
		return fmt.Errorf("commit stock: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return apperr.Internal("commit stock", fmt.Errorf("variant %s cannot absorb %d units", variantID, qty))
	}
	return nil
}

// SetTotal overwrites totalStock. It refuses totals below what is reserved.
func (l *PostgresLedger) SetTotal(ctx context.Context, variantID string, total int) error {
	if total < 0 {
		return apperr.Validation("total_invalid", "total stock must not be negative")
	}
	tag, err := l.db.Q(ctx).Exec(ctx, `
		UPDATE product_variants
		SET total_stock = $2, updated_at = now()
		WHERE id=$1 AND reserved_stock <= $2
	`, variantID, total)
	if err != nil {
		return fmt.Errorf("set total stock: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	lvl, err := l.Get(ctx, variantID)
	if err != nil {
		return err
	}
	return apperr.Conflict("total_below_reserved", "total stock below reserved stock").
		WithDetail("reservedStock", lvl.Reserved)
}
