// Package catalog reads current prices from the product tables. It never writes.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/pricing"
)

type PostgresCatalog struct {
	db *db.Runner
}

func NewPostgresCatalog(runner *db.Runner) *PostgresCatalog {
	return &PostgresCatalog{db: runner}
}

func (c *PostgresCatalog) GetVariant(ctx context.Context, id string) (pricing.Variant, error) {
	var (
		v     = pricing.Variant{ID: id}
		price string
	)
	err := c.db.Q(ctx).QueryRow(ctx, `
		SELECT product_id, price::text
		FROM product_variants
		WHERE id=$1
	`, id).Scan(&v.ProductID, &price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pricing.Variant{}, pricing.ErrNotFound
		}
		return pricing.Variant{}, fmt.Errorf("select variant: %w", err)
	}
	if v.Price, err = decimal.NewFromString(price); err != nil {
		return pricing.Variant{}, fmt.Errorf("parse variant price %q: %w", price, err)
	}
	return v, nil
}

func (c *PostgresCatalog) GetProduct(ctx context.Context, id string) (pricing.Product, error) {
	var (
		p     = pricing.Product{ID: id}
		price string
	)
	err := c.db.Q(ctx).QueryRow(ctx, `SELECT base_price::text FROM products WHERE id=$1`, id).Scan(&price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pricing.Product{}, pricing.ErrNotFound
		}
		return pricing.Product{}, fmt.Errorf("select product: %w", err)
	}
	if p.BasePrice, err = decimal.NewFromString(price); err != nil {
		return pricing.Product{}, fmt.Errorf("parse product price %q: %w", price, err)
	}
	return p, nil
}
