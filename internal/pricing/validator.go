// Package pricing recomputes order amounts from catalog prices and rejects
// client-submitted amounts that drift beyond a relative tolerance.
package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/apperr"
)

// ErrNotFound is returned by a Catalog when a product or variant does not exist.
var ErrNotFound = errors.New("catalog: not found")

// DefaultTolerance is 1% of the expected amount.
var DefaultTolerance = decimal.RequireFromString("0.01")

type Variant struct {
	ID        string
	ProductID string
	Price     decimal.Decimal
}

type Product struct {
	ID        string
	BasePrice decimal.Decimal
}

// Catalog is a read-only view of current prices.
type Catalog interface {
	GetVariant(ctx context.Context, id string) (Variant, error)
	GetProduct(ctx context.Context, id string) (Product, error)
}

type Item struct {
	ProductID string
	VariantID string
	Quantity  int
	Price     decimal.Decimal
}

type Input struct {
	Items        []Item
	Subtotal     decimal.Decimal
	ShippingCost decimal.Decimal
	Total        decimal.Decimal
}

// Line is an item priced by the server.
type Line struct {
	Item
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

type Quote struct {
	Lines        []Line
	Subtotal     decimal.Decimal
	ShippingCost decimal.Decimal
	Total        decimal.Decimal
}

type Validator struct {
	catalog   Catalog
	tolerance decimal.Decimal
}

func NewValidator(catalog Catalog, tolerance decimal.Decimal) *Validator {
	if !tolerance.IsPositive() {
		tolerance = DefaultTolerance
	}
	return &Validator{catalog: catalog, tolerance: tolerance}
}

// Validate prices every item from the catalog and checks the submitted line
// prices, subtotal and total against the server figures.
func (v *Validator) Validate(ctx context.Context, in Input) (Quote, error) {
	q := Quote{ShippingCost: in.ShippingCost}

	for i, it := range in.Items {
		unit, err := v.unitPrice(ctx, it)
		if err != nil {
			return Quote{}, err
		}
		if !v.within(unit, it.Price) {
			return Quote{}, mismatch(fmt.Sprintf("items[%d].price", i), unit, it.Price).
				WithDetail("productId", it.ProductID).
				WithDetail("variantId", it.VariantID)
		}
		line := Line{Item: it, UnitPrice: unit, LineTotal: unit.Mul(decimal.NewFromInt(int64(it.Quantity)))}
		q.Lines = append(q.Lines, line)
		q.Subtotal = q.Subtotal.Add(line.LineTotal)
	}

	if !v.within(q.Subtotal, in.Subtotal) {
		return Quote{}, mismatch("subtotal", q.Subtotal, in.Subtotal)
	}

	q.Total = q.Subtotal.Add(in.ShippingCost)
	if !v.within(q.Total, in.Total) {
		return Quote{}, mismatch("total", q.Total, in.Total)
	}
	return q, nil
}

func (v *Validator) unitPrice(ctx context.Context, it Item) (decimal.Decimal, error) {
	if it.VariantID != "" {
		variant, err := v.catalog.GetVariant(ctx, it.VariantID)
		if err != nil {
			return decimal.Zero, notFound(err, it)
		}
		if variant.ProductID != it.ProductID {
			return decimal.Zero, apperr.NotFound("product_not_found", "variant does not belong to product").
				WithDetail("productId", it.ProductID).
				WithDetail("variantId", it.VariantID)
		}
		return variant.Price, nil
	}

	product, err := v.catalog.GetProduct(ctx, it.ProductID)
	if err != nil {
		return decimal.Zero, notFound(err, it)
	}
	return product.BasePrice, nil
}

// within reports |received-expected| <= expected*tolerance. A zero expected
// amount must be matched exactly.
func (v *Validator) within(expected, received decimal.Decimal) bool {
	diff := received.Sub(expected).Abs()
	return diff.LessThanOrEqual(expected.Abs().Mul(v.tolerance))
}

func notFound(err error, it Item) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("product_not_found", "product not found").
			WithDetail("productId", it.ProductID).
			WithDetail("variantId", it.VariantID)
	}
	return apperr.Internal("load catalog price", err)
}

func mismatch(field string, expected, received decimal.Decimal) *apperr.Error {
	return apperr.PriceMismatch(field+" does not match current prices").
		WithDetail("field", field).
		WithDetail("expected", expected.StringFixed(2)).
		WithDetail("received", received.StringFixed(2))
}
