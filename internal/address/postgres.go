// Package address answers ownership questions against the address book.
package address

import (
	"context"
	"fmt"

	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/db"
)

type PostgresBook struct {
	db *db.Runner
}

func NewPostgresBook(runner *db.Runner) *PostgresBook {
	return &PostgresBook{db: runner}
}

// OwnedBy reports whether addressID exists and belongs to userID.
func (b *PostgresBook) OwnedBy(ctx context.Context, userID, addressID string) (bool, error) {
	var owned bool
	err := b.db.Q(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM addresses WHERE id=$1 AND user_id=$2)
	`, addressID, userID).Scan(&owned)
	if err != nil {
		return false, fmt.Errorf("check address owner: %w", err)
	}
	return owned, nil
}
