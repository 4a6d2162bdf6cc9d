package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/db"
)

type Store interface {
	Insert(ctx context.Context, r Reservation) error
	Get(ctx context.Context, id string) (Reservation, error)
	// Transition moves id from one status to another only if it is still in
	// from. The boolean is false when another caller got there first.
	Transition(ctx context.Context, id string, from, to Status, at time.Time) (bool, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Reservation, error)
	SumActiveForHolder(ctx context.Context, variantID string, holder Holder, now time.Time) (int, error)
}

type PostgresStore struct {
	db *db.Runner
}

func NewPostgresStore(runner *db.Runner) *PostgresStore {
	return &PostgresStore{db: runner}
}

const selectReservation = `
	SELECT id, variant_id, quantity, COALESCE(session_id, ''), COALESCE(user_id, ''),
	       status, created_at, expires_at, updated_at
	FROM reservations`

func (s *PostgresStore) Insert(ctx context.Context, r Reservation) error {
	_, err := s.db.Q(ctx).Exec(ctx, `
		INSERT INTO reservations (id, variant_id, quantity, session_id, user_id, status, created_at, expires_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9)
	`, r.ID, r.VariantID, r.Quantity, r.SessionID, r.UserID, string(r.Status), r.CreatedAt, r.ExpiresAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Reservation, error) {
	r, err := scanReservation(s.db.Q(ctx).QueryRow(ctx, selectReservation+` WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reservation{}, apperr.NotFound("reservation_not_found", "reservation not found").WithDetail("id", id)
		}
		return Reservation{}, fmt.Errorf("select reservation: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) Transition(ctx context.Context, id string, from, to Status, at time.Time) (bool, error) {
	tag, err := s.db.Q(ctx).Exec(ctx, `
		UPDATE reservations
		SET status=$3, updated_at=$4
		WHERE id=$1 AND status=$2
	`, id, string(from), string(to), at)
	if err != nil {
		return false, fmt.Errorf("transition reservation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]Reservation, error) {
	rows, err := s.db.Q(ctx).Query(ctx, selectReservation+`
		WHERE status='ACTIVE' AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("select expired reservations: %w", err)
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SumActiveForHolder(ctx context.Context, variantID string, holder Holder, now time.Time) (int, error) {
	var sum int
	err := s.db.Q(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)::int
		FROM reservations
		WHERE variant_id=$1 AND status='ACTIVE' AND expires_at > $4
		  AND ((user_id IS NOT NULL AND user_id = NULLIF($2, ''))
		    OR (user_id IS NULL AND session_id = NULLIF($3, '')))
	`, variantID, holder.UserID, holder.SessionID, now).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum held stock: %w", err)
	}
	return sum, nil
}

func scanReservation(row pgx.Row) (Reservation, error) {
	var (
		r      Reservation
		status string
	)
	if err := row.Scan(&r.ID, &r.VariantID, &r.Quantity, &r.SessionID, &r.UserID, &status, &r.CreatedAt, &r.ExpiresAt, &r.UpdatedAt); err != nil {
		return Reservation{}, err
	}
	r.Status = Status(status)
	return r, nil
}
