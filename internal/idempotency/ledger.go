// Package idempotency records, once per key, the outcome of a financial
// operation so that a retried request returns the original result.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/db"
)

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

const TypeOrderCreate = "ORDER_CREATE"

type Record struct {
	Key             string          `json:"key"`
	TransactionType string          `json:"transactionType"`
	EntityID        string          `json:"entityId"`
	EntityCode      string          `json:"entityCode"`
	Status          Status          `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	UserID          string          `json:"userId"`
	Details         map[string]any  `json:"details,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Ledger stores write-once records keyed by idempotency key.
type Ledger interface {
	Get(ctx context.Context, key string) (*Record, error)
	// RecordIfAbsent inserts rec unless the key exists. When it exists the
	// stored record is returned and inserted is false.
	RecordIfAbsent(ctx context.Context, rec Record) (inserted bool, existing *Record, err error)
}

// Key derives a server-side key from the requester and the client nonce, so
// equal nonces from different users never collide.
func Key(scope, ownerID, nonce string) string {
	sum := sha256.Sum256([]byte(scope + ":" + ownerID + ":" + nonce))
	return hex.EncodeToString(sum[:])
}

type PostgresLedger struct {
	db *db.Runner
}

func NewPostgresLedger(runner *db.Runner) *PostgresLedger {
	return &PostgresLedger{db: runner}
}

func (l *PostgresLedger) Get(ctx context.Context, key string) (*Record, error) {
	var (
		rec     Record
		status  string
		amount  string
		details string
	)
	err := l.db.Q(ctx).QueryRow(ctx, `
		SELECT idempotency_key, transaction_type, entity_id, entity_code, status,
		       amount::text, user_id, details::text, created_at
		FROM idempotency_records
		WHERE idempotency_key=$1
	`, key).Scan(&rec.Key, &rec.TransactionType, &rec.EntityID, &rec.EntityCode, &status, &amount, &rec.UserID, &details, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select idempotency record: %w", err)
	}
	rec.Status = Status(status)
	if rec.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse idempotency amount: %w", err)
	}
	if details != "" {
		if err := json.Unmarshal([]byte(details), &rec.Details); err != nil {
			return nil, fmt.Errorf("decode idempotency details: %w", err)
		}
	}
	return &rec, nil
}

func (l *PostgresLedger) RecordIfAbsent(ctx context.Context, rec Record) (bool, *Record, error) {
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return false, nil, fmt.Errorf("encode idempotency details: %w", err)
	}
	if rec.Details == nil {
		details = []byte("{}")
	}

	tag, err := l.db.Q(ctx).Exec(ctx, `
		INSERT INTO idempotency_records
			(idempotency_key, transaction_type, entity_id, entity_code, status, amount, user_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8::jsonb, $9)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, rec.Key, rec.TransactionType, rec.EntityID, rec.EntityCode, string(rec.Status), rec.Amount.String(), rec.UserID, string(details), rec.CreatedAt)
	if err != nil {
		return false, nil, fmt.Errorf("insert idempotency record: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil, nil
	}

	existing, err := l.Get(ctx, rec.Key)
	if err != nil {
		return false, nil, err
	}
	if existing == nil {
		return false, nil, fmt.Errorf("idempotency record %s vanished after conflict", rec.Key)
	}
	return false, existing, nil
}
