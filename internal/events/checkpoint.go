package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/db"
)

// Checkpoints tracks the last processed sequence per consumer and partition.
type Checkpoints struct {
	db *db.Runner
}

func NewCheckpoints(runner *db.Runner) *Checkpoints {
	return &Checkpoints{db: runner}
}

// LastSequence returns the last processed sequence for a consumer/partition.
// The boolean indicates whether a checkpoint existed.
func (c *Checkpoints) LastSequence(ctx context.Context, consumer, partitionKey string) (int64, bool, error) {
	var last int64
	if err := c.db.Q(ctx).QueryRow(ctx, `
		SELECT last_sequence
		FROM event_dedup_checkpoint
		WHERE consumer_name=$1 AND partition_key=$2
	`, consumer, partitionKey).Scan(&last); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("select checkpoint: %w", err)
	}
	return last, true, nil
}

// Advance moves the checkpoint forward. It never moves backwards, even when
// two deliveries race.
func (c *Checkpoints) Advance(ctx context.Context, consumer, partitionKey string, seq int64) error {
	_, err := c.db.Q(ctx).Exec(ctx, `
		INSERT INTO event_dedup_checkpoint (consumer_name, partition_key, last_sequence)
		VALUES ($1, $2, $3)
		ON CONFLICT (consumer_name, partition_key)
		DO UPDATE SET
			last_sequence = GREATEST(event_dedup_checkpoint.last_sequence, EXCLUDED.last_sequence),
			updated_at = now()
	`, consumer, partitionKey, seq)
	if err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	return nil
}
