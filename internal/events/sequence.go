package events

import (
	"context"
	"fmt"

	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/db"
)

// SequenceRepository hands out producer-side sequence numbers per partition.
type SequenceRepository struct {
	db *db.Runner
}

func NewSequenceRepository(runner *db.Runner) *SequenceRepository {
	return &SequenceRepository{db: runner}
}

func (r *SequenceRepository) NextSequence(ctx context.Context, partitionKey string) (int64, error) {
	if partitionKey == "" {
		return 0, fmt.Errorf("partition key is required")
	}

	var seq int64
	if err := r.db.Q(ctx).QueryRow(ctx, `
		INSERT INTO event_sequence (partition_key, last_sequence, updated_at)
		VALUES ($1, 1, NOW())
		ON CONFLICT (partition_key)
		DO UPDATE SET last_sequence = event_sequence.last_sequence + 1, updated_at = NOW()
		RETURNING last_sequence
	`, partitionKey).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return seq, nil
}
