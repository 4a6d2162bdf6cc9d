package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventEnvelope is the common wrapper for every event on the exchange.
type EventEnvelope[T any] struct {
	EventName     string    `json:"eventName"`
	EventVersion  int       `json:"eventVersion"`
	EventID       string    `json:"eventId"`
	CorrelationID string    `json:"correlationId,omitempty"`
	CausationID   string    `json:"causationId,omitempty"`
	Producer      string    `json:"producer"`
	PartitionKey  string    `json:"partitionKey"`
	Sequence      *int64    `json:"sequence,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
	Schema        string    `json:"schema"`
	Payload       T         `json:"payload"`
}

// Validate ensures the envelope carries the expected event identity.
func (e EventEnvelope[T]) Validate(expectedName string, expectedVersion int) error {
	if e.EventName != expectedName {
		return fmt.Errorf("unexpected eventName %q", e.EventName)
	}
	if e.EventVersion != expectedVersion {
		return fmt.Errorf("unexpected eventVersion %d", e.EventVersion)
	}
	if e.PartitionKey == "" {
		return fmt.Errorf("missing partitionKey")
	}
	if e.EventID == "" {
		return fmt.Errorf("missing eventId")
	}
	return nil
}

func decodeEnvelope[T any](body []byte, name string, version int) (EventEnvelope[T], error) {
	var env EventEnvelope[T]
	if err := json.Unmarshal(body, &env); err != nil {
		return env, fmt.Errorf("unmarshal %s: %w", name, err)
	}
	if err := env.Validate(name, version); err != nil {
		return env, fmt.Errorf("%s envelope: %w", name, err)
	}
	return env, nil
}
