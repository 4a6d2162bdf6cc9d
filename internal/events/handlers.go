package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/order"
)

// HandlerFunc processes one message body. A returned error NACKs the
// delivery.
type HandlerFunc func(ctx context.Context, body []byte) error

// permanentError marks a message that will never succeed, so it is dropped
// instead of requeued.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return permanentError{err: err} }

func isPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

type PaymentRecorder interface {
	RecordPayment(ctx context.Context, in order.PaymentUpdate) error
}

type CheckpointStore interface {
	LastSequence(ctx context.Context, consumer, partitionKey string) (int64, bool, error)
	Advance(ctx context.Context, consumer, partitionKey string, seq int64) error
}

const paymentResultConsumerName = "reservation-payment-result"

// PaymentResultHandler applies payment results to orders. Redelivered events
// at or below the partition checkpoint are skipped.
func PaymentResultHandler(tx db.Transactor, recorder PaymentRecorder, checkpoints CheckpointStore, logger zerolog.Logger) HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		env, err := decodeEnvelope[PaymentResultPayload](body, EventNamePaymentResult, 1)
		if err != nil {
			return permanent(err)
		}
		p := env.Payload
		if p.OrderID == "" {
			return permanent(fmt.Errorf("missing orderId"))
		}

		var seq int64
		if env.Sequence != nil {
			seq = *env.Sequence
		}
		log := logger.With().
			Str("event_id", env.EventID).
			Str("order_id", p.OrderID).
			Str("partition", env.PartitionKey).
			Int64("seq", seq).
			Logger()

		skipped := false
		err = tx.WithTx(ctx, func(ctx context.Context) error {
			if seq != 0 {
				last, ok, err := checkpoints.LastSequence(ctx, paymentResultConsumerName, env.PartitionKey)
				if err != nil {
					return err
				}
				if ok && seq <= last {
					skipped = true
					return nil
				}
				if ok && seq > last+1 {
					log.Warn().Int64("last", last).Msg("sequence gap")
				}
			}

			if err := recorder.RecordPayment(ctx, order.PaymentUpdate{
				OrderID:               p.OrderID,
				Status:                order.PaymentStatus(p.Status),
				ProviderTransactionID: p.ProviderTransactionID,
			}); err != nil {
				return err
			}

			if seq != 0 {
				return checkpoints.Advance(ctx, paymentResultConsumerName, env.PartitionKey, seq)
			}
			return nil
		})
		if err != nil {
			switch apperr.KindOf(err) {
			case apperr.KindValidation, apperr.KindNotFound:
				return permanent(err)
			}
			return err
		}

		if skipped {
			log.Info().Msg("skip duplicate payment result")
			return nil
		}
		log.Info().Str("status", p.Status).Msg("payment result applied")
		return nil
	}
}
