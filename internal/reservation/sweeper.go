package reservation

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultSweepInterval = 30 * time.Second
	DefaultSweepBatch    = 100
)

// Sweeper periodically expires reservations whose TTL has passed.
// It may run on several instances at once; the status swap decides who wins.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	batch    int
	logger   zerolog.Logger
}

func NewSweeper(m *Manager, interval time.Duration, batch int, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if batch <= 0 {
		batch = DefaultSweepBatch
	}
	return &Sweeper{manager: m, interval: interval, batch: batch, logger: logger}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("reservation sweeper started")
	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("reservation sweep failed")
		}
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("reservation sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce expires one batch of due reservations and returns how many it
// expired. Failures on single rows are logged and skipped.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	due, err := s.manager.store.ListExpired(ctx, s.manager.clock.Now(), s.batch)
	if err != nil {
		return 0, err
	}

	expired, failed := 0, 0
	for _, r := range due {
		if ctx.Err() != nil {
			break
		}
		ok, err := s.manager.Expire(ctx, r.ID)
		if err != nil {
			failed++
			s.logger.Warn().Err(err).Str("reservation_id", r.ID).Msg("expire reservation")
			continue
		}
		if ok {
			expired++
		}
	}

	s.manager.metrics.ObserveSweep(expired, failed)
	if expired > 0 || failed > 0 {
		s.logger.Info().Int("expired", expired).Int("failed", failed).Msg("reservation sweep")
	}
	return expired, nil
}
