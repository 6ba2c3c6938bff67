package sweeper

import (
	"context"
	"time"

	"github.com/lumenfest/checkout-engine/internal/clock"
	"github.com/lumenfest/checkout-engine/internal/domain"
	"github.com/lumenfest/checkout-engine/internal/observability"
)

// HoldStore lists and expires stale holds.
type HoldStore interface {
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
	ExpireHold(ctx context.Context, res domain.Reservation) error
}

// Publisher announces expired holds. Optional.
type Publisher interface {
	PublishJSON(ctx context.Context, key string, payload interface{}) error
}

// Auditor records expirations. Optional.
type Auditor interface {
	RecordHoldExpired(ctx context.Context, res domain.Reservation) error
}

// Sweeper expires stale holds in bounded batches. Each reservation is
// reversed in its own transaction so one failure never blocks the rest.
type Sweeper struct {
	store     HoldStore
	publisher Publisher
	audit     Auditor
	clock     clock.Clock
	logger    observability.Logger
	batch     int
}

func New(store HoldStore, publisher Publisher, audit Auditor, clk clock.Clock, logger observability.Logger, batch int) *Sweeper {
	if batch <= 0 {
		batch = 20
	}
	return &Sweeper{
		store:     store,
		publisher: publisher,
		audit:     audit,
		clock:     clk,
		logger:    logger,
		batch:     batch,
	}
}

// SweepOnce processes one bounded batch of stale holds. Best-effort: it
// returns the number of holds expired and only errors when the listing
// itself fails.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.clock.Now()
	stale, err := s.store.ListExpiredHolds(ctx, now, s.batch)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, res := range stale {
		if err := s.store.ExpireHold(ctx, res); err != nil {
			s.logger.WithField("tx_ref", res.TxRef).WithError(err).Warn("failed to expire stale hold, skipping")
			continue
		}
		swept++
		observability.HoldsExpired.Inc()

		if s.audit != nil {
			_ = s.audit.RecordHoldExpired(ctx, res)
		}
		if s.publisher != nil {
			if err := s.publisher.PublishJSON(ctx, "hold.expired", map[string]interface{}{
				"tx_ref":     res.TxRef,
				"expired_at": res.ExpiresAt,
			}); err != nil {
				s.logger.WithField("tx_ref", res.TxRef).WithError(err).Warn("failed to publish hold.expired")
			}
		}
	}
	return swept, nil
}

// Run sweeps on a fixed interval until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.WithError(err).Error("sweep failed")
			}
		}
	}
}
