package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"solestore-payments/internal/usecase"
)

// Sweeper periodically expires stale stock reservations so abandoned
// carts return their holds to the pool.
type Sweeper struct {
	inventoryUC *usecase.InventoryUsecase
	interval    time.Duration
	logger      *zap.Logger
}

func NewSweeper(inventoryUC *usecase.InventoryUsecase, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		inventoryUC: inventoryUC,
		interval:    interval,
		logger:      logger,
	}
}

// Run blocks until ctx is cancelled. One sweep runs immediately on start
// so a restart does not leave expired holds in place for a full interval.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("reservation sweeper started",
		zap.Duration("interval", s.interval))

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reservation sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	swept, err := s.inventoryUC.SweepExpired(ctx)
	if err != nil {
		s.logger.Error("reservation sweep failed", zap.Error(err))
		return
	}
	if swept > 0 {
		s.logger.Info("expired reservations swept", zap.Int("count", swept))
	}
}
