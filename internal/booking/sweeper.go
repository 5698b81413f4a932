package booking

import (
	"context"
	"time"

	"restaurant-storefront/internal/logger"
)

// Sweeper periodically cancels expired reservation holds so abandoned
// bookings free their tables. Availability queries already exclude expired
// holds; the sweeper just keeps the ERP tidy.
type Sweeper struct {
	Bookings *Orchestrator
	Interval time.Duration
	Log      *logger.Logger
}

// Run ticks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	// kick immediately
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	released, err := s.Bookings.ReleaseExpiredHolds(ctx)
	if err != nil {
		s.Log.Error("hold_sweep_failed", "", "Failed to release expired holds", err, nil)
		return
	}
	if released > 0 {
		s.Log.Info("holds_released", "", "Released expired reservation holds", map[string]interface{}{
			"count": released,
		})
	}
}
