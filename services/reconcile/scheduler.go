package reconcile

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const runTimeout = 10 * time.Minute

// Scheduler runs full reconciliation passes on a fixed interval.
type Scheduler struct {
	service  *Service
	interval time.Duration

	stop chan struct{}
	done chan struct{}
}

func NewScheduler(svc *Service, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		service:  svc,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go s.run()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(s.stop)
			select {
			case <-s.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func (s *Scheduler) run() {
	defer close(s.done)

	zap.L().Info("[Scheduler] started promo usage reconciliation scheduler",
		zap.Duration("interval", s.interval),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce()
		case <-s.stop:
			zap.L().Info("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) runOnce() {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	summary, err := s.service.ReconcileAll(ctx)
	if err != nil {
		zap.L().Error("[Scheduler] reconciliation pass failed", zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] reconciliation pass finished",
		zap.Int("scanned", summary.Scanned),
		zap.Int("updated", summary.Updated),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", time.Since(start)),
	)
}
