package worker

import (
	"context"
	"time"

	"prolist/internal/service"
	"prolist/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const sweepLockKey = "sweeper"

// SweepLocker elects a sweep leader across replicas. Optional: a nil locker
// means every replica sweeps, which is safe (the transitions are idempotent)
// but wasteful.
type SweepLocker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// Sweeper drives the two timeout-triggered transitions on a fixed cadence:
// auto-release of confirmed escrow and the close of due auctions. Both are
// guarded by terminal-state CAS in the engines, so overlapping or redundant
// runs never double-fire.
type Sweeper struct {
	orders   *service.OrderService
	auctions *service.AuctionService
	locker   SweepLocker
	interval time.Duration
	logger   *zap.Logger
	done     chan struct{}
}

// NewSweeper creates a new background sweeper.
func NewSweeper(orders *service.OrderService, auctions *service.AuctionService, locker SweepLocker, interval time.Duration) *Sweeper {
	return &Sweeper{
		orders:   orders,
		auctions: auctions,
		locker:   locker,
		interval: interval,
		logger:   util.GetLogger(),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.Info("Starting sweeper", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx, time.Now())
		}
	}
}

// Done is closed once the sweep loop has exited.
func (s *Sweeper) Done() <-chan struct{} {
	return s.done
}

// RunOnce executes one sweep pass. Exported so deployments can also trigger
// it from a cron entrypoint.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) {
	if s.locker != nil {
		ok, err := s.locker.AcquireLock(ctx, sweepLockKey, s.interval)
		if err != nil {
			s.logger.Warn("Sweep lock unavailable, sweeping anyway", zap.Error(err))
		} else if !ok {
			return // another replica holds the lease
		} else {
			defer func() {
				if err := s.locker.ReleaseLock(ctx, sweepLockKey); err != nil {
					s.logger.Warn("Failed to release sweep lock", zap.Error(err))
				}
			}()
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		util.SweepRunsTotal.WithLabelValues("auto_release").Inc()
		released, err := s.orders.AutoReleaseSweep(gctx, now)
		if err != nil {
			s.logger.Error("Auto-release sweep failed", zap.Error(err))
			return err
		}
		if released > 0 {
			s.logger.Info("Auto-released orders", zap.Int("count", released))
		}
		return nil
	})

	g.Go(func() error {
		util.SweepRunsTotal.WithLabelValues("auction_close").Inc()
		closed, err := s.auctions.CloseDueAuctions(gctx, now)
		if err != nil {
			s.logger.Error("Auction close sweep failed", zap.Error(err))
			return err
		}
		if closed > 0 {
			s.logger.Info("Closed due auctions", zap.Int("count", closed))
		}
		return nil
	})

	_ = g.Wait() // failures are logged per task; the loop keeps running
}
