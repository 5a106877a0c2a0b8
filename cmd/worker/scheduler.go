package main

import (
	"context"
	"time"

	"github.com/jobboard/campaign-portal/internal/services"
	"go.uber.org/zap"
)

type sweeper interface {
	Sweep(ctx context.Context, now time.Time) (services.SweepStats, error)
}

type linkCleaner interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// linkRetention keeps a day of used and expired tokens for support lookups.
const linkRetention = 24 * time.Hour

// scheduler drives the periodic jobs of the worker process.
type scheduler struct {
	reminders        sweeper
	links            linkCleaner
	reminderInterval time.Duration
	cleanupInterval  time.Duration
	now              func() time.Time
	log              *zap.Logger
}

// run sweeps once immediately, so a restart does not delay reminders by a full
// interval, then on each tick until ctx ends. Jobs run inline, so a slow sweep
// delays the next tick rather than overlapping it.
func (s *scheduler) run(ctx context.Context) {
	reminderTicker := time.NewTicker(s.reminderInterval)
	cleanupTicker := time.NewTicker(s.cleanupInterval)
	defer reminderTicker.Stop()
	defer cleanupTicker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-reminderTicker.C:
			s.sweep(ctx)
		case <-cleanupTicker.C:
			s.cleanup(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *scheduler) sweep(ctx context.Context) {
	stats, err := s.reminders.Sweep(ctx, s.now())
	if err != nil {
		s.log.Error("reminder sweep failed", zap.Error(err))
		return
	}
	if stats.Skipped {
		s.log.Info("reminder sweep skipped, another sweep holds the lock")
	}
}

func (s *scheduler) cleanup(ctx context.Context) {
	n, err := s.links.DeleteExpired(ctx, s.now().Add(-linkRetention))
	if err != nil {
		s.log.Error("failed to delete expired magic links", zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("deleted expired magic links", zap.Int64("count", n))
	}
}
