package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper is implemented by backends that can leave orphaned partial
// uploads behind.
type Sweeper interface {
	SweepStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// CleanupService periodically removes partial uploads abandoned by
// interrupted requests or crashes.
type CleanupService struct {
	sweeper  Sweeper
	schedule string
	maxAge   time.Duration
	cron     *cron.Cron
}

// NewCleanupService creates a new cleanup service. schedule uses cron
// syntax, including descriptors such as "@every 1h".
func NewCleanupService(sweeper Sweeper, schedule string, maxAge time.Duration) *CleanupService {
	return &CleanupService{
		sweeper:  sweeper,
		schedule: schedule,
		maxAge:   maxAge,
		cron:     cron.New(),
	}
}

// Start runs one sweep immediately and then schedules the rest.
func (cs *CleanupService) Start(ctx context.Context) error {
	if _, err := cs.cron.AddFunc(cs.schedule, func() { cs.runCleanup(ctx) }); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", cs.schedule, err)
	}

	slog.Info("cleanup service started", "schedule", cs.schedule, "max_age", cs.maxAge)

	cs.runCleanup(ctx)
	cs.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (cs *CleanupService) Stop() {
	<-cs.cron.Stop().Done()
	slog.Info("cleanup service stopped")
}

func (cs *CleanupService) runCleanup(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	removed, err := cs.sweeper.SweepStale(ctx, cs.maxAge)
	if err != nil {
		slog.Error("cleanup cycle failed", "error", err, "removed", removed)
		return
	}

	if removed > 0 {
		slog.Info("cleanup cycle complete", "removed", removed)
	}
}
