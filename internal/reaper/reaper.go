// Package reaper periodically fails assessments whose progress stopped updating.
package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jonathan/credibility-assessor/internal/observability"
)

const (
	// DefaultSchedule runs the sweep at the top of every minute.
	DefaultSchedule = "0 * * * * *"
	// DefaultStaleAfter is how long a processing assessment may go without an update.
	DefaultStaleAfter = 30 * time.Minute
)

// StaleFailer is the part of the assessment store the reaper needs.
type StaleFailer interface {
	FailStale(ctx context.Context, cutoff time.Time, message string) (int, error)
}

// Reaper marks abandoned processing assessments as failed on a cron schedule.
type Reaper struct {
	store      StaleFailer
	staleAfter time.Duration
	schedule   string
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a reaper. A zero staleAfter uses DefaultStaleAfter and an empty schedule
// uses DefaultSchedule (cron with seconds).
func New(store StaleFailer, staleAfter time.Duration, schedule string, logger *zap.Logger, metrics *observability.Metrics) *Reaper {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Reaper{
		store:      store,
		staleAfter: staleAfter,
		schedule:   schedule,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
		cron:       cron.New(cron.WithSeconds()),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start registers the sweep and starts the scheduler.
func (r *Reaper) Start() error {
	if _, err := r.cron.AddFunc(r.schedule, func() {
		if _, err := r.Sweep(r.ctx); err != nil {
			r.logger.Error("stale assessment sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid reaper schedule %q: %w", r.schedule, err)
	}
	r.cron.Start()
	r.logger.Info("stale assessment reaper started",
		zap.String("schedule", r.schedule),
		zap.Duration("stale_after", r.staleAfter))
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (r *Reaper) Stop() {
	r.cancel()
	<-r.cron.Stop().Done()
}

// Sweep fails every processing assessment not updated within the staleness window.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.staleAfter)
	message := fmt.Sprintf("no progress for %s; marked failed by reaper", r.staleAfter)
	n, err := r.store.FailStale(ctx, cutoff, message)
	if err != nil {
		return 0, fmt.Errorf("failed to reap stale assessments: %w", err)
	}
	if n > 0 {
		r.logger.Warn("reaped stale assessments", zap.Int("count", n), zap.Time("cutoff", cutoff))
	}
	r.metrics.AddReaped(n)
	return n, nil
}
