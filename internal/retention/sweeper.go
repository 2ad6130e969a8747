// Package retention prunes old outcomes from the result store on a schedule.
// In-memory job records are never touched.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// DefaultInterval is the sweep interval used when none is configured.
const DefaultInterval = time.Hour

const sweepTimeout = time.Minute

// Pruner deletes outcomes finished before a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int, error)
}

// Sweeper periodically prunes outcomes older than the retention window.
type Sweeper struct {
	pruner    Pruner
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	scheduler *gocron.Scheduler
}

// NewSweeper creates a sweeper keeping outcomes for retention. A zero
// interval selects DefaultInterval.
func NewSweeper(p Pruner, retention, interval time.Duration, logger *slog.Logger) (*Sweeper, error) {
	if retention <= 0 {
		return nil, errors.New("retention must be positive")
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		pruner:    p,
		retention: retention,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Start schedules the sweep. The first run happens immediately.
func (s *Sweeper) Start() error {
	sched := gocron.NewScheduler(time.UTC)
	if _, err := sched.Every(s.interval).Do(s.sweepOnce); err != nil {
		return fmt.Errorf("schedule retention sweep: %w", err)
	}
	sched.StartAsync()
	s.scheduler = sched
	s.logger.Info("retention sweeper started", "retention", s.retention.String(), "interval", s.interval.String())
	return nil
}

// Stop halts the scheduler. It does not wait for a running sweep.
func (s *Sweeper) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
		s.scheduler = nil
	}
}

func (s *Sweeper) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("retention sweep failed", "error", err)
	}
}

// Sweep prunes every outcome finished before now minus the retention window.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.retention)
	removed, err := s.pruner.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if removed > 0 {
		s.logger.Info("pruned outcomes", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}
