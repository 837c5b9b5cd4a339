package match

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

var errReaperMissingStore = errors.New("match: reaper requires a store")

// ReaperConfig describes the dependencies of the background sweep.
type ReaperConfig struct {
	Store     Store
	Presence  PresenceOracle
	Staleness Staleness
	Interval  time.Duration
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Reaper periodically deletes abandoned waiting matches so quizzes nobody is
// currently scanning for do not accumulate dead entries. It applies the same
// staleness predicate as the allocator's inline pruning and never touches
// in-progress or completed matches.
type Reaper struct {
	store     Store
	presence  PresenceOracle
	stale     Staleness
	interval  time.Duration
	clock     func() time.Time
	logger    *zap.Logger
	scheduler gocron.Scheduler
}

// NewReaper constructs the reaper without starting it.
func NewReaper(cfg ReaperConfig) (*Reaper, error) {
	if cfg.Store == nil {
		return nil, errReaperMissingStore
	}
	if cfg.Presence == nil {
		return nil, errMissingPresence
	}
	stale := cfg.Staleness
	if stale.Window <= 0 {
		stale.Window = 5 * time.Minute
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Reaper{
		store:    cfg.Store,
		presence: cfg.Presence,
		stale:    stale,
		interval: interval,
		clock:    clock,
		logger:   logger,
	}, nil
}

// Start schedules the periodic sweep on its own goroutine pool.
func (r *Reaper) Start() error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(func() {
			if _, err := r.RunOnce(context.Background()); err != nil {
				r.logger.Error("stale match sweep failed", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return err
	}
	scheduler.Start()
	r.scheduler = scheduler
	r.logger.Info("stale match reaper started", zap.Duration("interval", r.interval))
	return nil
}

// Stop shuts the scheduler down and waits for a running sweep to finish.
func (r *Reaper) Stop() error {
	if r.scheduler == nil {
		return nil
	}
	return r.scheduler.Shutdown()
}

// RunOnce performs a single sweep and reports how many matches were deleted.
// Waiting matches are removed when aged past the window or when their sole
// occupant has gone idle; a missing presence record counts as idle.
func (r *Reaper) RunOnce(ctx context.Context) (int64, error) {
	now := r.clock().UTC()

	deleted, err := r.store.DeleteWaitingOlderThan(ctx, r.stale.Cutoff(now))
	if err != nil {
		return 0, err
	}

	waiting, err := r.store.ListWaiting(ctx)
	if err != nil {
		return deleted, err
	}
	for _, m := range waiting {
		lastActivity, found, err := r.presence.LastActivity(ctx, m.Player1ID)
		if err != nil {
			return deleted, err
		}
		if !r.stale.IdleOwner(lastActivity, found, now) {
			continue
		}
		if err := r.store.Delete(ctx, MatchID(m.ID)); err != nil {
			return deleted, err
		}
		deleted++
	}

	if deleted > 0 {
		counts, err := r.store.CountByStatus(ctx)
		if err != nil {
			r.logger.Warn("match status summary failed", zap.Error(err))
		} else {
			r.logger.Info("stale matches deleted",
				zap.Int64("deleted", deleted),
				zap.Int64("waiting", counts[StatusWaiting]),
				zap.Int64("in_progress", counts[StatusInProgress]),
				zap.Int64("completed", counts[StatusCompleted]))
		}
	}
	return deleted, nil
}
