package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"fossawork-backend/internal/config"
	"fossawork-backend/internal/logger"
	"fossawork-backend/internal/store"
	"fossawork-backend/models"
)

// Runner dispatches a triggered scrape. The inline runner executes in
// process; the queue runner hands the job to asynq.
type Runner interface {
	Dispatch(ctx context.Context, userID int64, trigger string) error
}

// InlineRunner executes scrapes in-process. Used when no Redis broker
// is configured.
type InlineRunner struct {
	exec *Executor
}

func NewInlineRunner(exec *Executor) *InlineRunner {
	return &InlineRunner{exec: exec}
}

func (r *InlineRunner) Dispatch(_ context.Context, userID int64, trigger string) error {
	go func() {
		_ = r.exec.Run(context.Background(), userID, trigger)
	}()
	return nil
}

// Service is the recurring scraping scheduler: a single gocron-driven
// loop that checks which users are due each tick, plus maintenance
// jobs for progress cleanup and run-history pruning.
type Service struct {
	cfg      *config.Config
	store    *store.Store
	runner   Runner
	progress *Tracker

	scheduler *gocron.Scheduler
	cancel    context.CancelFunc
	ctx       context.Context
}

func NewService(cfg *config.Config, st *store.Store, runner Runner, progress *Tracker) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := gocron.NewScheduler(time.Local)
	s.TagsUnique()

	return &Service{
		cfg:       cfg,
		store:     st,
		runner:    runner,
		progress:  progress,
		scheduler: s,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start registers the loop jobs and starts the scheduler.
func (s *Service) Start() error {
	tick := s.cfg.SchedulerTick
	if tick <= 0 {
		tick = time.Minute
	}

	if _, err := s.scheduler.Every(tick).Tag("due-check").Do(s.tick); err != nil {
		return err
	}
	if _, err := s.scheduler.Every(time.Minute).Tag("progress-sweep").Do(func() {
		if n := s.progress.Sweep(time.Now()); n > 0 {
			logger.Debug("progress entries swept", "count", n)
		}
	}); err != nil {
		return err
	}
	if _, err := s.scheduler.Every(1).Day().At("03:30").Tag("prune-history").Do(s.pruneHistory); err != nil {
		return err
	}

	s.scheduler.StartAsync()
	logger.Info("scrape scheduler started", "tick", tick.String())
	return nil
}

// Stop stops the scheduler loop. In-flight scrapes finish on their own.
func (s *Service) Stop() {
	s.scheduler.Stop()
	if s.cancel != nil {
		s.cancel()
	}
	logger.Info("scrape scheduler stopped")
}

// tick runs once per scheduler tick: load enabled schedules and
// dispatch every user whose job is due.
func (s *Service) tick() {
	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	schedules, err := s.store.ListEnabledSchedules(ctx)
	if err != nil {
		logger.Error("scheduler tick: failed to list schedules", "error", err.Error())
		return
	}

	now := time.Now()
	for _, sched := range schedules {
		if !IsDue(sched, now) {
			continue
		}
		if err := s.runner.Dispatch(ctx, sched.UserID, models.TriggerSchedule); err != nil {
			logger.Error("failed to dispatch scrape", "user_id", sched.UserID, "error", err.Error())
			continue
		}
		// Stamp a tentative next run so the user is not re-dispatched on
		// every tick while the job waits in the queue.
		next := now.Add(time.Duration(sched.IntervalMinutes) * time.Minute)
		if err := s.store.MarkDispatched(ctx, sched.UserID, next); err != nil {
			logger.Warn("failed to stamp dispatch", "user_id", sched.UserID, "error", err.Error())
		}
		logger.Info("scrape dispatched", "user_id", sched.UserID,
			"failures", sched.ConsecutiveFailures)
	}
}

func (s *Service) pruneHistory() {
	ctx, cancel := context.WithTimeout(s.ctx, time.Minute)
	defer cancel()

	if err := s.store.PruneAllRuns(ctx, s.cfg.RunHistoryKeep); err != nil {
		logger.Warn("run history pruning failed", "error", err.Error())
	}
}
