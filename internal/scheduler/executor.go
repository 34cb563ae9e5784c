package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fossawork-backend/internal/auth"
	"fossawork-backend/internal/config"
	"fossawork-backend/internal/logger"
	"fossawork-backend/internal/scraper"
	"fossawork-backend/internal/store"
	"fossawork-backend/models"
)

// Executor performs one complete scrape run for a user: credential
// unsealing, portal scrape, idempotent persistence, run history and
// schedule bookkeeping. It is called by the inline runner and by the
// asynq worker.
type Executor struct {
	cfg      *config.Config
	store    *store.Store
	scraper  *scraper.Scraper
	sealer   *auth.Sealer
	progress *Tracker
}

func NewExecutor(cfg *config.Config, st *store.Store, sc *scraper.Scraper, sealer *auth.Sealer, progress *Tracker) *Executor {
	return &Executor{
		cfg:      cfg,
		store:    st,
		scraper:  sc,
		sealer:   sealer,
		progress: progress,
	}
}

// Run executes a scrape for the user. Returns nil when another run is
// already in flight (the trigger is simply skipped).
func (e *Executor) Run(ctx context.Context, userID int64, trigger string) error {
	runID := uuid.NewString()
	if !e.progress.TryStart(userID, runID) {
		logger.Debug("scrape already in flight, skipping", "user_id", userID)
		return nil
	}

	started := time.Now()
	run := &models.ScrapeRun{
		UserID:      userID,
		RunID:       runID,
		TriggeredBy: trigger,
		Status:      models.RunStatusRunning,
		StartedAt:   started,
	}
	if _, err := e.store.InsertRun(ctx, run); err != nil {
		e.progress.Finish(userID, PhaseDoneFail, "failed to record run")
		return fmt.Errorf("insert run: %w", err)
	}
	if err := e.store.MarkRunStarted(ctx, userID, started); err != nil {
		logger.Warn("failed to stamp last run", "user_id", userID, "error", err.Error())
	}

	logger.Info("scrape run started", "user_id", userID, "run_id", runID, "trigger", trigger)

	creds, err := e.loadCredentials(ctx, userID)
	if err != nil {
		return e.finishFailure(ctx, userID, runID, started, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.ScrapeTimeout)
	defer cancel()

	orders, err := e.scraper.ScrapeUser(runCtx, creds, func(phase string, percent int, message string) {
		e.progress.Update(userID, phase, percent, message)
	})
	if err != nil {
		return e.finishFailure(ctx, userID, runID, started, err)
	}

	e.progress.Update(userID, scraper.PhaseSaving, 92, "saving work orders")
	stats, err := e.store.SaveScrapeResult(ctx, userID, orders)
	if err != nil {
		return e.finishFailure(ctx, userID, runID, started, fmt.Errorf("persist scrape result: %w", err))
	}

	finished := time.Now()
	if err := e.store.FinishRun(ctx, runID, models.RunStatusCompleted, stats, "", finished, finished.Sub(started)); err != nil {
		logger.Warn("failed to finalize run row", "run_id", runID, "error", err.Error())
	}
	e.recordSuccess(ctx, userID, finished)

	msg := fmt.Sprintf("%d orders (%d new, %d updated, %d removed)",
		stats.Found, stats.New, stats.Updated, stats.Removed)
	e.progress.Finish(userID, PhaseDoneOK, msg)
	logger.Info("scrape run completed", "user_id", userID, "run_id", runID,
		"found", stats.Found, "new", stats.New, "updated", stats.Updated,
		"removed", stats.Removed, "duration_ms", finished.Sub(started).Milliseconds())
	return nil
}

func (e *Executor) loadCredentials(ctx context.Context, userID int64) (scraper.Credentials, error) {
	portalUser, sealed, err := e.store.GetPortalCredentials(ctx, userID)
	if err != nil {
		return scraper.Credentials{}, fmt.Errorf("load portal credentials: %w", err)
	}
	if portalUser == "" || len(sealed) == 0 {
		return scraper.Credentials{}, scraper.ErrBadCredentials
	}
	password, err := e.sealer.Open(sealed)
	if err != nil {
		return scraper.Credentials{}, fmt.Errorf("unseal portal credentials: %w", err)
	}
	return scraper.Credentials{Username: portalUser, Password: password}, nil
}

func (e *Executor) recordSuccess(ctx context.Context, userID int64, at time.Time) {
	sched, err := e.store.GetSchedule(ctx, userID)
	if err != nil {
		// Manual runs for users without a schedule are fine.
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn("failed to load schedule after run", "user_id", userID, "error", err.Error())
		}
		return
	}
	next := NextRun(at, *sched)
	if err := e.store.RecordRunOutcome(ctx, userID, 0, &next, sched.Enabled); err != nil {
		logger.Warn("failed to record run outcome", "user_id", userID, "error", err.Error())
	}
}

func (e *Executor) finishFailure(ctx context.Context, userID int64, runID string, started time.Time, cause error) error {
	finished := time.Now()
	errText := cause.Error()

	sched, schedErr := e.store.GetSchedule(ctx, userID)
	if schedErr != nil && !errors.Is(schedErr, store.ErrNotFound) {
		logger.Warn("failed to load schedule after failure", "user_id", userID, "error", schedErr.Error())
	}

	failures := 0
	enabled := false
	paused := false
	var next *time.Time

	if sched != nil {
		failures = sched.ConsecutiveFailures + 1
		enabled = sched.Enabled

		switch {
		case errors.Is(cause, scraper.ErrBadCredentials):
			// No amount of retrying fixes a rejected password; pause until
			// the user updates their credentials.
			enabled = false
		case failures >= e.cfg.MaxConsecutiveFailures:
			enabled = false
		default:
			interval := time.Duration(sched.IntervalMinutes) * time.Minute
			delay := BackoffDelay(interval, failures, e.cfg.BackoffCap)
			n := NextWindowOpen(finished.Add(delay), sched.ActiveHoursStart, sched.ActiveHoursEnd)
			next = &n
		}

		// The run row keeps a record of why scraping stopped.
		paused = !enabled && sched.Enabled
		if paused {
			errText += " (schedule auto-paused)"
		}
	}

	if err := e.store.FinishRun(ctx, runID, models.RunStatusFailed, store.SaveStats{}, errText, finished, finished.Sub(started)); err != nil {
		logger.Warn("failed to finalize run row", "run_id", runID, "error", err.Error())
	}
	e.progress.Finish(userID, PhaseDoneFail, errText)

	if sched != nil {
		if err := e.store.RecordRunOutcome(ctx, userID, failures, next, enabled); err != nil {
			logger.Warn("failed to record run outcome", "user_id", userID, "error", err.Error())
		}
		if paused {
			logger.Warn("schedule auto-paused", "user_id", userID, "failures", failures,
				"bad_credentials", errors.Is(cause, scraper.ErrBadCredentials))
		}
	}

	logger.Error("scrape run failed", "user_id", userID, "run_id", runID,
		"failures", failures, "error", cause.Error())
	return cause
}
