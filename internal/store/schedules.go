package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fossawork-backend/models"
)

const scheduleCols = `id, user_id, enabled, interval_minutes, active_hours_start, active_hours_end,
	consecutive_failures, last_run_at, next_run_at, created_at, updated_at`

// EnsureSchedule creates a disabled-by-default schedule row for the
// user if none exists yet, then returns the current row.
func (s *Store) EnsureSchedule(ctx context.Context, userID int64, defaultIntervalMinutes int) (*models.ScrapeSchedule, error) {
	now := timeStr(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules(user_id, enabled, interval_minutes, created_at, updated_at)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(user_id) DO NOTHING`,
		userID, 0, defaultIntervalMinutes, now, now,
	)
	if err != nil {
		return nil, err
	}
	return s.GetSchedule(ctx, userID)
}

func (s *Store) GetSchedule(ctx context.Context, userID int64) (*models.ScrapeSchedule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scheduleCols+` FROM schedules WHERE user_id = ?`, userID)
	sched, err := scanSchedule(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sched, err
}

// ListEnabledSchedules returns every enabled schedule. The scheduler
// loop calls this once per tick and applies due/gating logic in memory.
func (s *Store) ListEnabledSchedules(ctx context.Context) ([]models.ScrapeSchedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleCols+` FROM schedules WHERE enabled = 1 ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScrapeSchedule
	for rows.Next() {
		sched, err := scanSchedule(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *sched)
	}
	return out, rows.Err()
}

// UpdateSchedule applies a partial update from the API.
func (s *Store) UpdateSchedule(ctx context.Context, userID int64, req models.UpdateScheduleRequest) (*models.ScrapeSchedule, error) {
	cur, err := s.GetSchedule(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.Enabled != nil {
		cur.Enabled = *req.Enabled
		// Re-enabling clears the failure streak so the next attempt is
		// not held back by stale backoff.
		if cur.Enabled {
			cur.ConsecutiveFailures = 0
		}
	}
	if req.IntervalMinutes != nil {
		cur.IntervalMinutes = *req.IntervalMinutes
	}
	if req.ActiveHoursStart != nil {
		cur.ActiveHoursStart = *req.ActiveHoursStart
	}
	if req.ActiveHoursEnd != nil {
		cur.ActiveHoursEnd = *req.ActiveHoursEnd
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE schedules SET enabled = ?, interval_minutes = ?, active_hours_start = ?,
		 active_hours_end = ?, consecutive_failures = ?, next_run_at = NULL, updated_at = ?
		 WHERE user_id = ?`,
		boolInt(cur.Enabled), cur.IntervalMinutes, cur.ActiveHoursStart, cur.ActiveHoursEnd,
		cur.ConsecutiveFailures, timeStr(time.Now()), userID,
	)
	if err != nil {
		return nil, err
	}
	return s.GetSchedule(ctx, userID)
}

// MarkDispatched pushes next_run_at forward when a scrape is handed to
// the runner, so subsequent scheduler ticks do not re-dispatch the same
// user while the job sits in the queue. The executor overwrites this
// tentative value with the real one when the run finishes.
func (s *Store) MarkDispatched(ctx context.Context, userID int64, next time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET next_run_at = ?, updated_at = ? WHERE user_id = ?`,
		timeStr(next), timeStr(time.Now()), userID,
	)
	return err
}

// MarkRunStarted records that a scrape was triggered now.
func (s *Store) MarkRunStarted(ctx context.Context, userID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET last_run_at = ?, updated_at = ? WHERE user_id = ?`,
		timeStr(at), timeStr(time.Now()), userID,
	)
	return err
}

// RecordRunOutcome persists the failure streak and the computed next
// due time after a run finishes. enabled=false auto-pauses the
// schedule once the failure cap is reached.
func (s *Store) RecordRunOutcome(ctx context.Context, userID int64, failures int, nextRun *time.Time, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET consecutive_failures = ?, next_run_at = ?, enabled = ?, updated_at = ?
		 WHERE user_id = ?`,
		failures, timePtrStr(nextRun), boolInt(enabled), timeStr(time.Now()), userID,
	)
	return err
}

func scanSchedule(scan func(dest ...any) error) (*models.ScrapeSchedule, error) {
	var (
		sched     models.ScrapeSchedule
		enabled   int
		lastRun   sql.NullString
		nextRun   sql.NullString
		createdAt string
		updatedAt string
	)
	err := scan(&sched.ID, &sched.UserID, &enabled, &sched.IntervalMinutes,
		&sched.ActiveHoursStart, &sched.ActiveHoursEnd, &sched.ConsecutiveFailures,
		&lastRun, &nextRun, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	sched.Enabled = enabled != 0
	sched.LastRunAt = parseTime(lastRun)
	sched.NextRunAt = parseTime(nextRun)
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		sched.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		sched.UpdatedAt = t
	}
	return &sched, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
