package store

import (
	"context"
	"database/sql"
	"time"

	"fossawork-backend/models"
)

const maxRunListLimit = 200

// InsertRun records the start of a scrape run.
func (s *Store) InsertRun(ctx context.Context, run *models.ScrapeRun) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scrape_runs(user_id, run_id, triggered_by, status, started_at)
		 VALUES(?,?,?,?,?)`,
		run.UserID, run.RunID, run.TriggeredBy, run.Status, timeStr(run.StartedAt),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FinishRun records the outcome of a scrape run.
func (s *Store) FinishRun(ctx context.Context, runID string, status string, stats SaveStats, runErr string, finished time.Time, duration time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scrape_runs SET status = ?, orders_found = ?, orders_new = ?, orders_updated = ?,
		 orders_removed = ?, error = ?, finished_at = ?, duration_ms = ?
		 WHERE run_id = ?`,
		status, stats.Found, stats.New, stats.Updated, stats.Removed,
		nullStr(runErr), timeStr(finished), duration.Milliseconds(), runID,
	)
	return err
}

// ListRuns returns a user's most recent scrape runs. The limit is
// clamped so a caller-supplied value cannot dump the whole table.
func (s *Store) ListRuns(ctx context.Context, userID int64, limit int) ([]models.ScrapeRun, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > maxRunListLimit {
		limit = maxRunListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, run_id, triggered_by, status, orders_found, orders_new,
		 orders_updated, orders_removed, error, started_at, finished_at, duration_ms
		 FROM scrape_runs WHERE user_id = ? ORDER BY started_at DESC, id DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.ScrapeRun
	for rows.Next() {
		var (
			r         models.ScrapeRun
			runErr    sql.NullString
			startedAt string
			finished  sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.RunID, &r.TriggeredBy, &r.Status,
			&r.OrdersFound, &r.OrdersNew, &r.OrdersDirty, &r.OrdersGone,
			&runErr, &startedAt, &finished, &r.DurationMS); err != nil {
			return nil, err
		}
		r.Error = runErr.String
		if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
			r.StartedAt = t
		}
		r.FinishedAt = parseTime(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// PruneRuns keeps only the newest keep rows per user.
func (s *Store) PruneRuns(ctx context.Context, userID int64, keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM scrape_runs WHERE user_id = ? AND id NOT IN (
		   SELECT id FROM scrape_runs WHERE user_id = ? ORDER BY started_at DESC, id DESC LIMIT ?
		 )`, userID, userID, keep)
	return err
}

// PruneAllRuns applies PruneRuns to every user that has history.
func (s *Store) PruneAllRuns(ctx context.Context, keep int) error {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM scrape_runs`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if err := s.PruneRuns(ctx, id, keep); err != nil {
			return err
		}
	}
	return nil
}
