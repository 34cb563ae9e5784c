package scheduler

import (
	"time"

	"fossawork-backend/models"
)

// Due-time arithmetic for per-user scrape schedules. All decisions are
// made against wall-clock hours in the server's local time.

// InActiveHours reports whether t falls inside the schedule's
// active-hours window. start == end means no restriction; start > end
// is a wrap-around window (e.g. 22..6 runs overnight).
func InActiveHours(t time.Time, start, end int) bool {
	if start == end {
		return true
	}
	h := t.Hour()
	if start < end {
		return h >= start && h < end
	}
	return h >= start || h < end
}

// NextWindowOpen returns t unchanged when it is already inside the
// window, otherwise the next moment the window opens.
func NextWindowOpen(t time.Time, start, end int) time.Time {
	if InActiveHours(t, start, end) {
		return t
	}
	open := time.Date(t.Year(), t.Month(), t.Day(), start, 0, 0, 0, t.Location())
	if !open.After(t) {
		open = open.AddDate(0, 0, 1)
	}
	return open
}

// NextRun computes when the schedule is next due after a run at
// lastRun, shifting the result into the active-hours window.
func NextRun(lastRun time.Time, sched models.ScrapeSchedule) time.Time {
	interval := time.Duration(sched.IntervalMinutes) * time.Minute
	return NextWindowOpen(lastRun.Add(interval), sched.ActiveHoursStart, sched.ActiveHoursEnd)
}

// BackoffDelay returns the delay before the next attempt after the
// given number of consecutive failures: interval doubled per failure,
// capped.
func BackoffDelay(interval time.Duration, failures int, cap time.Duration) time.Duration {
	if failures <= 0 {
		return interval
	}
	d := interval
	for i := 0; i < failures; i++ {
		d *= 2
		if cap > 0 && d >= cap {
			return cap
		}
	}
	return d
}

// IsDue reports whether the schedule should trigger at now. A schedule
// with no recorded next-run time is due on its first opportunity inside
// the window.
func IsDue(sched models.ScrapeSchedule, now time.Time) bool {
	if !sched.Enabled {
		return false
	}
	if !InActiveHours(now, sched.ActiveHoursStart, sched.ActiveHoursEnd) {
		return false
	}
	if sched.NextRunAt != nil {
		return !now.Before(*sched.NextRunAt)
	}
	if sched.LastRunAt == nil {
		// Never ran and nothing pending: due now.
		return true
	}
	interval := time.Duration(sched.IntervalMinutes) * time.Minute
	return !now.Before(sched.LastRunAt.Add(interval))
}
