package scheduler

import (
	"testing"
	"time"

	"fossawork-backend/models"
)

func at(hour, min int) time.Time {
	return time.Date(2026, 3, 10, hour, min, 0, 0, time.UTC)
}

func TestInActiveHours(t *testing.T) {
	cases := []struct {
		name       string
		hour       int
		start, end int
		want       bool
	}{
		{"unrestricted", 3, 0, 0, true},
		{"inside", 10, 8, 18, true},
		{"at start", 8, 8, 18, true},
		{"at end excluded", 18, 8, 18, false},
		{"before window", 6, 8, 18, false},
		{"wrap inside late", 23, 22, 6, true},
		{"wrap inside early", 3, 22, 6, true},
		{"wrap outside", 12, 22, 6, false},
	}
	for _, tc := range cases {
		got := InActiveHours(at(tc.hour, 0), tc.start, tc.end)
		if got != tc.want {
			t.Errorf("%s: InActiveHours(hour=%d, %d..%d) = %v, want %v",
				tc.name, tc.hour, tc.start, tc.end, got, tc.want)
		}
	}
}

func TestNextWindowOpen(t *testing.T) {
	// Already inside: unchanged.
	now := at(10, 30)
	if got := NextWindowOpen(now, 8, 18); !got.Equal(now) {
		t.Fatalf("inside window: got %v, want %v", got, now)
	}

	// Before today's window: opens at start today.
	got := NextWindowOpen(at(6, 0), 8, 18)
	if got.Hour() != 8 || got.Day() != 10 {
		t.Fatalf("before window: got %v", got)
	}

	// After today's window: opens at start tomorrow.
	got = NextWindowOpen(at(20, 0), 8, 18)
	if got.Hour() != 8 || got.Day() != 11 {
		t.Fatalf("after window: got %v", got)
	}
}

func TestNextRun(t *testing.T) {
	sched := models.ScrapeSchedule{IntervalMinutes: 60, ActiveHoursStart: 8, ActiveHoursEnd: 18}

	// Plain interval inside the window.
	got := NextRun(at(10, 0), sched)
	if !got.Equal(at(11, 0)) {
		t.Fatalf("in-window next run: got %v, want %v", got, at(11, 0))
	}

	// Interval lands past the window close: pushed to tomorrow's open.
	got = NextRun(at(17, 30), sched)
	if got.Hour() != 8 || got.Day() != 11 {
		t.Fatalf("window-close next run: got %v", got)
	}
}

func TestBackoffDelay(t *testing.T) {
	interval := 30 * time.Minute
	cap := 4 * time.Hour

	cases := []struct {
		failures int
		want     time.Duration
	}{
		{0, 30 * time.Minute},
		{1, time.Hour},
		{2, 2 * time.Hour},
		{3, 4 * time.Hour},
		{10, 4 * time.Hour}, // capped
	}
	for _, tc := range cases {
		if got := BackoffDelay(interval, tc.failures, cap); got != tc.want {
			t.Errorf("BackoffDelay(failures=%d) = %v, want %v", tc.failures, got, tc.want)
		}
	}
}

func TestIsDue(t *testing.T) {
	now := at(10, 0)
	past := at(9, 0)
	future := at(11, 0)

	base := models.ScrapeSchedule{Enabled: true, IntervalMinutes: 30}

	disabled := base
	disabled.Enabled = false
	if IsDue(disabled, now) {
		t.Fatal("disabled schedule must never be due")
	}

	outside := base
	outside.ActiveHoursStart, outside.ActiveHoursEnd = 22, 6
	if IsDue(outside, now) {
		t.Fatal("schedule outside its active hours must not be due")
	}

	if !IsDue(base, now) {
		t.Fatal("never-ran schedule should be due immediately")
	}

	pending := base
	pending.NextRunAt = &future
	if IsDue(pending, now) {
		t.Fatal("schedule with future next_run_at must wait")
	}
	pending.NextRunAt = &past
	if !IsDue(pending, now) {
		t.Fatal("schedule with past next_run_at should be due")
	}

	// No next_run_at recorded: fall back to last_run_at + interval.
	ran := base
	ran.LastRunAt = &past
	if !IsDue(ran, now) {
		t.Fatal("interval elapsed since last run, should be due")
	}
	recent := at(9, 45)
	ran.LastRunAt = &recent
	if IsDue(ran, now) {
		t.Fatal("interval not yet elapsed, should not be due")
	}
}
