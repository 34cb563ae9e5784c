package models

import "time"

// ScrapeSchedule is the per-user recurring scrape configuration. The
// scheduler loop reads these rows every tick and triggers the users
// whose NextRunAt has passed.
type ScrapeSchedule struct {
	ID      int64 `json:"id"`
	UserID  int64 `json:"user_id"`
	Enabled bool  `json:"enabled"`

	// Minutes between scrapes.
	IntervalMinutes int `json:"interval_minutes"`

	// Hour-of-day window (0-23) in which scrapes may run. Start == End
	// means no restriction. Start > End is a wrap-around window, e.g.
	// 22..6 runs overnight.
	ActiveHoursStart int `json:"active_hours_start"`
	ActiveHoursEnd   int `json:"active_hours_end"`

	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastRunAt           *time.Time `json:"last_run_at,omitempty"`
	NextRunAt           *time.Time `json:"next_run_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type UpdateScheduleRequest struct {
	Enabled          *bool `json:"enabled,omitempty"`
	IntervalMinutes  *int  `json:"interval_minutes,omitempty" binding:"omitempty,min=15,max=10080"`
	ActiveHoursStart *int  `json:"active_hours_start,omitempty" binding:"omitempty,min=0,max=23"`
	ActiveHoursEnd   *int  `json:"active_hours_end,omitempty" binding:"omitempty,min=0,max=23"`
}
