package models

import "time"

// WorkOrder is a persisted work order scraped from the portal. Rows are
// keyed by (user_id, external_id) and upserted on every scrape.
type WorkOrder struct {
	ID         int64  `json:"id"`
	UserID     int64  `json:"user_id"`
	ExternalID string `json:"external_id"`

	StoreNumber  string     `json:"store_number,omitempty"`
	CustomerName string     `json:"customer_name,omitempty"`
	Address      string     `json:"address,omitempty"`
	ServiceCode  string     `json:"service_code,omitempty"`
	ServiceDesc  string     `json:"service_description,omitempty"`
	Status       string     `json:"status,omitempty"`
	VisitDate    *time.Time `json:"visit_date,omitempty"`

	Dispensers []Dispenser `json:"dispensers,omitempty"`

	FirstSeenAt time.Time `json:"first_seen_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Dispenser is a fuel dispenser attached to a work order.
type Dispenser struct {
	ID          int64  `json:"id"`
	WorkOrderID int64  `json:"work_order_id"`
	Serial      string `json:"serial,omitempty"`
	MakeModel   string `json:"make_model,omitempty"`
	// Fueling point label, e.g. "1/2"
	Position string `json:"position,omitempty"`
	Title    string `json:"title,omitempty"`
}

// ScrapedWorkOrder is the raw extraction output before persistence.
type ScrapedWorkOrder struct {
	ExternalID string
	// Relative link to the detail page, used during the scrape only.
	DetailPath   string
	StoreNumber  string
	CustomerName string
	Address      string
	ServiceCode  string
	ServiceDesc  string
	Status       string
	VisitDate    *time.Time
	Dispensers   []ScrapedDispenser
}

type ScrapedDispenser struct {
	Serial    string
	MakeModel string
	Position  string
	Title     string
}

// ScrapeRun is one row of per-user scrape history.
type ScrapeRun struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	RunID       string     `json:"run_id"`
	TriggeredBy string     `json:"triggered_by"` // schedule, manual
	Status      string     `json:"status"`
	OrdersFound int        `json:"orders_found"`
	OrdersNew   int        `json:"orders_new"`
	OrdersDirty int        `json:"orders_updated"`
	OrdersGone  int        `json:"orders_removed"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	DurationMS  int64      `json:"duration_ms"`
}

// ScrapeRun status constants
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Trigger source constants
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)
