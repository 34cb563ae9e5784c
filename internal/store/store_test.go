package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"fossawork-backend/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestUser(t *testing.T, s *Store) int64 {
	t.Helper()
	id, err := s.CreateUser(context.Background(), &models.User{
		Username:     "tech1",
		Name:         "Test Tech",
		PasswordHash: "x",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return id
}

func TestUserRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := newTestUser(t, s)

	u, err := s.GetUserByUsername(ctx, "tech1")
	if err != nil {
		t.Fatalf("get by username: %v", err)
	}
	if u.ID != id || u.Name != "Test Tech" {
		t.Fatalf("unexpected user: %+v", u)
	}

	if _, err := s.GetUserByUsername(ctx, "nobody"); err != ErrNotFound {
		t.Fatalf("missing user: got %v, want ErrNotFound", err)
	}
}

func TestPortalCredentials(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := newTestUser(t, s)

	sealed := []byte{0x01, 0x02, 0x03}
	if err := s.SetPortalCredentials(ctx, id, "portal-user", sealed); err != nil {
		t.Fatalf("set credentials: %v", err)
	}

	user, blob, err := s.GetPortalCredentials(ctx, id)
	if err != nil {
		t.Fatalf("get credentials: %v", err)
	}
	if user != "portal-user" || len(blob) != 3 {
		t.Fatalf("got %q / %d bytes", user, len(blob))
	}
}

func TestEnsureScheduleIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := newTestUser(t, s)

	first, err := s.EnsureSchedule(ctx, id, 60)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if first.Enabled {
		t.Fatal("new schedule must start disabled")
	}
	if first.IntervalMinutes != 60 {
		t.Fatalf("interval: got %d", first.IntervalMinutes)
	}

	// Second ensure does not reset anything.
	enabled := true
	interval := 120
	if _, err := s.UpdateSchedule(ctx, id, models.UpdateScheduleRequest{
		Enabled: &enabled, IntervalMinutes: &interval,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	again, err := s.EnsureSchedule(ctx, id, 60)
	if err != nil {
		t.Fatalf("re-ensure: %v", err)
	}
	if !again.Enabled || again.IntervalMinutes != 120 {
		t.Fatalf("re-ensure clobbered the schedule: %+v", again)
	}
}

func TestUpdateScheduleReenableClearsFailures(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := newTestUser(t, s)

	if _, err := s.EnsureSchedule(ctx, id, 60); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	// Simulate a failing streak that auto-paused the schedule.
	if err := s.RecordRunOutcome(ctx, id, 5, nil, false); err != nil {
		t.Fatalf("record outcome: %v", err)
	}

	enabled := true
	sched, err := s.UpdateSchedule(ctx, id, models.UpdateScheduleRequest{Enabled: &enabled})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !sched.Enabled {
		t.Fatal("schedule should be enabled")
	}
	if sched.ConsecutiveFailures != 0 {
		t.Fatalf("re-enabling must clear the failure streak, got %d", sched.ConsecutiveFailures)
	}
	if sched.NextRunAt != nil {
		t.Fatal("update must clear next_run_at so the next tick recomputes it")
	}
}

func TestListEnabledSchedules(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		uid, err := s.CreateUser(ctx, &models.User{Username: fmt.Sprintf("u%d", i), PasswordHash: "x"})
		if err != nil {
			t.Fatalf("create user: %v", err)
		}
		if _, err := s.EnsureSchedule(ctx, uid, 60); err != nil {
			t.Fatalf("ensure: %v", err)
		}
		if i < 2 {
			enabled := true
			if _, err := s.UpdateSchedule(ctx, uid, models.UpdateScheduleRequest{Enabled: &enabled}); err != nil {
				t.Fatalf("update: %v", err)
			}
		}
	}

	schedules, err := s.ListEnabledSchedules(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(schedules) != 2 {
		t.Fatalf("got %d enabled schedules, want 2", len(schedules))
	}
}

func scrapedOrder(id string) models.ScrapedWorkOrder {
	return models.ScrapedWorkOrder{
		ExternalID:   id,
		StoreNumber:  "4521",
		CustomerName: "Circle K #4521",
		Address:      "1200 Main St",
		ServiceCode:  "2861",
		ServiceDesc:  "Meter Calibration",
		Status:       "Scheduled",
		Dispensers: []models.ScrapedDispenser{
			{Serial: "AB123", MakeModel: "Gilbarco Encore 700", Position: "1/2", Title: "Dispenser 1/2"},
		},
	}
}

func TestSaveScrapeResultIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	uid := newTestUser(t, s)

	orders := []models.ScrapedWorkOrder{scrapedOrder("1001"), scrapedOrder("1002")}

	stats, err := s.SaveScrapeResult(ctx, uid, orders)
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	if stats.New != 2 || stats.Updated != 0 || stats.Removed != 0 {
		t.Fatalf("first save stats: %+v", stats)
	}

	// Identical input: everything unchanged.
	stats, err = s.SaveScrapeResult(ctx, uid, orders)
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if stats.Unchanged != 2 || stats.New != 0 || stats.Updated != 0 {
		t.Fatalf("second save stats: %+v", stats)
	}

	got, err := s.ListWorkOrders(ctx, uid)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d orders, want 2", len(got))
	}
	if len(got[0].Dispensers) != 1 {
		t.Fatalf("dispensers not attached: %+v", got[0])
	}
}

func TestSaveScrapeResultUpdatePreservesFirstSeen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	uid := newTestUser(t, s)

	if _, err := s.SaveScrapeResult(ctx, uid, []models.ScrapedWorkOrder{scrapedOrder("1001")}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	before, err := s.ListWorkOrders(ctx, uid)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	firstSeen := before[0].FirstSeenAt

	changed := scrapedOrder("1001")
	changed.Status = "Completed"
	stats, err := s.SaveScrapeResult(ctx, uid, []models.ScrapedWorkOrder{changed})
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if stats.Updated != 1 {
		t.Fatalf("stats: %+v", stats)
	}

	after, err := s.ListWorkOrders(ctx, uid)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if after[0].Status != "Completed" {
		t.Fatalf("status not updated: %q", after[0].Status)
	}
	if !after[0].FirstSeenAt.Equal(firstSeen) {
		t.Fatalf("first_seen_at changed across update: %v -> %v", firstSeen, after[0].FirstSeenAt)
	}
}

func TestSaveScrapeResultRemovesMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	uid := newTestUser(t, s)

	initial := []models.ScrapedWorkOrder{scrapedOrder("1001"), scrapedOrder("1002")}
	if _, err := s.SaveScrapeResult(ctx, uid, initial); err != nil {
		t.Fatalf("first save: %v", err)
	}

	stats, err := s.SaveScrapeResult(ctx, uid, []models.ScrapedWorkOrder{scrapedOrder("1002")})
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if stats.Removed != 1 {
		t.Fatalf("stats: %+v", stats)
	}

	got, err := s.ListWorkOrders(ctx, uid)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ExternalID != "1002" {
		t.Fatalf("unexpected survivors: %+v", got)
	}
}

func TestSaveScrapeResultEmptyNeverDeletes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	uid := newTestUser(t, s)

	if _, err := s.SaveScrapeResult(ctx, uid, []models.ScrapedWorkOrder{scrapedOrder("1001")}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	stats, err := s.SaveScrapeResult(ctx, uid, nil)
	if err != nil {
		t.Fatalf("empty save: %v", err)
	}
	if stats.Removed != 0 {
		t.Fatalf("empty scrape removed rows: %+v", stats)
	}

	got, err := s.ListWorkOrders(ctx, uid)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("empty scrape wiped data: got %d orders", len(got))
	}
}

func TestListRunsClampsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	uid := newTestUser(t, s)

	start := time.Now().Add(-24 * time.Hour)
	for i := 0; i < 210; i++ {
		if _, err := s.InsertRun(ctx, &models.ScrapeRun{
			UserID:      uid,
			RunID:       fmt.Sprintf("run-%d", i),
			TriggeredBy: models.TriggerSchedule,
			Status:      models.RunStatusCompleted,
			StartedAt:   start.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("insert run: %v", err)
		}
	}

	runs, err := s.ListRuns(ctx, uid, 1000000)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 200 {
		t.Fatalf("oversized limit not clamped: got %d runs", len(runs))
	}
}

func TestRunHistoryAndPruning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	uid := newTestUser(t, s)

	start := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		runID := fmt.Sprintf("run-%d", i)
		if _, err := s.InsertRun(ctx, &models.ScrapeRun{
			UserID:      uid,
			RunID:       runID,
			TriggeredBy: models.TriggerSchedule,
			Status:      models.RunStatusRunning,
			StartedAt:   start.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("insert run: %v", err)
		}
		err := s.FinishRun(ctx, runID, models.RunStatusCompleted,
			SaveStats{Found: 3, New: 1}, "", time.Now(), 2*time.Second)
		if err != nil {
			t.Fatalf("finish run: %v", err)
		}
	}

	runs, err := s.ListRuns(ctx, uid, 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 5 {
		t.Fatalf("got %d runs, want 5", len(runs))
	}
	// Newest first.
	if runs[0].RunID != "run-4" {
		t.Fatalf("order: got %q first", runs[0].RunID)
	}
	if runs[0].Status != models.RunStatusCompleted || runs[0].OrdersFound != 3 {
		t.Fatalf("run outcome not recorded: %+v", runs[0])
	}

	if err := s.PruneAllRuns(ctx, 2); err != nil {
		t.Fatalf("prune: %v", err)
	}
	runs, err = s.ListRuns(ctx, uid, 0)
	if err != nil {
		t.Fatalf("list after prune: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs after prune, want 2", len(runs))
	}
	if runs[0].RunID != "run-4" || runs[1].RunID != "run-3" {
		t.Fatalf("prune kept wrong rows: %q, %q", runs[0].RunID, runs[1].RunID)
	}
}
