package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"fossawork-backend/internal/config"
	"fossawork-backend/internal/store"
	"fossawork-backend/models"
)

type captureRunner struct {
	mu    sync.Mutex
	calls []int64
}

func (r *captureRunner) Dispatch(_ context.Context, userID int64, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, userID)
	return nil
}

func (r *captureRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func enabledScheduleUser(t *testing.T, st *store.Store) int64 {
	t.Helper()
	ctx := context.Background()
	uid, err := st.CreateUser(ctx, &models.User{Username: "tech1", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := st.EnsureSchedule(ctx, uid, 60); err != nil {
		t.Fatalf("ensure schedule: %v", err)
	}
	enabled := true
	if _, err := st.UpdateSchedule(ctx, uid, models.UpdateScheduleRequest{Enabled: &enabled}); err != nil {
		t.Fatalf("enable schedule: %v", err)
	}
	return uid
}

func TestTickDispatchesDueUserOnce(t *testing.T) {
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	uid := enabledScheduleUser(t, st)

	runner := &captureRunner{}
	svc := NewService(&config.Config{}, st, runner, NewTracker(time.Minute))

	svc.tick()
	if runner.count() != 1 {
		t.Fatalf("first tick dispatched %d times, want 1", runner.count())
	}

	// The dispatch stamps a tentative next_run_at, so the user must not
	// be dispatched again while the job is still queued.
	svc.tick()
	svc.tick()
	if runner.count() != 1 {
		t.Fatalf("repeat ticks re-dispatched: %d total dispatches", runner.count())
	}

	sched, err := st.GetSchedule(context.Background(), uid)
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if sched.NextRunAt == nil {
		t.Fatal("dispatch should have stamped next_run_at")
	}
	if !sched.NextRunAt.After(time.Now()) {
		t.Fatalf("tentative next_run_at not in the future: %v", sched.NextRunAt)
	}
}

func TestTickSkipsDisabledSchedules(t *testing.T) {
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	uid, err := st.CreateUser(ctx, &models.User{Username: "tech2", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := st.EnsureSchedule(ctx, uid, 60); err != nil {
		t.Fatalf("ensure schedule: %v", err)
	}

	runner := &captureRunner{}
	svc := NewService(&config.Config{}, st, runner, NewTracker(time.Minute))

	svc.tick()
	if runner.count() != 0 {
		t.Fatalf("disabled schedule was dispatched %d times", runner.count())
	}
}
