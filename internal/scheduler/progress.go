package scheduler

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time view of one user's scrape progress.
type Snapshot struct {
	UserID    int64     `json:"user_id"`
	RunID     string    `json:"run_id"`
	Phase     string    `json:"phase"`
	Percent   int       `json:"percent"`
	Message   string    `json:"message,omitempty"`
	Done      bool      `json:"done"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tracker holds in-memory scrape progress per user. Finished entries
// linger for the configured TTL so clients can observe the terminal
// state, then a sweep removes them. The tracker doubles as the
// one-in-flight-run-per-user guard.
type Tracker struct {
	mu     sync.RWMutex
	byUser map[int64]*Snapshot
	ttl    time.Duration
}

func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Tracker{
		byUser: make(map[int64]*Snapshot),
		ttl:    ttl,
	}
}

// TryStart registers a new run for the user. Returns false if a run is
// already in flight; callers skip the trigger in that case.
func (t *Tracker) TryStart(userID int64, runID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.byUser[userID]; ok && !cur.Done {
		return false
	}
	now := time.Now()
	t.byUser[userID] = &Snapshot{
		UserID:    userID,
		RunID:     runID,
		Phase:     "starting",
		StartedAt: now,
		UpdatedAt: now,
	}
	return true
}

// Update records progress for an in-flight run.
func (t *Tracker) Update(userID int64, phase string, percent int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.byUser[userID]
	if !ok || cur.Done {
		return
	}
	if percent < cur.Percent {
		percent = cur.Percent
	}
	cur.Phase = phase
	cur.Percent = percent
	cur.Message = message
	cur.UpdatedAt = time.Now()
}

// Finish marks the run terminal. The entry stays visible until the TTL
// sweep removes it.
func (t *Tracker) Finish(userID int64, phase string, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.byUser[userID]
	if !ok {
		return
	}
	cur.Phase = phase
	cur.Message = message
	cur.Done = true
	if phase == PhaseDoneOK {
		cur.Percent = 100
	}
	cur.UpdatedAt = time.Now()
}

// Get returns a copy of the user's progress, if any.
func (t *Tracker) Get(userID int64) (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cur, ok := t.byUser[userID]
	if !ok {
		return Snapshot{}, false
	}
	return *cur, true
}

// Sweep removes finished entries older than the TTL and stale in-flight
// entries that stopped updating (crashed worker). Returns the number of
// entries removed.
func (t *Tracker) Sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, cur := range t.byUser {
		expired := cur.Done && now.Sub(cur.UpdatedAt) >= t.ttl
		// In-flight entries that have not updated for 6x the TTL are
		// abandoned; without this a crashed run blocks the user forever.
		stale := !cur.Done && now.Sub(cur.UpdatedAt) >= 6*t.ttl
		if expired || stale {
			delete(t.byUser, id)
			removed++
		}
	}
	return removed
}

// Terminal phase names recorded by the executor.
const (
	PhaseDoneOK   = "done"
	PhaseDoneFail = "failed"
)
