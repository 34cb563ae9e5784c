package scheduler

import (
	"testing"
	"time"
)

func TestTrackerInFlightGuard(t *testing.T) {
	tr := NewTracker(time.Minute)

	if !tr.TryStart(1, "run-a") {
		t.Fatal("first start should succeed")
	}
	if tr.TryStart(1, "run-b") {
		t.Fatal("second start must be rejected while run-a is in flight")
	}
	// A different user is unaffected.
	if !tr.TryStart(2, "run-c") {
		t.Fatal("other user's start should succeed")
	}

	tr.Finish(1, PhaseDoneOK, "")
	if !tr.TryStart(1, "run-d") {
		t.Fatal("start after finish should succeed")
	}
}

func TestTrackerUpdateMonotonicPercent(t *testing.T) {
	tr := NewTracker(time.Minute)
	tr.TryStart(1, "run")

	tr.Update(1, "listing", 50, "")
	tr.Update(1, "details", 30, "")

	snap, ok := tr.Get(1)
	if !ok {
		t.Fatal("expected a snapshot")
	}
	if snap.Percent != 50 {
		t.Fatalf("percent regressed: got %d, want 50", snap.Percent)
	}
	if snap.Phase != "details" {
		t.Fatalf("phase not updated: got %q", snap.Phase)
	}
}

func TestTrackerFinish(t *testing.T) {
	tr := NewTracker(time.Minute)
	tr.TryStart(7, "run")
	tr.Update(7, "saving", 90, "")
	tr.Finish(7, PhaseDoneOK, "12 orders")

	snap, ok := tr.Get(7)
	if !ok || !snap.Done {
		t.Fatal("finished snapshot should remain visible")
	}
	if snap.Percent != 100 {
		t.Fatalf("successful finish should pin percent to 100, got %d", snap.Percent)
	}

	// Updates after finish are ignored.
	tr.Update(7, "listing", 10, "")
	snap, _ = tr.Get(7)
	if snap.Phase != PhaseDoneOK {
		t.Fatalf("update after finish mutated the entry: %q", snap.Phase)
	}
}

func TestTrackerSweep(t *testing.T) {
	ttl := time.Minute
	tr := NewTracker(ttl)

	tr.TryStart(1, "finished-run")
	tr.Finish(1, PhaseDoneFail, "boom")
	tr.TryStart(2, "live-run")

	// Nothing old enough yet.
	if n := tr.Sweep(time.Now()); n != 0 {
		t.Fatalf("premature sweep removed %d entries", n)
	}

	// Past the TTL: the finished entry goes, the live one stays.
	later := time.Now().Add(ttl + time.Second)
	if n := tr.Sweep(later); n != 1 {
		t.Fatalf("sweep removed %d entries, want 1", n)
	}
	if _, ok := tr.Get(1); ok {
		t.Fatal("finished entry should be gone")
	}
	if _, ok := tr.Get(2); !ok {
		t.Fatal("in-flight entry should survive the TTL sweep")
	}

	// Much later the abandoned in-flight entry is reclaimed too.
	muchLater := time.Now().Add(7 * ttl)
	if n := tr.Sweep(muchLater); n != 1 {
		t.Fatalf("stale sweep removed %d entries, want 1", n)
	}
	if !tr.TryStart(2, "new-run") {
		t.Fatal("user should be unblocked after the stale entry is reclaimed")
	}
}
