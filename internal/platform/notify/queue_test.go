package notify

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestQueue_AddPrependsNewestFirst(t *testing.T) {
	q := NewQueue(zerolog.Nop())

	q.Add(KindInfo, "first", "", "", time.Minute)
	q.Add(KindInfo, "second", "", "", time.Minute)

	items := q.Snapshot()
	if len(items) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(items))
	}
	if items[0].Title != "second" || items[1].Title != "first" {
		t.Errorf("expected newest first, got %s, %s", items[0].Title, items[1].Title)
	}
}

func TestQueue_BoundedAtTen(t *testing.T) {
	q := NewQueue(zerolog.Nop())

	var firstID string
	for i := 0; i < 12; i++ {
		n := q.Add(KindInfo, "n", "", "", time.Minute)
		if i == 0 {
			firstID = n.ID
		}
	}

	if got := q.Len(); got != maxNotifications {
		t.Fatalf("expected %d notifications, got %d", maxNotifications, got)
	}
	for _, n := range q.Snapshot() {
		if n.ID == firstID {
			t.Error("oldest notification should have been evicted")
		}
	}
}

func TestQueue_ExpiresAfterTTL(t *testing.T) {
	q := NewQueue(zerolog.Nop())

	q.Add(KindSuccess, "short-lived", "", "", 20*time.Millisecond)
	if q.Len() != 1 {
		t.Fatal("expected notification to be visible before TTL")
	}

	deadline := time.Now().Add(time.Second)
	for q.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if q.Len() != 0 {
		t.Error("notification should expire after its TTL")
	}
}

func TestQueue_RemoveCancelsExpiry(t *testing.T) {
	q := NewQueue(zerolog.Nop())

	n := q.Add(KindError, "dismiss me", "", "job-1", time.Minute)
	q.Remove(n.ID)

	if q.Len() != 0 {
		t.Error("expected empty queue after Remove")
	}
	if len(q.timers) != 0 {
		t.Error("expected pending expiry to be cancelled")
	}
}

func TestQueue_RemoveUnknownIDIsNoop(t *testing.T) {
	q := NewQueue(zerolog.Nop())
	q.Add(KindInfo, "keep", "", "", time.Minute)

	q.Remove("not-an-id")

	if q.Len() != 1 {
		t.Error("removing an unknown id must not change the queue")
	}
}

func TestQueue_Clear(t *testing.T) {
	q := NewQueue(zerolog.Nop())
	q.Add(KindInfo, "a", "", "", time.Minute)
	q.Add(KindWarning, "b", "", "", time.Minute)

	q.Clear()

	if q.Len() != 0 {
		t.Error("expected empty queue after Clear")
	}
	if len(q.timers) != 0 {
		t.Error("expected all expiries cancelled after Clear")
	}
}

func TestQueue_SnapshotIsACopy(t *testing.T) {
	q := NewQueue(zerolog.Nop())
	q.Add(KindInfo, "original", "", "", time.Minute)

	snap := q.Snapshot()
	snap[0].Title = "mutated"

	if q.Snapshot()[0].Title != "original" {
		t.Error("mutating a snapshot must not affect the queue")
	}
}
