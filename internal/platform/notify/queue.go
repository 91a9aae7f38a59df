// Package notify keeps the dashboard's user-facing alert list: a bounded,
// self-expiring queue of toasts fed by both the push and polling channels,
// plus a hook registry for page-level side effects on raw events.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// JobAlertTTL is how long an inference-job toast stays visible.
	JobAlertTTL = 10 * time.Second
	// OrderAlertTTL is how long an order-change toast stays visible.
	OrderAlertTTL = 5 * time.Second
	// maxNotifications bounds the visible list; older entries are dropped
	// first.
	maxNotifications = 10
)

// Kind labels a notification for styling in the dashboard shell.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
)

// Notification is one user-facing alert.
type Notification struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	RelatedID string    `json:"related_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Queue is a thread-safe, bounded notification list. Every entry expires
// on its own TTL; eviction by overflow cancels the pending expiry.
type Queue struct {
	mu     sync.Mutex
	items  []Notification
	timers map[string]*time.Timer
	logger zerolog.Logger
}

// NewQueue creates an empty notification queue.
func NewQueue(logger zerolog.Logger) *Queue {
	return &Queue{
		timers: make(map[string]*time.Timer),
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// Add prepends a notification, trims the list to the most recent entries,
// and schedules removal after ttl.
func (q *Queue) Add(kind Kind, title, message, relatedID string, ttl time.Duration) Notification {
	n := Notification{
		ID:        uuid.New().String(),
		Kind:      kind,
		Title:     title,
		Message:   message,
		RelatedID: relatedID,
		Timestamp: time.Now(),
	}

	q.mu.Lock()
	q.items = append([]Notification{n}, q.items...)
	for len(q.items) > maxNotifications {
		evicted := q.items[len(q.items)-1]
		q.items = q.items[:len(q.items)-1]
		q.stopTimerLocked(evicted.ID)
	}
	q.timers[n.ID] = time.AfterFunc(ttl, func() { q.Remove(n.ID) })
	q.mu.Unlock()

	q.logger.Debug().
		Str("kind", string(kind)).
		Str("related_id", relatedID).
		Msg(title)
	return n
}

// Remove deletes a notification by id, cancelling its pending expiry.
func (q *Queue) Remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.stopTimerLocked(id)
	for i, n := range q.items {
		if n.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}

// Clear drops every notification and cancels all pending expiries.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for id := range q.timers {
		q.stopTimerLocked(id)
	}
	q.items = nil
}

// Snapshot returns a copy of the current list, newest first.
func (q *Queue) Snapshot() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Notification, len(q.items))
	copy(out, q.items)
	return out
}

// Len returns the number of visible notifications.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) stopTimerLocked(id string) {
	if t, ok := q.timers[id]; ok {
		t.Stop()
		delete(q.timers, id)
	}
}
