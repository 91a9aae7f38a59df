// Package inference tracks asynchronous AI-inference jobs submitted to the
// clinical gateway. The job store is the single source of truth: push
// events and the polling reconciler both funnel into the same update path,
// and a consumer cannot tell which channel delivered a transition.
package inference

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a job as reported by the gateway.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// Terminal reports whether a job in this status will never change again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus validates a raw status string from the wire.
func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return Status(raw), true
	}
	return "", false
}

// Job is the client-side record of one submitted inference job. Jobs are
// created only by submission: an update for an id the store has never
// seen is dropped, never synthesized into a new job.
type Job struct {
	ID        string          `json:"id"`
	ModelType string          `json:"model_type"`
	Status    Status          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Cached    bool            `json:"cached"`
	CreatedAt time.Time       `json:"created_at"`
}

// Active reports whether the job still awaits a terminal update.
func (j Job) Active() bool {
	return j.Status == StatusPending || j.Status == StatusProcessing
}
