package domain

import "time"

// Activity event types recorded for auditing.
const (
	ActivityCreate    = "create"
	ActivityUpload    = "upload"
	ActivityTrigger   = "trigger"
	ActivityReconcile = "reconcile"
)

// Actor identifies who performed an operation, as far as the platform tells
// us. All fields are best effort and may be empty; the reconciliation poller
// records entries with a zero Actor.
type Actor struct {
	UserID  string
	Email   string
	Country string
}

// ActivityEntry is one audit record of a job status transition or upload.
type ActivityEntry struct {
	ID         string
	JobID      string
	EventType  string
	FromStatus JobStatus
	ToStatus   JobStatus
	Message    string
	Detail     string
	UserID     string
	UserEmail  string
	Country    string
	CreatedAt  time.Time
}
