package domain

import "time"

// JobStatus enumerates extraction job lifecycle states.
type JobStatus string

const (
	JobStatusNotSubmitted JobStatus = "not_submitted"
	JobStatusUploaded     JobStatus = "uploaded"
	JobStatusProcessing   JobStatus = "processing"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusFailed       JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job tracks one document-extraction request through its lifecycle. The local
// record is the source of truth; the reconciliation poller keeps Status in
// sync with the external runner while the job is in flight.
type Job struct {
	ID              string
	Name            string
	SchemaID        string
	Status          JobStatus
	ExternalRunID   *int64
	ErrorMessage    string
	UploadDirectory string
	ProgressHint    int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// Document is a file uploaded to a job before triggering extraction.
type Document struct {
	ID         string
	JobID      string
	Filename   string
	StorageKey string
	Size       int64
	UploadedAt time.Time
}

// Schema is a named extraction schema referenced by jobs. Definition and
// versioning live elsewhere; jobs only need existence checks and names.
type Schema struct {
	ID          string
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
}
