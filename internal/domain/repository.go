package domain

import (
	"context"
	"time"
)

// JobPatch carries the fields a status transition is allowed to change.
// Nil pointers leave the stored value untouched; the Clear flags reset a
// field a retry must not inherit from an earlier failure. A transition back
// into uploaded clears all three, so a re-uploaded job carries no run id,
// error message or completion time from the failed attempt it replaces.
type JobPatch struct {
	Status          JobStatus
	ExternalRunID   *int64
	ErrorMessage    *string
	UploadDirectory *string
	ProgressHint    *int
	CompletedAt     *time.Time

	ClearExternalRunID bool
	ClearErrorMessage  bool
	ClearCompletedAt   bool
}

// JobRepository defines persistence for job entities.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	List(ctx context.Context) ([]Job, error)
	// UpdateStatus applies the patch only when the stored status still equals
	// expected, and reports whether the row was updated. A false return means
	// a concurrent writer already transitioned the job.
	UpdateStatus(ctx context.Context, jobID string, expected JobStatus, patch JobPatch) (bool, error)
}

// DocumentRepository handles persistence for uploaded documents.
type DocumentRepository interface {
	Create(ctx context.Context, doc *Document) error
	ListByJob(ctx context.Context, jobID string) ([]Document, error)
}

// SchemaRepository provides read access to extraction schemas. Jobs only
// reference schemas; managing them is a collaborator concern.
type SchemaRepository interface {
	GetByID(ctx context.Context, schemaID string) (*Schema, error)
}

// ActivityRepository receives transition events for audit.
type ActivityRepository interface {
	Record(ctx context.Context, entry *ActivityEntry) error
	ListRecent(ctx context.Context, limit, offset int) ([]ActivityEntry, error)
}
