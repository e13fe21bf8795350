package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"extractd/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO jobs (id, name, schema_id, status, external_run_id, error_message, upload_directory, progress_hint)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Name,
		job.SchemaID,
		job.Status,
		job.ExternalRunID,
		job.ErrorMessage,
		job.UploadDirectory,
		job.ProgressHint,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := selectJobColumns + ` WHERE id = $1;`
	row := r.pool.QueryRow(ctx, query, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// List returns all jobs, newest first. The poller partitions the result into
// in-flight and settled jobs; a single read per tick keeps every job in the
// cycle evaluated against the same snapshot.
func (r *JobRepositoryPG) List(ctx context.Context) ([]domain.Job, error) {
	query := selectJobColumns + ` ORDER BY created_at DESC;`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// UpdateStatus applies the patch only while the stored status still equals
// expected. A zero row count means a concurrent writer already transitioned
// the job; the caller drops its write.
func (r *JobRepositoryPG) UpdateStatus(ctx context.Context, jobID string, expected domain.JobStatus, patch domain.JobPatch) (bool, error) {
	query := `
UPDATE jobs
SET status = $3,
    external_run_id = CASE WHEN $9 THEN NULL ELSE COALESCE($4, external_run_id) END,
    error_message = CASE WHEN $10 THEN '' ELSE COALESCE($5, error_message) END,
    upload_directory = COALESCE($6, upload_directory),
    progress_hint = COALESCE($7, progress_hint),
    completed_at = CASE WHEN $11 THEN NULL ELSE COALESCE($8, completed_at) END,
    updated_at = NOW()
WHERE id = $1 AND status = $2;
`
	tag, err := r.pool.Exec(ctx, query,
		jobID,
		expected,
		patch.Status,
		patch.ExternalRunID,
		patch.ErrorMessage,
		patch.UploadDirectory,
		patch.ProgressHint,
		patch.CompletedAt,
		patch.ClearExternalRunID,
		patch.ClearErrorMessage,
		patch.ClearCompletedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

const selectJobColumns = `
SELECT id, name, schema_id, status, external_run_id, error_message, upload_directory, progress_hint, created_at, updated_at, completed_at
FROM jobs`

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.Name,
		&job.SchemaID,
		&job.Status,
		&job.ExternalRunID,
		&job.ErrorMessage,
		&job.UploadDirectory,
		&job.ProgressHint,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &job, nil
}
