package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"extractd/internal/domain"
)

// ActivityRepositoryPG implements domain.ActivityRepository.
type ActivityRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewActivityRepository creates a new activity log repository backed by PostgreSQL.
func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepositoryPG {
	return &ActivityRepositoryPG{pool: pool}
}

// Record appends one audit entry.
func (r *ActivityRepositoryPG) Record(ctx context.Context, entry *domain.ActivityEntry) error {
	query := `
INSERT INTO activity_logs (id, job_id, event_type, from_status, to_status, message, detail, user_id, user_email, country)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`
	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.JobID,
		entry.EventType,
		entry.FromStatus,
		entry.ToStatus,
		entry.Message,
		entry.Detail,
		entry.UserID,
		entry.UserEmail,
		entry.Country,
	)
	return err
}

// ListRecent returns audit entries, newest first.
func (r *ActivityRepositoryPG) ListRecent(ctx context.Context, limit, offset int) ([]domain.ActivityEntry, error) {
	query := `
SELECT id, job_id, event_type, from_status, to_status, message, detail, user_id, user_email, country, created_at
FROM activity_logs
ORDER BY created_at DESC
LIMIT $1 OFFSET $2;
`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.ActivityEntry
	for rows.Next() {
		var e domain.ActivityEntry
		if err := rows.Scan(
			&e.ID,
			&e.JobID,
			&e.EventType,
			&e.FromStatus,
			&e.ToStatus,
			&e.Message,
			&e.Detail,
			&e.UserID,
			&e.UserEmail,
			&e.Country,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
