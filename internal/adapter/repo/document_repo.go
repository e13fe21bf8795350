package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"extractd/internal/domain"
)

// DocumentRepositoryPG implements domain.DocumentRepository.
type DocumentRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository creates a new document repository backed by PostgreSQL.
func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepositoryPG {
	return &DocumentRepositoryPG{pool: pool}
}

// Create inserts a new document record.
func (r *DocumentRepositoryPG) Create(ctx context.Context, doc *domain.Document) error {
	query := `
INSERT INTO documents (id, job_id, filename, storage_key, file_size)
VALUES ($1, $2, $3, $4, $5);
`
	_, err := r.pool.Exec(ctx, query, doc.ID, doc.JobID, doc.Filename, doc.StorageKey, doc.Size)
	return err
}

// ListByJob returns the documents uploaded to a job, in upload order.
func (r *DocumentRepositoryPG) ListByJob(ctx context.Context, jobID string) ([]domain.Document, error) {
	query := `
SELECT id, job_id, filename, storage_key, file_size, uploaded_at
FROM documents
WHERE job_id = $1
ORDER BY uploaded_at;
`
	rows, err := r.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var doc domain.Document
		if err := rows.Scan(&doc.ID, &doc.JobID, &doc.Filename, &doc.StorageKey, &doc.Size, &doc.UploadedAt); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
