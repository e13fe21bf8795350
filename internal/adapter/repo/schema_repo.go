package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"extractd/internal/domain"
)

// SchemaRepositoryPG implements domain.SchemaRepository.
type SchemaRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewSchemaRepository creates a new schema repository backed by PostgreSQL.
func NewSchemaRepository(pool *pgxpool.Pool) *SchemaRepositoryPG {
	return &SchemaRepositoryPG{pool: pool}
}

// GetByID fetches a schema by its identifier.
func (r *SchemaRepositoryPG) GetByID(ctx context.Context, schemaID string) (*domain.Schema, error) {
	query := `
SELECT id, name, description, is_active, created_at
FROM extraction_schemas
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, schemaID)
	var schema domain.Schema
	if err := row.Scan(&schema.ID, &schema.Name, &schema.Description, &schema.IsActive, &schema.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &schema, nil
}
