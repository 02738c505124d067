package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CreateGINIndexes creates full-text search GIN indexes for PostgreSQL.
// These enable efficient full-text search over task descriptions and
// memory entry content.
func CreateGINIndexes(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS idx_tasks_description_gin
		ON tasks USING gin(to_tsvector('english', description))`)
	if err != nil {
		return fmt.Errorf("failed to create task description GIN index: %w", err)
	}

	_, err = pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS idx_memory_entries_content_gin
		ON memory_entries USING gin(to_tsvector('english', content))`)
	if err != nil {
		return fmt.Errorf("failed to create memory content GIN index: %w", err)
	}

	return nil
}
