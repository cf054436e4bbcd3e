package postgres

import (
	"context"
	"time"

	"github.com/and161185/zerobase/internal/model"
)

// LogRepo implements LogRepository on the logs table of tenant databases.
type LogRepo struct{ tenants TenantConnector }

// NewLogRepo constructs a log repository.
func NewLogRepo(tenants TenantConnector) *LogRepo { return &LogRepo{tenants: tenants} }

// Insert appends one entry.
func (r *LogRepo) Insert(ctx context.Context, projectID string, e model.LogEntry) error {
	const q = `
INSERT INTO logs (project_id, endpoint, method, status, message, metadata)
VALUES ($1, $2, $3, $4, $5, $6)`
	pool, release, err := r.tenants.Tenant(ctx, projectID)
	if err != nil {
		return err
	}
	defer release()
	meta := e.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	_, err = pool.Exec(ctx, q, projectID, e.Endpoint, e.Method, e.Status, e.Message, meta)
	return classify(err)
}

// List selects entries newest first.
func (r *LogRepo) List(ctx context.Context, projectID string, limit, offset int) ([]model.LogEntry, error) {
	const q = `
SELECT id, COALESCE(project_id, ''), COALESCE(endpoint, ''), COALESCE(method, ''),
       COALESCE(status, 0), COALESCE(message, ''), COALESCE(metadata, '{}'::jsonb), created_at
FROM logs
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2`
	pool, release, err := r.tenants.Tenant(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer release()
	rows, err := pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make([]model.LogEntry, 0, limit)
	for rows.Next() {
		var (
			e       model.LogEntry
			created *time.Time
		)
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Endpoint, &e.Method, &e.Status, &e.Message, &e.Metadata, &created); err != nil {
			return nil, err
		}
		if created != nil {
			e.CreatedAt = *created
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
