package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/zerobase/internal/errs"
	"github.com/and161185/zerobase/internal/ident"
	"github.com/and161185/zerobase/internal/model"
)

// ProjectRepo implements ProjectRepository on the control-plane database.
type ProjectRepo struct{ db *DB }

// NewProjectRepo constructs a project repository.
func NewProjectRepo(db *DB) *ProjectRepo { return &ProjectRepo{db: db} }

// CreateDatabase runs CREATE DATABASE for a validated project id.
func (r *ProjectRepo) CreateDatabase(ctx context.Context, id ident.Name) error {
	_, err := r.db.Pool.Exec(ctx, "CREATE DATABASE "+id.Quote())
	return classify(err)
}

// DropDatabase runs DROP DATABASE IF EXISTS for a validated project id.
func (r *ProjectRepo) DropDatabase(ctx context.Context, id ident.Name) error {
	_, err := r.db.Pool.Exec(ctx, "DROP DATABASE IF EXISTS "+id.Quote())
	return classify(err)
}

// Insert stores a new project row.
func (r *ProjectRepo) Insert(ctx context.Context, p model.Project, apiKeyHash string) error {
	const q = `
INSERT INTO projects (id, name, api_key_hash, authorized_urls, storage_quota_mb, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	urls := p.AuthorizedURLs
	if urls == nil {
		urls = []string{}
	}
	_, err := r.db.Pool.Exec(ctx, q, p.ID, p.Name, apiKeyHash, urls, p.StorageQuotaMB, p.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrConflict
	}
	return err
}

const projectColumns = `id, name, authorized_urls, storage_quota_mb, created_at`

func scanProject(row pgx.Row) (model.Project, error) {
	var p model.Project
	if err := row.Scan(&p.ID, &p.Name, &p.AuthorizedURLs, &p.StorageQuotaMB, &p.CreatedAt); err != nil {
		return model.Project{}, err
	}
	if p.AuthorizedURLs == nil {
		p.AuthorizedURLs = []string{}
	}
	return p, nil
}

// Get selects a project by id.
func (r *ProjectRepo) Get(ctx context.Context, id string) (model.Project, error) {
	q := `SELECT ` + projectColumns + ` FROM projects WHERE id=$1`
	p, err := scanProject(r.db.Pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Project{}, errs.ErrNotFound
	}
	return p, err
}

// List selects every project, newest first.
func (r *ProjectRepo) List(ctx context.Context) ([]model.Project, error) {
	q := `SELECT ` + projectColumns + ` FROM projects ORDER BY created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Access selects the key hash and authorized origins of a project.
func (r *ProjectRepo) Access(ctx context.Context, id string) (model.ProjectAccess, error) {
	const q = `SELECT id, api_key_hash, authorized_urls FROM projects WHERE id=$1`
	var a model.ProjectAccess
	err := r.db.Pool.QueryRow(ctx, q, id).Scan(&a.ID, &a.APIKeyHash, &a.AuthorizedURLs)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ProjectAccess{}, errs.ErrNotFound
	}
	return a, err
}

// AddURL appends url unless it is already listed.
func (r *ProjectRepo) AddURL(ctx context.Context, id, url string) ([]string, error) {
	const q = `
UPDATE projects
SET authorized_urls = CASE WHEN $2 = ANY(authorized_urls) THEN authorized_urls ELSE array_append(authorized_urls, $2) END
WHERE id = $1
RETURNING authorized_urls`
	return r.urls(ctx, q, id, url)
}

// RemoveURL removes every occurrence of url.
func (r *ProjectRepo) RemoveURL(ctx context.Context, id, url string) ([]string, error) {
	const q = `
UPDATE projects
SET authorized_urls = array_remove(authorized_urls, $2)
WHERE id = $1
RETURNING authorized_urls`
	return r.urls(ctx, q, id, url)
}

func (r *ProjectRepo) urls(ctx context.Context, q, id, url string) ([]string, error) {
	var urls []string
	err := r.db.Pool.QueryRow(ctx, q, id, url).Scan(&urls)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if urls == nil {
		urls = []string{}
	}
	return urls, nil
}

// SetAPIKeyHash replaces the stored key hash.
func (r *ProjectRepo) SetAPIKeyHash(ctx context.Context, id, hash string) error {
	const q = `UPDATE projects SET api_key_hash=$2 WHERE id=$1`
	return r.execOne(ctx, q, id, hash)
}

// SetQuota updates the storage quota.
func (r *ProjectRepo) SetQuota(ctx context.Context, id string, quotaMB int64) error {
	const q = `UPDATE projects SET storage_quota_mb=$2 WHERE id=$1`
	return r.execOne(ctx, q, id, quotaMB)
}

func (r *ProjectRepo) execOne(ctx context.Context, q string, args ...any) error {
	tag, err := r.db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Ping checks the control-plane pool.
func (r *ProjectRepo) Ping(ctx context.Context) error { return r.db.Pool.Ping(ctx) }
