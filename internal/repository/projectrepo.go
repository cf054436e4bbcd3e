package repository

import (
	"context"

	"github.com/and161185/zerobase/internal/ident"
	"github.com/and161185/zerobase/internal/model"
)

// ProjectRepository is the control-plane store of tenants.
type ProjectRepository interface {
	// CreateDatabase allocates the tenant's physical database.
	CreateDatabase(ctx context.Context, id ident.Name) error
	// DropDatabase removes a tenant database that was never registered.
	DropDatabase(ctx context.Context, id ident.Name) error
	// Insert stores a new project row.
	Insert(ctx context.Context, p model.Project, apiKeyHash string) error
	// Get loads a project without its key hash.
	Get(ctx context.Context, id string) (model.Project, error)
	// List returns every project, newest first.
	List(ctx context.Context) ([]model.Project, error)
	// Access loads the fields needed by the access gate.
	Access(ctx context.Context, id string) (model.ProjectAccess, error)
	// AddURL appends url to authorized_urls unless present and returns the new list.
	AddURL(ctx context.Context, id, url string) ([]string, error)
	// RemoveURL removes url from authorized_urls and returns the new list.
	RemoveURL(ctx context.Context, id, url string) ([]string, error)
	// SetAPIKeyHash replaces the stored key hash.
	SetAPIKeyHash(ctx context.Context, id, hash string) error
	// SetQuota updates storage_quota_mb.
	SetQuota(ctx context.Context, id string, quotaMB int64) error
	// Ping checks control-plane connectivity.
	Ping(ctx context.Context) error
}
