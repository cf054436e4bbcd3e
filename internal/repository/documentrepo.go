package repository

import (
	"context"

	"github.com/and161185/zerobase/internal/ident"
	"github.com/and161185/zerobase/internal/model"
)

// Field is one validated column assignment.
type Field struct {
	Column ident.Name
	Value  any
}

// DocumentRepository executes row-level DML against tenant tables.
type DocumentRepository interface {
	// List returns at most limit rows of table.
	List(ctx context.Context, projectID string, table ident.Name, limit int) ([]model.Document, error)
	// Insert writes one row and returns it as stored.
	Insert(ctx context.Context, projectID string, table ident.Name, fields []Field) (model.Document, error)
	// UpdateAuthUser updates an auth_users row; errs.ErrNotFound when no row matched.
	UpdateAuthUser(ctx context.Context, projectID string, userID int64, fields []Field) (model.Document, error)
}

// LogRepository appends to and reads the tenant activity log.
type LogRepository interface {
	Insert(ctx context.Context, projectID string, e model.LogEntry) error
	List(ctx context.Context, projectID string, limit, offset int) ([]model.LogEntry, error)
}
