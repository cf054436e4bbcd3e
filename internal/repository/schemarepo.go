package repository

import (
	"context"

	"github.com/and161185/zerobase/internal/ident"
	"github.com/and161185/zerobase/internal/model"
)

// SchemaRepository executes validated DDL against tenant databases.
// Every identifier parameter is an ident type, so raw strings cannot reach SQL text.
type SchemaRepository interface {
	Tables(ctx context.Context, projectID string) ([]model.Table, error)
	CreateTable(ctx context.Context, projectID string, table ident.Name) error
	DropTable(ctx context.Context, projectID string, table ident.Name) error
	AddColumn(ctx context.Context, projectID string, table, column ident.Name, typ ident.Type) error

	Indexes(ctx context.Context, projectID string, table ident.Name) ([]model.Index, error)
	// CreateIndex builds idx_<table>_<cols...> concurrently if it does not exist.
	CreateIndex(ctx context.Context, projectID string, table ident.Name, columns []ident.Name, method ident.IndexMethod, unique bool) (ident.Name, error)
	DropIndex(ctx context.Context, projectID string, index ident.Name) error

	Extensions(ctx context.Context, projectID string) ([]model.Extension, error)
	EnableExtension(ctx context.Context, projectID string, ext ident.Extension) error
	DisableExtension(ctx context.Context, projectID string, ext ident.Extension) error

	// MigrateSystemTables additively brings auth_users and logs up to date.
	MigrateSystemTables(ctx context.Context, projectID string) (model.MigrationReport, error)
}
