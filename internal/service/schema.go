package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/zerobase/internal/errs"
	"github.com/and161185/zerobase/internal/ident"
	"github.com/and161185/zerobase/internal/model"
	"github.com/and161185/zerobase/internal/repository"
)

// SchemaService validates tenant-supplied names and types and applies DDL.
type SchemaService interface {
	Tables(ctx context.Context, projectID string) ([]model.Table, error)
	CreateTable(ctx context.Context, projectID, table string) error
	DropTable(ctx context.Context, projectID, table string) error
	AddColumn(ctx context.Context, projectID, table, column, typ string) error

	Indexes(ctx context.Context, projectID, table string) ([]model.Index, error)
	// CreateIndex returns the deterministic index name.
	CreateIndex(ctx context.Context, projectID, table string, columns []string, method string, unique bool) (string, error)
	DropIndex(ctx context.Context, projectID, table, index string) error

	Extensions(ctx context.Context, projectID string) ([]model.Extension, error)
	EnableExtension(ctx context.Context, projectID, name string) error
	DisableExtension(ctx context.Context, projectID, name string) error
}

type SchemaServiceImpl struct {
	repo repository.SchemaRepository
	log  *zap.Logger
}

// NewSchemaService constructs SchemaService.
func NewSchemaService(repo repository.SchemaRepository, log *zap.Logger) *SchemaServiceImpl {
	return &SchemaServiceImpl{repo: repo, log: log}
}

func (s *SchemaServiceImpl) Tables(ctx context.Context, projectID string) ([]model.Table, error) {
	return s.repo.Tables(ctx, projectID)
}

func (s *SchemaServiceImpl) CreateTable(ctx context.Context, projectID, table string) error {
	t, err := ident.Parse(table)
	if err != nil {
		return err
	}
	if err := s.repo.CreateTable(ctx, projectID, t); err != nil {
		s.log.Warn("create table failed", zap.String("project_id", projectID), zap.String("table", table), zap.Error(err))
		return err
	}
	return nil
}

// DropTable cascades to dependent indexes and constraints.
func (s *SchemaServiceImpl) DropTable(ctx context.Context, projectID, table string) error {
	t, err := ident.Parse(table)
	if err != nil {
		return err
	}
	if err := s.repo.DropTable(ctx, projectID, t); err != nil {
		s.log.Warn("drop table failed", zap.String("project_id", projectID), zap.String("table", table), zap.Error(err))
		return err
	}
	return nil
}

func (s *SchemaServiceImpl) AddColumn(ctx context.Context, projectID, table, column, typ string) error {
	t, err := ident.Parse(table)
	if err != nil {
		return err
	}
	c, err := ident.Parse(column)
	if err != nil {
		return err
	}
	ty, err := ident.ParseType(typ)
	if err != nil {
		return err
	}
	if err := s.repo.AddColumn(ctx, projectID, t, c, ty); err != nil {
		s.log.Warn("add column failed", zap.String("project_id", projectID), zap.String("table", table),
			zap.String("column", column), zap.Error(err))
		return err
	}
	return nil
}

func (s *SchemaServiceImpl) Indexes(ctx context.Context, projectID, table string) ([]model.Index, error) {
	t, err := ident.Parse(table)
	if err != nil {
		return nil, err
	}
	return s.repo.Indexes(ctx, projectID, t)
}

func (s *SchemaServiceImpl) CreateIndex(ctx context.Context, projectID, table string, columns []string, method string, unique bool) (string, error) {
	t, err := ident.Parse(table)
	if err != nil {
		return "", err
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("%w: at least one column is required", errs.ErrValidation)
	}
	cols, err := ident.ParseAll(columns)
	if err != nil {
		return "", err
	}
	m, err := ident.ParseIndexMethod(method)
	if err != nil {
		return "", err
	}
	name, err := s.repo.CreateIndex(ctx, projectID, t, cols, m, unique)
	if err != nil {
		s.log.Warn("create index failed", zap.String("project_id", projectID), zap.String("table", table), zap.Error(err))
		return "", err
	}
	return name.String(), nil
}

// DropIndex only removes idx_-prefixed indexes; table is validated for the
// route shape but indexes are schema-wide names.
func (s *SchemaServiceImpl) DropIndex(ctx context.Context, projectID, table, index string) error {
	if _, err := ident.Parse(table); err != nil {
		return err
	}
	ix, err := ident.ParseDroppableIndex(index)
	if err != nil {
		return err
	}
	return s.repo.DropIndex(ctx, projectID, ix)
}

func (s *SchemaServiceImpl) Extensions(ctx context.Context, projectID string) ([]model.Extension, error) {
	return s.repo.Extensions(ctx, projectID)
}

func (s *SchemaServiceImpl) EnableExtension(ctx context.Context, projectID, name string) error {
	e, err := ident.ParseExtension(name)
	if err != nil {
		return err
	}
	return s.repo.EnableExtension(ctx, projectID, e)
}

func (s *SchemaServiceImpl) DisableExtension(ctx context.Context, projectID, name string) error {
	e, err := ident.ParseExtension(name)
	if err != nil {
		return err
	}
	return s.repo.DisableExtension(ctx, projectID, e)
}
