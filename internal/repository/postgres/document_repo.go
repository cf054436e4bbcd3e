package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/zerobase/internal/errs"
	"github.com/and161185/zerobase/internal/ident"
	"github.com/and161185/zerobase/internal/model"
	"github.com/and161185/zerobase/internal/repository"
)

var authUsers = ident.MustParse("auth_users")

// DocumentRepo implements DocumentRepository on tenant databases.
type DocumentRepo struct{ tenants TenantConnector }

// NewDocumentRepo constructs a document repository.
func NewDocumentRepo(tenants TenantConnector) *DocumentRepo { return &DocumentRepo{tenants: tenants} }

// List selects up to limit rows.
func (r *DocumentRepo) List(ctx context.Context, projectID string, table ident.Name, limit int) ([]model.Document, error) {
	pool, release, err := r.tenants.Tenant(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer release()
	rows, err := pool.Query(ctx, "SELECT * FROM "+table.Quote()+" LIMIT "+strconv.Itoa(limit))
	if err != nil {
		return nil, classify(err)
	}
	return collectDocuments(rows)
}

// Insert builds INSERT ... RETURNING * with one bound parameter per field.
// With no fields the row gets column defaults.
func (r *DocumentRepo) Insert(ctx context.Context, projectID string, table ident.Name, fields []repository.Field) (model.Document, error) {
	pool, release, err := r.tenants.Tenant(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer release()

	var q string
	args := make([]any, 0, len(fields))
	if len(fields) == 0 {
		q = "INSERT INTO " + table.Quote() + " DEFAULT VALUES RETURNING *"
	} else {
		cols := make([]string, len(fields))
		ph := make([]string, len(fields))
		for i, f := range fields {
			cols[i] = f.Column.Quote()
			ph[i] = "$" + strconv.Itoa(i+1)
			args = append(args, f.Value)
		}
		q = "INSERT INTO " + table.Quote() + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(ph, ", ") + ") RETURNING *"
	}

	rows, err := pool.Query(ctx, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	doc, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if err != nil {
		return nil, classify(err)
	}
	return doc, nil
}

// UpdateAuthUser sets fields on one auth_users row. Callers strip protected
// columns before calling.
func (r *DocumentRepo) UpdateAuthUser(ctx context.Context, projectID string, userID int64, fields []repository.Field) (model.Document, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no updatable fields", errs.ErrValidation)
	}
	pool, release, err := r.tenants.Tenant(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer release()

	sets := make([]string, len(fields))
	args := make([]any, 0, len(fields)+1)
	for i, f := range fields {
		sets[i] = f.Column.Quote() + " = $" + strconv.Itoa(i+1)
		args = append(args, f.Value)
	}
	args = append(args, userID)
	q := "UPDATE " + authUsers.Quote() + " SET " + strings.Join(sets, ", ") +
		" WHERE id = $" + strconv.Itoa(len(args)) + " RETURNING *"

	rows, err := pool.Query(ctx, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	doc, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return doc, nil
}

func collectDocuments(rows pgx.Rows) ([]model.Document, error) {
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]model.Document, len(maps))
	for i, m := range maps {
		out[i] = m
	}
	return out, nil
}
