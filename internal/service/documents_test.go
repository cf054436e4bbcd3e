package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/zerobase/internal/errs"
	"github.com/and161185/zerobase/internal/model"
)

func TestDocuments_AcmeProductsFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	log := zaptest.NewLogger(t)
	mem := newMem()
	notify := &fakeNotifier{}

	projects := NewProjectService(mem, mem, nil, 0, log)
	schema := NewSchemaService(mem, log)
	docs := NewDocumentService(docRepo{mem}, notify)

	p, err := projects.Create(ctx, "Acme", 0)
	require.NoError(t, err)
	require.NoError(t, schema.CreateTable(ctx, p.ProjectID, "products"))
	require.NoError(t, schema.AddColumn(ctx, p.ProjectID, "products", "price", "NUMERIC(10,2)"))

	inserted, err := docs.Insert(ctx, p.ProjectID, "products", map[string]any{"price": 9.99})
	require.NoError(t, err)
	require.Equal(t, int32(1), inserted["id"])

	rows, err := docs.List(ctx, p.ProjectID, "products")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int32(1), rows[0]["id"])
	require.Equal(t, 9.99, rows[0]["price"])

	require.Len(t, notify.changes, 1)
	c := notify.changes[0]
	require.Equal(t, p.ProjectID, c.projectID)
	require.Equal(t, "products", c.table)
	require.Equal(t, model.EventInsert, c.event)
}

func TestDocuments_InsertValidatesKeys(t *testing.T) {
	t.Parallel()
	mem := newMem()
	notify := &fakeNotifier{}
	docs := NewDocumentService(docRepo{mem}, notify)

	_, err := docs.Insert(context.Background(), "project_1", "products", map[string]any{`price" = 0; --`: 1})
	require.ErrorIs(t, err, errs.ErrValidation)
	_, err = docs.Insert(context.Background(), "project_1", "bad table", map[string]any{"price": 1})
	require.ErrorIs(t, err, errs.ErrValidation)
	_, err = docs.List(context.Background(), "project_1", "x;y")
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Empty(t, notify.changes)
}

func TestDocuments_UpdateAuthUser_DropsProtectedFields(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	log := zaptest.NewLogger(t)
	mem := newMem()
	notify := &fakeNotifier{}

	p, err := NewProjectService(mem, mem, nil, 0, log).Create(ctx, "Acme", 0)
	require.NoError(t, err)
	mem.dbs[p.ProjectID]["auth_users"].cols = []string{"id", "email", "name", "password_hash", "created_at", "otp_secret"}

	docs := NewDocumentService(docRepo{mem}, notify)
	_, err = docs.Insert(ctx, p.ProjectID, "auth_users", map[string]any{
		"email": "a@acme.io", "name": "Alice", "password_hash": "original", "created_at": "2024-01-01",
	})
	require.NoError(t, err)

	got, err := docs.UpdateAuthUser(ctx, p.ProjectID, 1, map[string]any{
		"id":            99,
		"password_hash": "attacker",
		"created_at":    "1970-01-01",
		"name":          "Mallory",
	})
	require.NoError(t, err)
	require.Equal(t, "Mallory", got["name"])
	require.NotContains(t, got, "password_hash")
	require.NotContains(t, got, "otp_secret")

	stored := mem.dbs[p.ProjectID]["auth_users"].rows[0]
	require.Equal(t, int32(1), stored["id"])
	require.Equal(t, "original", stored["password_hash"])
	require.Equal(t, "2024-01-01", stored["created_at"])

	// only protected fields: nothing left to update
	_, err = docs.UpdateAuthUser(ctx, p.ProjectID, 1, map[string]any{"id": 5})
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = docs.UpdateAuthUser(ctx, p.ProjectID, 42, map[string]any{"name": "x"})
	require.ErrorIs(t, err, errs.ErrNotFound)
	_, err = docs.UpdateAuthUser(ctx, p.ProjectID, 0, map[string]any{"name": "x"})
	require.ErrorIs(t, err, errs.ErrValidation)

	rows, err := docs.List(ctx, p.ProjectID, "auth_users")
	require.NoError(t, err)
	require.NotContains(t, rows[0], "password_hash")

	events := []string{}
	for _, c := range notify.changes {
		events = append(events, c.event)
	}
	require.Equal(t, []string{model.EventInsert, model.EventUpdate}, events)
}
