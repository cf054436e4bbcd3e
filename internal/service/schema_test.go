package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/zerobase/internal/errs"
)

func newSchemaFixture(t *testing.T) (*SchemaServiceImpl, *memTenants, string) {
	t.Helper()
	mem := newMem()
	ps := NewProjectService(mem, mem, nil, 0, zaptest.NewLogger(t))
	p, err := ps.Create(context.Background(), "Acme", 0)
	require.NoError(t, err)
	mem.calls = nil
	return NewSchemaService(mem, zaptest.NewLogger(t)), mem, p.ProjectID
}

func TestSchema_RejectsUnsafeInputBeforeSQL(t *testing.T) {
	t.Parallel()
	s, mem, pid := newSchemaFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		call func() error
	}{
		{"table with semicolon", func() error { return s.CreateTable(ctx, pid, "x; DROP TABLE users") }},
		{"quoted table", func() error { return s.DropTable(ctx, pid, `a"b`) }},
		{"column with space", func() error { return s.AddColumn(ctx, pid, "products", "unit price", "TEXT") }},
		{"injected type", func() error { return s.AddColumn(ctx, pid, "products", "price", "TEXT; DROP TABLE x") }},
		{"unknown type", func() error { return s.AddColumn(ctx, pid, "products", "price", "MONEYBAGS") }},
		{"index without columns", func() error {
			_, err := s.CreateIndex(ctx, pid, "products", nil, "btree", false)
			return err
		}},
		{"index bad column", func() error {
			_, err := s.CreateIndex(ctx, pid, "products", []string{"ok", "1bad"}, "btree", false)
			return err
		}},
		{"index bad method", func() error {
			_, err := s.CreateIndex(ctx, pid, "products", []string{"name"}, "rtree", false)
			return err
		}},
		{"drop pkey", func() error { return s.DropIndex(ctx, pid, "products", "products_pkey") }},
		{"drop foreign index", func() error { return s.DropIndex(ctx, pid, "products", "users_email_key") }},
		{"drop idx pkey", func() error { return s.DropIndex(ctx, pid, "products", "idx_products_pkey") }},
		{"unsafe extension", func() error { return s.EnableExtension(ctx, pid, "file_fdw") }},
		{"unknown extension", func() error { return s.DisableExtension(ctx, pid, "adminpack") }},
	}
	for _, tc := range cases {
		if err := tc.call(); !errors.Is(err, errs.ErrValidation) {
			t.Fatalf("%s: want validation error, got %v", tc.name, err)
		}
	}
	require.Empty(t, mem.calls, "no repository call may happen for rejected input")
}

func TestSchema_CreateIndex_DeterministicName(t *testing.T) {
	t.Parallel()
	s, mem, pid := newSchemaFixture(t)
	ctx := context.Background()

	name, err := s.CreateIndex(ctx, pid, "users", []string{"email"}, "", false)
	require.NoError(t, err)
	require.Equal(t, "idx_users_email", name)

	again, err := s.CreateIndex(ctx, pid, "users", []string{"email"}, "", false)
	require.NoError(t, err)
	require.Equal(t, name, again)
	require.Equal(t, []string{
		"CreateIndex idx_users_email btree false",
		"CreateIndex idx_users_email btree false",
	}, mem.calls)

	require.NoError(t, s.DropIndex(ctx, pid, "users", name))
}

func TestSchema_TableLifecycle(t *testing.T) {
	t.Parallel()
	s, _, pid := newSchemaFixture(t)
	ctx := context.Background()

	require.NoError(t, s.CreateTable(ctx, pid, "products"))
	require.ErrorIs(t, s.CreateTable(ctx, pid, "products"), errs.ErrConflict)
	require.NoError(t, s.AddColumn(ctx, pid, "products", "price", "numeric(10, 2)"))
	require.ErrorIs(t, s.AddColumn(ctx, pid, "ghost", "price", "TEXT"), errs.ErrNotFound)

	tables, err := s.Tables(ctx, pid)
	require.NoError(t, err)
	var found bool
	for _, tb := range tables {
		if tb.Name == "products" {
			found = true
			require.Len(t, tb.Columns, 2)
		}
	}
	require.True(t, found)

	require.NoError(t, s.DropTable(ctx, pid, "products"))
	require.NoError(t, s.EnableExtension(ctx, pid, "pgcrypto"))
}
