package postgres

import (
	"context"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/zerobase/internal/errs"
	"github.com/and161185/zerobase/internal/ident"
)

func TestSchemaRepo_CreateDropTable(t *testing.T) {
	tenants, mock := newTenants(t)
	defer mock.Close()
	r := NewSchemaRepo(tenants)
	ctx := context.Background()
	products := ident.MustParse("products")

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "products" (id SERIAL PRIMARY KEY)`)).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, r.CreateTable(ctx, "project_1", products))

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "products"`)).
		WillReturnError(&pgconn.PgError{Code: "42P07", Message: `relation "products" already exists`})
	err := r.CreateTable(ctx, "project_1", products)
	require.ErrorIs(t, err, errs.ErrConflict)
	require.Contains(t, err.Error(), `relation "products" already exists`)

	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "products" CASCADE`)).
		WillReturnResult(pgxmock.NewResult("DROP TABLE", 0))
	require.NoError(t, r.DropTable(ctx, "project_1", products))

	require.Equal(t, []string{"project_1", "project_1", "project_1"}, tenants.asked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaRepo_AddColumn(t *testing.T) {
	tenants, mock := newTenants(t)
	defer mock.Close()
	r := NewSchemaRepo(tenants)
	typ, err := ident.ParseType("numeric(10, 2)")
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta(`ALTER TABLE "products" ADD COLUMN "price" NUMERIC(10,2)`)).
		WillReturnResult(pgxmock.NewResult("ALTER TABLE", 0))
	require.NoError(t, r.AddColumn(context.Background(), "project_1", ident.MustParse("products"), ident.MustParse("price"), typ))

	mock.ExpectExec(`ADD COLUMN "price"`).
		WillReturnError(&pgconn.PgError{Code: "42701", Message: `column "price" of relation "products" already exists`})
	err = r.AddColumn(context.Background(), "project_1", ident.MustParse("products"), ident.MustParse("price"), typ)
	require.ErrorIs(t, err, errs.ErrConflict)
}

func TestSchemaRepo_TenantError(t *testing.T) {
	r := NewSchemaRepo(&fakeTenants{err: errConnect})
	err := r.CreateTable(context.Background(), "project_1", ident.MustParse("t"))
	require.ErrorIs(t, err, errConnect)
}

func TestSchemaRepo_Tables_GroupsColumns(t *testing.T) {
	tenants, mock := newTenants(t)
	defer mock.Close()
	r := NewSchemaRepo(tenants)

	str := func(s string) *string { return &s }
	n255 := int32(255)
	cols := []string{"table_name", "column_name", "data_type", "udt_name", "character_maximum_length", "is_nullable", "column_default"}
	mock.ExpectQuery(`FROM information_schema.tables t LEFT JOIN information_schema.columns c`).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("empty", (*string)(nil), (*string)(nil), (*string)(nil), (*int32)(nil), (*string)(nil), (*string)(nil)).
			AddRow("products", str("id"), str("integer"), str("int4"), (*int32)(nil), str("NO"), str("nextval('products_id_seq'::regclass)")).
			AddRow("products", str("name"), str("character varying"), str("varchar"), &n255, str("YES"), (*string)(nil)))

	tables, err := r.Tables(context.Background(), "project_1")
	require.NoError(t, err)
	require.Len(t, tables, 2)
	require.Equal(t, "empty", tables[0].Name)
	require.Empty(t, tables[0].Columns)
	require.Len(t, tables[1].Columns, 2)
	require.Equal(t, "varchar", tables[1].Columns[1].UDTName)
	require.Equal(t, int32(255), *tables[1].Columns[1].MaxLength)
}

func TestSchemaRepo_CreateIndex_DeterministicAndIdempotent(t *testing.T) {
	tenants, mock := newTenants(t)
	defer mock.Close()
	r := NewSchemaRepo(tenants)
	ctx := context.Background()
	users := ident.MustParse("users")
	email := ident.MustParse("email")
	btree, _ := ident.ParseIndexMethod("")

	stmt := regexp.QuoteMeta(`CREATE INDEX CONCURRENTLY IF NOT EXISTS "idx_users_email" ON "users" USING btree ("email")`)
	mock.ExpectExec(stmt).WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))
	mock.ExpectExec(stmt).WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))

	for i := 0; i < 2; i++ {
		name, err := r.CreateIndex(ctx, "project_1", users, []ident.Name{email}, btree, false)
		require.NoError(t, err)
		require.Equal(t, "idx_users_email", name.String())
	}

	gin, _ := ident.ParseIndexMethod("gin")
	mock.ExpectExec(regexp.QuoteMeta(`CREATE UNIQUE INDEX CONCURRENTLY IF NOT EXISTS "idx_users_email_name" ON "users" USING gin ("email", "name")`)).
		WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))
	_, err := r.CreateIndex(ctx, "project_1", users, []ident.Name{email, ident.MustParse("name")}, gin, true)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaRepo_IndexesAndDrop(t *testing.T) {
	tenants, mock := newTenants(t)
	defer mock.Close()
	r := NewSchemaRepo(tenants)
	ctx := context.Background()

	mock.ExpectQuery(`FROM pg_indexes pi WHERE pi.schemaname = 'public' AND pi.tablename = \$1 AND pi.indexname NOT LIKE '%_pkey'`).
		WithArgs("users").
		WillReturnRows(pgxmock.NewRows([]string{"indexname", "indexdef", "columns", "is_unique"}).
			AddRow("idx_users_email", "CREATE INDEX idx_users_email ON public.users USING btree (email)", []string{"email"}, false))
	idx, err := r.Indexes(ctx, "project_1", ident.MustParse("users"))
	require.NoError(t, err)
	require.Len(t, idx, 1)
	require.Equal(t, []string{"email"}, idx[0].Columns)

	name, err := ident.ParseDroppableIndex("idx_users_email")
	require.NoError(t, err)
	mock.ExpectExec(regexp.QuoteMeta(`DROP INDEX CONCURRENTLY IF EXISTS "idx_users_email"`)).
		WillReturnResult(pgxmock.NewResult("DROP INDEX", 0))
	require.NoError(t, r.DropIndex(ctx, "project_1", name))
}

func TestSchemaRepo_Extensions(t *testing.T) {
	tenants, mock := newTenants(t)
	defer mock.Close()
	r := NewSchemaRepo(tenants)
	ctx := context.Background()
	ver := "1.1"

	mock.ExpectQuery(`FROM pg_available_extensions ae LEFT JOIN pg_extension e`).
		WillReturnRows(pgxmock.NewRows([]string{"name", "default_version", "installed_version", "comment", "installed"}).
			AddRow("uuid-ossp", &ver, &ver, (*string)(nil), true).
			AddRow("pgcrypto", &ver, (*string)(nil), (*string)(nil), false))
	ext, err := r.Extensions(ctx, "project_1")
	require.NoError(t, err)
	require.Len(t, ext, 2)
	require.True(t, ext[0].Installed)

	uuidOssp, err := ident.ParseExtension("uuid-ossp")
	require.NoError(t, err)
	mock.ExpectExec(regexp.QuoteMeta(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`)).
		WillReturnResult(pgxmock.NewResult("CREATE EXTENSION", 0))
	require.NoError(t, r.EnableExtension(ctx, "project_1", uuidOssp))

	mock.ExpectExec(regexp.QuoteMeta(`DROP EXTENSION IF EXISTS "uuid-ossp" CASCADE`)).
		WillReturnResult(pgxmock.NewResult("DROP EXTENSION", 0))
	require.NoError(t, r.DisableExtension(ctx, "project_1", uuidOssp))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaRepo_MigrateSystemTables_AddsOnlyMissing(t *testing.T) {
	tenants, mock := newTenants(t)
	defer mock.Close()
	r := NewSchemaRepo(tenants)

	mock.ExpectExec(`CREATE OR REPLACE FUNCTION update_updated_at_column\(\)`).
		WillReturnResult(pgxmock.NewResult("CREATE FUNCTION", 0))

	// auth_users: everything present except jwt_expiry and updated_at
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "auth_users" (id SERIAL PRIMARY KEY)`)).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	live := pgxmock.NewRows([]string{"column_name"})
	for _, c := range systemTables[0].columns {
		if c.name == "jwt_expiry" || c.name == "updated_at" {
			continue
		}
		live.AddRow(c.name)
	}
	mock.ExpectQuery(`SELECT column_name::text FROM information_schema.columns`).
		WithArgs("auth_users").
		WillReturnRows(live)
	mock.ExpectExec(regexp.QuoteMeta(`ALTER TABLE "auth_users" ADD COLUMN IF NOT EXISTS "jwt_expiry" VARCHAR(10) DEFAULT '365d'`)).
		WillReturnResult(pgxmock.NewResult("ALTER TABLE", 0))
	mock.ExpectExec(regexp.QuoteMeta(`ALTER TABLE "auth_users" ADD COLUMN IF NOT EXISTS "updated_at" TIMESTAMP DEFAULT NOW()`)).
		WillReturnError(&pgconn.PgError{Code: "42501", Message: "permission denied"})
	mock.ExpectExec(`idx_auth_users_email`).WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))
	mock.ExpectExec(`idx_auth_users_google_id`).WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))
	mock.ExpectExec(regexp.QuoteMeta(`DROP TRIGGER IF EXISTS "update_auth_users_updated_at" ON "auth_users"`)).
		WillReturnResult(pgxmock.NewResult("DROP TRIGGER", 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TRIGGER "update_auth_users_updated_at" BEFORE UPDATE ON "auth_users"`)).
		WillReturnResult(pgxmock.NewResult("CREATE TRIGGER", 0))

	// logs: fresh table, only id exists
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "logs" (id SERIAL PRIMARY KEY)`)).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectQuery(`SELECT column_name::text FROM information_schema.columns`).
		WithArgs("logs").
		WillReturnRows(pgxmock.NewRows([]string{"column_name"}).AddRow("id"))
	for _, c := range systemTables[1].columns[1:] {
		mock.ExpectExec(regexp.QuoteMeta(`ALTER TABLE "logs" ADD COLUMN IF NOT EXISTS "` + c.name + `"`)).
			WillReturnResult(pgxmock.NewResult("ALTER TABLE", 0))
	}
	mock.ExpectExec(`idx_logs_created_at`).WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))

	report, err := r.MigrateSystemTables(context.Background(), "project_1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "auth_users.updated_at")
	require.Equal(t, []string{"jwt_expiry"}, report.Added["auth_users"])
	require.Len(t, report.Added["logs"], len(systemTables[1].columns)-1)
	require.NoError(t, mock.ExpectationsWereMet())
}
