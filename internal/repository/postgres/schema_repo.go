package postgres

import (
	"context"
	"strings"

	"github.com/and161185/zerobase/internal/ident"
	"github.com/and161185/zerobase/internal/model"
)

// SchemaRepo implements SchemaRepository on tenant databases.
type SchemaRepo struct{ tenants TenantConnector }

// NewSchemaRepo constructs a schema repository.
func NewSchemaRepo(tenants TenantConnector) *SchemaRepo { return &SchemaRepo{tenants: tenants} }

func (r *SchemaRepo) exec(ctx context.Context, projectID, sql string) error {
	pool, release, err := r.tenants.Tenant(ctx, projectID)
	if err != nil {
		return err
	}
	defer release()
	_, err = pool.Exec(ctx, sql)
	return classify(err)
}

// Tables lists public base tables with their columns in ordinal order.
func (r *SchemaRepo) Tables(ctx context.Context, projectID string) ([]model.Table, error) {
	const q = `
SELECT t.table_name::text, c.column_name::text, c.data_type::text, c.udt_name::text,
       c.character_maximum_length::int, c.is_nullable::text, c.column_default::text
FROM information_schema.tables t
LEFT JOIN information_schema.columns c
       ON c.table_schema = t.table_schema AND c.table_name = t.table_name
WHERE t.table_schema = 'public' AND t.table_type = 'BASE TABLE'
ORDER BY t.table_name, c.ordinal_position`
	pool, release, err := r.tenants.Tenant(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer release()
	rows, err := pool.Query(ctx, q)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make([]model.Table, 0)
	for rows.Next() {
		var (
			table                     string
			name, dataType, udt, null *string
			maxLen                    *int32
			def                       *string
		)
		if err := rows.Scan(&table, &name, &dataType, &udt, &maxLen, &null, &def); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].Name != table {
			out = append(out, model.Table{Name: table, Columns: []model.Column{}})
		}
		if name == nil {
			continue
		}
		t := &out[len(out)-1]
		t.Columns = append(t.Columns, model.Column{
			Name:       *name,
			DataType:   deref(dataType),
			UDTName:    deref(udt),
			MaxLength:  maxLen,
			IsNullable: deref(null),
			Default:    def,
		})
	}
	return out, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// CreateTable creates table with the mandatory serial primary key id.
func (r *SchemaRepo) CreateTable(ctx context.Context, projectID string, table ident.Name) error {
	return r.exec(ctx, projectID, "CREATE TABLE "+table.Quote()+" (id SERIAL PRIMARY KEY)")
}

// DropTable drops table and everything depending on it.
func (r *SchemaRepo) DropTable(ctx context.Context, projectID string, table ident.Name) error {
	return r.exec(ctx, projectID, "DROP TABLE IF EXISTS "+table.Quote()+" CASCADE")
}

// AddColumn adds column of type typ to table.
func (r *SchemaRepo) AddColumn(ctx context.Context, projectID string, table, column ident.Name, typ ident.Type) error {
	return r.exec(ctx, projectID, "ALTER TABLE "+table.Quote()+" ADD COLUMN "+column.Quote()+" "+typ.String())
}

// Indexes lists non-primary-key indexes of table.
func (r *SchemaRepo) Indexes(ctx context.Context, projectID string, table ident.Name) ([]model.Index, error) {
	const q = `
SELECT pi.indexname::text, pi.indexdef,
       COALESCE((SELECT array_agg(a.attname::text ORDER BY x.n)
                 FROM pg_index i
                 JOIN pg_class ci ON ci.oid = i.indexrelid
                 JOIN pg_class ct ON ct.oid = i.indrelid
                 JOIN LATERAL unnest(i.indkey) WITH ORDINALITY AS x(k, n) ON true
                 JOIN pg_attribute a ON a.attrelid = ct.oid AND a.attnum = x.k
                 WHERE ci.relname = pi.indexname), '{}'::text[]) AS columns,
       COALESCE((SELECT i.indisunique FROM pg_index i
                 JOIN pg_class ci ON ci.oid = i.indexrelid
                 WHERE ci.relname = pi.indexname), false) AS is_unique
FROM pg_indexes pi
WHERE pi.schemaname = 'public' AND pi.tablename = $1 AND pi.indexname NOT LIKE '%_pkey'
ORDER BY pi.indexname`
	pool, release, err := r.tenants.Tenant(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer release()
	rows, err := pool.Query(ctx, q, table.String())
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make([]model.Index, 0)
	for rows.Next() {
		var ix model.Index
		if err := rows.Scan(&ix.Name, &ix.Definition, &ix.Columns, &ix.Unique); err != nil {
			return nil, err
		}
		if ix.Columns == nil {
			ix.Columns = []string{}
		}
		out = append(out, ix)
	}
	return out, rows.Err()
}

// CreateIndex builds the deterministic index without blocking writes.
// Repeated calls are no-ops.
func (r *SchemaRepo) CreateIndex(ctx context.Context, projectID string, table ident.Name, columns []ident.Name, method ident.IndexMethod, unique bool) (ident.Name, error) {
	name := ident.IndexName(table, columns)
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = c.Quote()
	}

	var b strings.Builder
	b.WriteString("CREATE ")
	if unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX CONCURRENTLY IF NOT EXISTS ")
	b.WriteString(name.Quote())
	b.WriteString(" ON ")
	b.WriteString(table.Quote())
	b.WriteString(" USING ")
	b.WriteString(method.String())
	b.WriteString(" (")
	b.WriteString(strings.Join(quoted, ", "))
	b.WriteString(")")

	if err := r.exec(ctx, projectID, b.String()); err != nil {
		return ident.Name{}, err
	}
	return name, nil
}

// DropIndex drops a program-generated index without blocking writes.
func (r *SchemaRepo) DropIndex(ctx context.Context, projectID string, index ident.Name) error {
	return r.exec(ctx, projectID, "DROP INDEX CONCURRENTLY IF EXISTS "+index.Quote())
}

// Extensions lists available extensions joined with the installed ones.
func (r *SchemaRepo) Extensions(ctx context.Context, projectID string) ([]model.Extension, error) {
	const q = `
SELECT ae.name::text, ae.default_version, ae.installed_version, ae.comment,
       (e.extname IS NOT NULL) AS installed
FROM pg_available_extensions ae
LEFT JOIN pg_extension e ON e.extname = ae.name
ORDER BY installed DESC, ae.name`
	pool, release, err := r.tenants.Tenant(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer release()
	rows, err := pool.Query(ctx, q)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make([]model.Extension, 0)
	for rows.Next() {
		var e model.Extension
		if err := rows.Scan(&e.Name, &e.DefaultVersion, &e.InstalledVersion, &e.Comment, &e.Installed); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EnableExtension installs an allow-listed extension.
func (r *SchemaRepo) EnableExtension(ctx context.Context, projectID string, ext ident.Extension) error {
	return r.exec(ctx, projectID, "CREATE EXTENSION IF NOT EXISTS "+ext.Quote())
}

// DisableExtension removes an allow-listed extension and its dependents.
func (r *SchemaRepo) DisableExtension(ctx context.Context, projectID string, ext ident.Extension) error {
	return r.exec(ctx, projectID, "DROP EXTENSION IF EXISTS "+ext.Quote()+" CASCADE")
}
