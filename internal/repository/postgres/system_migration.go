package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/zerobase/internal/ident"
	"github.com/and161185/zerobase/internal/model"
)

type columnDef struct {
	name string
	def  string
}

type systemTable struct {
	name    ident.Name
	columns []columnDef
	indexes []string
}

// systemTables is the target shape of the tenant system tables. Columns are
// only ever added, never altered or dropped.
var systemTables = []systemTable{
	{
		name: ident.MustParse("auth_users"),
		columns: []columnDef{
			{"id", "SERIAL PRIMARY KEY"},
			{"email", "VARCHAR(255) UNIQUE NOT NULL"},
			{"name", "VARCHAR(255)"},
			{"password_hash", "VARCHAR(255)"},
			{"google_id", "VARCHAR(255)"},
			{"otp_secret", "VARCHAR(255)"},
			{"last_login", "TIMESTAMP"},
			{"last_ip", "VARCHAR(45)"},
			{"login_count", "INTEGER DEFAULT 0"},
			{"failed_attempts", "INTEGER DEFAULT 0"},
			{"last_failed_attempt", "TIMESTAMP"},
			{"status", "VARCHAR(20) DEFAULT 'active'"},
			{"email_verified", "BOOLEAN DEFAULT false"},
			{"phone", "VARCHAR(20)"},
			{"phone_verified", "BOOLEAN DEFAULT false"},
			{"jwt_expiry", "VARCHAR(10) DEFAULT '365d'"},
			{"preferences", "JSONB DEFAULT '{}'"},
			{"metadata", "JSONB DEFAULT '{}'"},
			{"created_at", "TIMESTAMP DEFAULT NOW()"},
			{"updated_at", "TIMESTAMP DEFAULT NOW()"},
		},
		indexes: []string{
			`CREATE INDEX IF NOT EXISTS idx_auth_users_email ON auth_users (email)`,
			`CREATE INDEX IF NOT EXISTS idx_auth_users_google_id ON auth_users (google_id)`,
		},
	},
	{
		name: ident.MustParse("logs"),
		columns: []columnDef{
			{"id", "SERIAL PRIMARY KEY"},
			{"project_id", "VARCHAR(255)"},
			{"endpoint", "VARCHAR(255)"},
			{"method", "VARCHAR(10)"},
			{"status", "INTEGER"},
			{"message", "TEXT"},
			{"metadata", "JSONB DEFAULT '{}'"},
			{"created_at", "TIMESTAMP DEFAULT NOW()"},
		},
		indexes: []string{
			`CREATE INDEX IF NOT EXISTS idx_logs_created_at ON logs (created_at DESC)`,
		},
	},
}

const updatedAtFunc = `
CREATE OR REPLACE FUNCTION update_updated_at_column()
RETURNS TRIGGER AS $$
BEGIN
    NEW.updated_at = NOW();
    RETURN NEW;
END;
$$ LANGUAGE plpgsql`

// MigrateSystemTables creates auth_users and logs when missing and adds any
// column absent from the live schema. Each statement autocommits; a failed
// column does not stop the others and already-added columns stay.
func (r *SchemaRepo) MigrateSystemTables(ctx context.Context, projectID string) (model.MigrationReport, error) {
	pool, release, err := r.tenants.Tenant(ctx, projectID)
	if err != nil {
		return model.MigrationReport{}, err
	}
	defer release()
	report := model.MigrationReport{Added: map[string][]string{}}
	var failures []error

	if _, err := pool.Exec(ctx, updatedAtFunc); err != nil {
		return report, classify(err)
	}

	for _, t := range systemTables {
		if _, err := pool.Exec(ctx, "CREATE TABLE IF NOT EXISTS "+t.name.Quote()+" (id SERIAL PRIMARY KEY)"); err != nil {
			return report, classify(err)
		}

		live, err := r.liveColumns(ctx, pool, t.name)
		if err != nil {
			return report, err
		}

		added := []string{}
		hasUpdatedAt := false
		for _, c := range t.columns {
			if c.name == "updated_at" {
				hasUpdatedAt = true
			}
			if _, ok := live[c.name]; ok {
				continue
			}
			q := "ALTER TABLE " + t.name.Quote() + " ADD COLUMN IF NOT EXISTS " + ident.MustParse(c.name).Quote() + " " + c.def
			if _, err := pool.Exec(ctx, q); err != nil {
				failures = append(failures, fmt.Errorf("%s.%s: %w", t.name, c.name, err))
				continue
			}
			added = append(added, c.name)
		}
		report.Added[t.name.String()] = added

		for _, ix := range t.indexes {
			if _, err := pool.Exec(ctx, ix); err != nil {
				failures = append(failures, fmt.Errorf("%s index: %w", t.name, err))
			}
		}

		if hasUpdatedAt {
			trigger := ident.MustParse("update_" + t.name.String() + "_updated_at").Quote()
			if _, err := pool.Exec(ctx, "DROP TRIGGER IF EXISTS "+trigger+" ON "+t.name.Quote()); err != nil {
				failures = append(failures, err)
				continue
			}
			q := "CREATE TRIGGER " + trigger + " BEFORE UPDATE ON " + t.name.Quote() +
				" FOR EACH ROW EXECUTE FUNCTION update_updated_at_column()"
			if _, err := pool.Exec(ctx, q); err != nil {
				failures = append(failures, err)
			}
		}
	}
	return report, errors.Join(failures...)
}

func (r *SchemaRepo) liveColumns(ctx context.Context, pool PgxPool, table ident.Name) (map[string]struct{}, error) {
	const q = `SELECT column_name::text FROM information_schema.columns WHERE table_schema = 'public' AND table_name = $1`
	rows, err := pool.Query(ctx, q, table.String())
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	live := map[string]struct{}{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		live[name] = struct{}{}
	}
	return live, rows.Err()
}
