// Package tenant maps project identifiers to their physical databases.
package tenant

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Locator derives per-tenant connection targets from a shared connection
// authority: same host and credentials, database name replaced by the project id.
//
// Locate does not validate projectID. Callers pass only ids read from a
// stored project record.
type Locator struct {
	base *pgxpool.Config
}

// NewLocator parses dsn as the shared authority.
func NewLocator(dsn string) (*Locator, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse tenant dsn: %w", err)
	}
	return &Locator{base: cfg}, nil
}

// Locate returns a fresh pool config targeting the tenant database projectID.
func (l *Locator) Locate(projectID string) *pgxpool.Config {
	cfg := l.base.Copy()
	cfg.ConnConfig.Database = projectID
	return cfg
}
