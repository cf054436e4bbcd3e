package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Database manages tables, columns, documents, indexes and extensions of the
// project's database.
type Database struct{ c *Client }

func tablePath(table string, rest ...string) string {
	p := "/db/tables/" + url.PathEscape(table)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

func (d *Database) do(ctx context.Context, method, path string, in, out any) error {
	return d.c.doJSON(ctx, method, path, d.c.projectQuery(nil), in, out)
}

// Tables lists tables with their columns.
func (d *Database) Tables(ctx context.Context) ([]Table, error) {
	var out struct {
		Tables []Table `json:"tables"`
	}
	err := d.do(ctx, http.MethodGet, "/db/tables", nil, &out)
	return out.Tables, err
}

// CreateTable creates an empty table with an id primary key and created_at.
func (d *Database) CreateTable(ctx context.Context, name string) error {
	return d.do(ctx, http.MethodPost, "/db/tables", map[string]string{"tableName": name}, nil)
}

// DropTable drops the table.
func (d *Database) DropTable(ctx context.Context, name string) error {
	return d.do(ctx, http.MethodDelete, tablePath(name), nil, nil)
}

// AddColumn adds a column of one of the whitelisted types.
func (d *Database) AddColumn(ctx context.Context, table, column, typ string) error {
	return d.do(ctx, http.MethodPost, tablePath(table, "columns"), map[string]string{"name": column, "type": typ}, nil)
}

// Documents returns every row of table.
func (d *Database) Documents(ctx context.Context, table string) ([]Document, error) {
	var out struct {
		Documents []Document `json:"documents"`
	}
	err := d.do(ctx, http.MethodGet, tablePath(table, "documents"), nil, &out)
	return out.Documents, err
}

// Insert adds a row and returns it as stored.
func (d *Database) Insert(ctx context.Context, table string, doc Document) (Document, error) {
	var out Document
	err := d.do(ctx, http.MethodPost, tablePath(table, "documents"), map[string]any{"document": doc}, &out)
	return out, err
}

// UpdateUser patches a row of auth_users.
func (d *Database) UpdateUser(ctx context.Context, userID int64, doc Document) (Document, error) {
	var out Document
	err := d.do(ctx, http.MethodPut, tablePath("auth_users", "documents", fmt.Sprint(userID)), map[string]any{"document": doc}, &out)
	return out, err
}

// Indexes lists non-primary-key indexes of table.
func (d *Database) Indexes(ctx context.Context, table string) ([]Index, error) {
	var out struct {
		Indexes []Index `json:"indexes"`
	}
	err := d.do(ctx, http.MethodGet, tablePath(table, "indexes"), nil, &out)
	return out.Indexes, err
}

// IndexSpec describes an index to create. Method defaults to btree.
type IndexSpec struct {
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
	Method  string   `json:"method,omitempty"`
}

// CreateIndex creates an index and returns its generated name.
func (d *Database) CreateIndex(ctx context.Context, table string, spec IndexSpec) (string, error) {
	var out struct {
		IndexName string `json:"indexName"`
	}
	err := d.do(ctx, http.MethodPost, tablePath(table, "indexes"), spec, &out)
	return out.IndexName, err
}

// DropIndex drops an index of table.
func (d *Database) DropIndex(ctx context.Context, table, index string) error {
	return d.do(ctx, http.MethodDelete, tablePath(table, "indexes", url.PathEscape(index)), nil, nil)
}

// Extensions lists available extensions and whether each is installed.
func (d *Database) Extensions(ctx context.Context) ([]Extension, error) {
	var out struct {
		Extensions []Extension `json:"extensions"`
	}
	err := d.do(ctx, http.MethodGet, "/db/extensions", nil, &out)
	return out.Extensions, err
}

// EnableExtension installs an extension.
func (d *Database) EnableExtension(ctx context.Context, name string) error {
	return d.do(ctx, http.MethodPost, "/db/extensions/enable", map[string]string{"name": name}, nil)
}

// DisableExtension removes an extension.
func (d *Database) DisableExtension(ctx context.Context, name string) error {
	return d.do(ctx, http.MethodPost, "/db/extensions/disable", map[string]string{"name": name}, nil)
}
