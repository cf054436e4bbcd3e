// Package model defines domain entities used by services and repositories.
package model

import (
	"time"
)

// Project is a tenant. Its ID doubles as the name of the tenant's physical database.
type Project struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	AuthorizedURLs []string  `json:"authorized_urls"`
	StorageQuotaMB int64     `json:"storage_quota_mb"`
	CreatedAt      time.Time `json:"created_at"`
}

// ProjectAccess is the subset of a project needed by the access gate.
type ProjectAccess struct {
	ID             string
	APIKeyHash     string
	AuthorizedURLs []string
}

// ProvisionedProject is returned once at creation; APIKey is never stored in plaintext.
type ProvisionedProject struct {
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
	APIKey    string `json:"apiKey"`
	Message   string `json:"message"`
}

// Document is a row of a tenant table keyed by column name.
type Document map[string]any

// Column describes a column as reported by information_schema.
type Column struct {
	Name       string  `json:"column_name"`
	DataType   string  `json:"data_type"`
	UDTName    string  `json:"udt_name"`
	MaxLength  *int32  `json:"character_maximum_length"`
	IsNullable string  `json:"is_nullable"`
	Default    *string `json:"column_default"`
}

// Table is a tenant table with its columns.
type Table struct {
	Name    string   `json:"table_name"`
	Columns []Column `json:"columns"`
}

// Index describes a non-primary-key index on a tenant table.
type Index struct {
	Name       string   `json:"indexname"`
	Definition string   `json:"indexdef"`
	Columns    []string `json:"columns"`
	Unique     bool     `json:"is_unique"`
}

// Extension is a PostgreSQL extension available to a tenant database.
type Extension struct {
	Name             string  `json:"name"`
	DefaultVersion   *string `json:"default_version"`
	InstalledVersion *string `json:"installed_version"`
	Comment          *string `json:"comment"`
	Installed        bool    `json:"installed"`
}

// LogEntry is a row of the append-only tenant `logs` table.
type LogEntry struct {
	ID        int64          `json:"id"`
	ProjectID string         `json:"project_id"`
	Endpoint  string         `json:"endpoint"`
	Method    string         `json:"method"`
	Status    int            `json:"status"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// Credentials holds the login-relevant columns of an auth_users row.
type Credentials struct {
	UserID       int64
	PasswordHash string
	Expiry       string
	Status       string
}

// Session is an issued tenant session token.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthResult is returned by signup, login and Google sign-in.
type AuthResult struct {
	User  Document `json:"user"`
	Token string   `json:"token"`
}

// StorageInfo reports a project's storage usage against its quota.
type StorageInfo struct {
	ProjectID       string `json:"projectId"`
	QuotaMB         int64  `json:"quotaMb"`
	UsedMB          int64  `json:"usedMb"`
	AvailableDiskMB int64  `json:"availableDiskMb"`
}

// FileInfo describes a stored object.
type FileInfo struct {
	Name       string    `json:"name"`
	SizeBytes  int64     `json:"sizeBytes"`
	SizeMB     float64   `json:"sizeMb"`
	ModifiedAt time.Time `json:"modifiedAt"`
	Ext        string    `json:"ext"`
	MimeType   string    `json:"mimetype,omitempty"`
}

// ChangeEvent kinds broadcast to realtime subscribers.
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// MigrationReport lists the columns added per system table by one migration run.
type MigrationReport struct {
	Added map[string][]string `json:"added"`
}
