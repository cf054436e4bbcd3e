// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/zerobase/internal/model"
)

// UserRepository manages the auth_users table of a tenant database.
type UserRepository interface {
	// Create inserts a user with a password hash. Duplicate emails yield errs.ErrConflict.
	Create(ctx context.Context, projectID, email, name, passwordHash string) (model.Document, error)
	// Credentials loads login fields by email.
	Credentials(ctx context.Context, projectID, email string) (model.Credentials, error)
	// RecordLogin stamps a successful login and returns the updated row.
	RecordLogin(ctx context.Context, projectID string, userID int64, ip string) (model.Document, error)
	// RecordFailure increments failed_attempts.
	RecordFailure(ctx context.Context, projectID string, userID int64) error
	// UpsertGoogle finds a user by Google subject or email, creating one when absent.
	UpsertGoogle(ctx context.Context, projectID, googleID, email, name string) (model.Document, error)
	// Get loads one user.
	Get(ctx context.Context, projectID string, userID int64) (model.Document, error)
	// List returns all users, newest first.
	List(ctx context.Context, projectID string) ([]model.Document, error)
	// Delete removes a user; errs.ErrNotFound when absent.
	Delete(ctx context.Context, projectID string, userID int64) error
	// SetOTPSecret stores a TOTP secret.
	SetOTPSecret(ctx context.Context, projectID string, userID int64, secret string) error
	// SetExpiry stores the per-user session lifetime.
	SetExpiry(ctx context.Context, projectID string, userID int64, expiry string) error
}
