package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/zerobase/internal/errs"
	"github.com/and161185/zerobase/internal/model"
)

// UserRepo implements UserRepository on the auth_users table of tenant databases.
type UserRepo struct{ tenants TenantConnector }

// NewUserRepo constructs a user repository.
func NewUserRepo(tenants TenantConnector) *UserRepo { return &UserRepo{tenants: tenants} }

func (r *UserRepo) one(ctx context.Context, projectID, q string, args ...any) (model.Document, error) {
	pool, release, err := r.tenants.Tenant(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer release()
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

func (r *UserRepo) exec(ctx context.Context, projectID, q string, args ...any) error {
	pool, release, err := r.tenants.Tenant(ctx, projectID)
	if err != nil {
		return err
	}
	defer release()
	tag, err := pool.Exec(ctx, q, args...)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, projectID, email, name, passwordHash string) (model.Document, error) {
	const q = `
INSERT INTO auth_users (email, password_hash, name)
VALUES ($1, $2, $3)
RETURNING *`
	doc, err := r.one(ctx, projectID, q, email, passwordHash, name)
	if errors.Is(err, errs.ErrConflict) {
		return nil, fmt.Errorf("%w: user already exists", errs.ErrConflict)
	}
	return doc, err
}

// Credentials selects the login fields of a user by email.
func (r *UserRepo) Credentials(ctx context.Context, projectID, email string) (model.Credentials, error) {
	const q = `
SELECT id, COALESCE(password_hash, ''), COALESCE(jwt_expiry, ''), COALESCE(status, 'active')
FROM auth_users WHERE email=$1`
	pool, release, err := r.tenants.Tenant(ctx, projectID)
	if err != nil {
		return model.Credentials{}, err
	}
	defer release()
	var c model.Credentials
	err = pool.QueryRow(ctx, q, email).Scan(&c.UserID, &c.PasswordHash, &c.Expiry, &c.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Credentials{}, errs.ErrNotFound
	}
	if err != nil {
		return model.Credentials{}, classify(err)
	}
	return c, nil
}

// RecordLogin stamps last_login, last_ip and login_count and clears failed_attempts.
func (r *UserRepo) RecordLogin(ctx context.Context, projectID string, userID int64, ip string) (model.Document, error) {
	const q = `
UPDATE auth_users
SET last_login = NOW(), last_ip = $2, login_count = COALESCE(login_count, 0) + 1, failed_attempts = 0
WHERE id = $1
RETURNING *`
	return r.one(ctx, projectID, q, userID, ip)
}

// RecordFailure increments failed_attempts and stamps last_failed_attempt.
func (r *UserRepo) RecordFailure(ctx context.Context, projectID string, userID int64) error {
	const q = `
UPDATE auth_users
SET failed_attempts = COALESCE(failed_attempts, 0) + 1, last_failed_attempt = NOW()
WHERE id = $1`
	return r.exec(ctx, projectID, q, userID)
}

// UpsertGoogle returns the user linked to googleID. Otherwise the user with the
// same email is linked, or a new one is created.
func (r *UserRepo) UpsertGoogle(ctx context.Context, projectID, googleID, email, name string) (model.Document, error) {
	const sel = `SELECT * FROM auth_users WHERE google_id = $1 LIMIT 1`
	doc, err := r.one(ctx, projectID, sel, googleID)
	if err == nil || !errors.Is(err, errs.ErrNotFound) {
		return doc, err
	}

	const ups = `
INSERT INTO auth_users (email, google_id, name)
VALUES ($1, $2, NULLIF($3, ''))
ON CONFLICT (email) DO UPDATE
SET google_id = COALESCE(auth_users.google_id, EXCLUDED.google_id),
    name = COALESCE(auth_users.name, EXCLUDED.name)
RETURNING *`
	return r.one(ctx, projectID, ups, email, googleID, name)
}

// Get selects one user.
func (r *UserRepo) Get(ctx context.Context, projectID string, userID int64) (model.Document, error) {
	return r.one(ctx, projectID, `SELECT * FROM auth_users WHERE id = $1`, userID)
}

// List selects every user, newest first.
func (r *UserRepo) List(ctx context.Context, projectID string) ([]model.Document, error) {
	pool, release, err := r.tenants.Tenant(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer release()
	rows, err := pool.Query(ctx, `SELECT * FROM auth_users ORDER BY id DESC`)
	if err != nil {
		return nil, classify(err)
	}
	return collectDocuments(rows)
}

// Delete removes one user.
func (r *UserRepo) Delete(ctx context.Context, projectID string, userID int64) error {
	return r.exec(ctx, projectID, `DELETE FROM auth_users WHERE id = $1`, userID)
}

// SetOTPSecret stores a TOTP secret.
func (r *UserRepo) SetOTPSecret(ctx context.Context, projectID string, userID int64, secret string) error {
	return r.exec(ctx, projectID, `UPDATE auth_users SET otp_secret = $2 WHERE id = $1`, userID, secret)
}

// SetExpiry stores the per-user session lifetime.
func (r *UserRepo) SetExpiry(ctx context.Context, projectID string, userID int64, expiry string) error {
	return r.exec(ctx, projectID, `UPDATE auth_users SET jwt_expiry = $2 WHERE id = $1`, userID, expiry)
}
