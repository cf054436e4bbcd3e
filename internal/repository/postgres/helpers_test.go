package postgres

import (
	"context"
	"errors"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

// fakeTenants hands out one mock pool and records which tenant was asked for.
type fakeTenants struct {
	pool  PgxPool
	err   error
	asked []string
}

func (f *fakeTenants) Tenant(_ context.Context, projectID string) (PgxPool, func(), error) {
	f.asked = append(f.asked, projectID)
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.pool, func() {}, nil
}

func newTenants(t *testing.T) (*fakeTenants, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &fakeTenants{pool: mock}, mock
}

var errConnect = errors.New("connect refused")
