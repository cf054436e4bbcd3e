package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/and161185/zerobase/internal/errs"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code string
		want error
	}{
		{"42P07", errs.ErrConflict},
		{"42701", errs.ErrConflict},
		{"42P04", errs.ErrConflict},
		{"23505", errs.ErrConflict},
		{"42P01", errs.ErrNotFound},
		{"3D000", errs.ErrNotFound},
		{"42703", errs.ErrValidation},
	}
	for _, c := range cases {
		err := classify(&pgconn.PgError{Code: c.code, Message: "engine says " + c.code})
		require.ErrorIs(t, err, c.want, c.code)
		require.Contains(t, err.Error(), "engine says "+c.code)
	}

	other := &pgconn.PgError{Code: "53300", Message: "too many connections"}
	require.Same(t, error(other), classify(other))

	plain := errors.New("plain")
	require.Equal(t, plain, classify(plain))
	require.NoError(t, classify(nil))
}
