package reconcile

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRunRepairsDriftedCounters(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	mock.ExpectQuery(`SELECT c.id, c.used_count, COUNT\(u.id\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "used_count", "count"}).
			AddRow(5, 3, 4).
			AddRow(9, 2, 1))
	mock.ExpectExec(`UPDATE coupons SET used_count = \$2`).
		WithArgs(int64(5), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE coupons SET used_count = \$2`).
		WithArgs(int64(9), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := NewReconciler(conn, zerolog.Nop())
	repaired, err := rec.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, repaired)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunNoDriftIsANoop(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	mock.ExpectQuery(`SELECT c.id, c.used_count, COUNT\(u.id\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "used_count", "count"}))

	rec := NewReconciler(conn, zerolog.Nop())
	repaired, err := rec.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, repaired)
	require.NoError(t, mock.ExpectationsWereMet())
}
