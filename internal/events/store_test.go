package events

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/db"
)

func newRunner(t *testing.T) (*db.Runner, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return db.NewRunner(mock), mock
}

func TestNextSequence(t *testing.T) {
	runner, mock := newRunner(t)
	repo := NewSequenceRepository(runner)

	mock.ExpectQuery(`INSERT INTO event_sequence`).
		WithArgs("o1").
		WillReturnRows(pgxmock.NewRows([]string{"last_sequence"}).AddRow(int64(3)))

	seq, err := repo.NextSequence(context.Background(), "o1")
	require.NoError(t, err)
	require.Equal(t, int64(3), seq)

	_, err = repo.NextSequence(context.Background(), "")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckpoints(t *testing.T) {
	runner, mock := newRunner(t)
	cps := NewCheckpoints(runner)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT last_sequence`).
		WithArgs("c", "o1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO event_dedup_checkpoint`).
		WithArgs("c", "o1", int64(4)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT last_sequence`).
		WithArgs("c", "o1").
		WillReturnRows(pgxmock.NewRows([]string{"last_sequence"}).AddRow(int64(4)))

	_, ok, err := cps.LastSequence(ctx, "c", "o1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, cps.Advance(ctx, "c", "o1", 4))

	last, ok, err := cps.LastSequence(ctx, "c", "o1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(4), last)
	require.NoError(t, mock.ExpectationsWereMet())
}
