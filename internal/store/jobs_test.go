package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/venuescout/venuescout/internal/venue"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewWithPool(mock, zap.NewNop()), mock
}

func TestEnqueueJob(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`INSERT INTO crawl_jobs`).
		WithArgs("venue-1", venue.ModeRealtime, 1000).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := s.EnqueueJob(context.Background(), "venue-1", venue.ModeRealtime, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteJobSuccess(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE crawl_jobs SET state`).
		WithArgs(venue.JobSuccess, (*string)(nil), int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.CompleteJob(context.Background(), 7, true, "")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteJobFailure(t *testing.T) {
	s, mock := newMockStore(t)
	reason := string(venue.ReasonRobotsDisallowed)
	mock.ExpectExec(`UPDATE crawl_jobs SET state`).
		WithArgs(venue.JobFail, &reason, int64(8)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.CompleteJob(context.Background(), 8, false, venue.ReasonRobotsDisallowed)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueDepth(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT state, count\(\*\) FROM crawl_jobs`).
		WillReturnRows(pgxmock.NewRows([]string{"state", "count"}).
			AddRow("pending", 3).
			AddRow("running", 1))

	depths, err := s.QueueDepth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, depths[venue.JobPending])
	assert.Equal(t, 1, depths[venue.JobRunning])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReapStuckJobs(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE crawl_jobs SET state = 'fail'`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE crawl_jobs SET state = 'pending'`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := s.ReapStuckJobs(context.Background(), 10*time.Second, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
