package download

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"tubecaster/internal/models"
	"tubecaster/internal/test"
	"tubecaster/pkg/tasks"
)

func TestGuardSubmitWinsClaim(t *testing.T) {
	_, mock := test.NewMockDB(t)
	enqueuer := &test.MockTaskEnqueuer{}
	guard := NewGuard(enqueuer)

	mock.ExpectExec(`UPDATE episodes SET status = \$1 WHERE id = \$2 AND status IN \(\$3, \$4\)`).
		WithArgs(models.StatusDownloading, "ep1", models.StatusPending, models.StatusFailed).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.True(t, guard.Submit("ep1"))
	assert.Len(t, enqueuer.EnqueuedTasks, 1)
	assert.Equal(t, tasks.TypeDownloadEpisode, enqueuer.EnqueuedTasks[0].Type())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGuardSubmitLosesClaim(t *testing.T) {
	_, mock := test.NewMockDB(t)
	enqueuer := &test.MockTaskEnqueuer{}
	guard := NewGuard(enqueuer)

	// Another submitter already flipped the status; zero rows affected.
	mock.ExpectExec(`UPDATE episodes SET status = \$1 WHERE id = \$2 AND status IN \(\$3, \$4\)`).
		WithArgs(models.StatusDownloading, "ep1", models.StatusPending, models.StatusFailed).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.False(t, guard.Submit("ep1"))
	assert.Empty(t, enqueuer.EnqueuedTasks)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGuardSubmitRollsBackOnEnqueueFailure(t *testing.T) {
	_, mock := test.NewMockDB(t)
	enqueuer := &test.MockTaskEnqueuer{Err: errors.New("queue full")}
	guard := NewGuard(enqueuer)

	mock.ExpectExec(`UPDATE episodes SET status = \$1 WHERE id = \$2 AND status IN \(\$3, \$4\)`).
		WithArgs(models.StatusDownloading, "ep1", models.StatusPending, models.StatusFailed).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE episodes SET status = \$1 WHERE id = \$2 AND status = \$3`).
		WithArgs(models.StatusPending, "ep1", models.StatusDownloading).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.False(t, guard.Submit("ep1"))
	assert.Empty(t, enqueuer.EnqueuedTasks)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepStale(t *testing.T) {
	_, mock := test.NewMockDB(t)

	mock.ExpectExec(`UPDATE episodes SET status = \$1 WHERE status = \$2`).
		WithArgs(models.StatusPending, models.StatusDownloading).
		WillReturnResult(sqlmock.NewResult(0, 3))

	SweepStale()

	assert.NoError(t, mock.ExpectationsWereMet())
}
