package quota

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"tubecaster/internal/models"
	"tubecaster/internal/test"
)

func testLedger(limit int) *Ledger {
	return &Ledger{Platform: models.SourceYoutube, Zone: time.UTC, DailyLimit: limit}
}

func today(l *Ledger) string {
	return time.Now().In(l.Zone).Format("2006-01-02")
}

func expectDayRow(mock sqlmock.Sqlmock, date string) {
	mock.ExpectExec(`INSERT INTO quota_daily_usage`).
		WithArgs(models.SourceYoutube, date).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func expectNotBlocked(mock sqlmock.Sqlmock, date string) {
	rows := sqlmock.NewRows([]string{"platform", "usage_date", "request_count", "quota_units", "auto_sync_blocked"}).
		AddRow(models.SourceYoutube, date, 3, 3, false)
	mock.ExpectQuery(`SELECT \* FROM quota_daily_usage WHERE`).
		WithArgs(models.SourceYoutube, date).
		WillReturnRows(rows)
}

func TestReserveAutoWithinLimit(t *testing.T) {
	_, mock := test.NewMockDB(t)
	ledger := testLedger(100)
	date := today(ledger)

	expectDayRow(mock, date)
	expectNotBlocked(mock, date)
	mock.ExpectExec(`UPDATE quota_daily_usage`).
		WithArgs(1, models.SourceYoutube, date, 100).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO quota_daily_usage_method`).
		WithArgs(models.SourceYoutube, date, "videos.list", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := ledger.Reserve(MethodVideosList, Auto)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveAutoOverLimitBlocksDay(t *testing.T) {
	_, mock := test.NewMockDB(t)
	ledger := testLedger(100)
	date := today(ledger)

	expectDayRow(mock, date)
	expectNotBlocked(mock, date)
	// Conditional increment touches no rows: budget exhausted.
	mock.ExpectExec(`UPDATE quota_daily_usage`).
		WithArgs(100, models.SourceYoutube, date, 100).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE quota_daily_usage`).
		WithArgs(models.BlockReasonLocalLimit, models.SourceYoutube, date).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := ledger.Reserve(MethodSearchList, Auto)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveAutoRefusedWhileBlocked(t *testing.T) {
	_, mock := test.NewMockDB(t)
	ledger := testLedger(100)
	date := today(ledger)

	expectDayRow(mock, date)
	reason := models.BlockReasonLocalLimit
	rows := sqlmock.NewRows([]string{"platform", "usage_date", "request_count", "quota_units", "auto_sync_blocked", "blocked_reason"}).
		AddRow(models.SourceYoutube, date, 50, 100, true, reason)
	mock.ExpectQuery(`SELECT \* FROM quota_daily_usage WHERE`).
		WithArgs(models.SourceYoutube, date).
		WillReturnRows(rows)

	ok, err := ledger.Reserve(MethodVideosList, Auto)
	assert.NoError(t, err)
	assert.False(t, ok)
	// No increment was attempted: the refusal happens before any spend.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveManualIgnoresLimitAndBlock(t *testing.T) {
	_, mock := test.NewMockDB(t)
	ledger := testLedger(100)
	date := today(ledger)

	expectDayRow(mock, date)
	// Manual context: unconditional increment, no blocked-day lookup.
	mock.ExpectExec(`UPDATE quota_daily_usage`).
		WithArgs(100, models.SourceYoutube, date).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO quota_daily_usage_method`).
		WithArgs(models.SourceYoutube, date, "search.list", 100).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := ledger.Reserve(MethodSearchList, Manual)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveAutoUnlimited(t *testing.T) {
	_, mock := test.NewMockDB(t)
	ledger := testLedger(0)
	date := today(ledger)

	expectDayRow(mock, date)
	expectNotBlocked(mock, date)
	mock.ExpectExec(`UPDATE quota_daily_usage`).
		WithArgs(1, models.SourceYoutube, date).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO quota_daily_usage_method`).
		WithArgs(models.SourceYoutube, date, "playlistItems.list", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := ledger.Reserve(MethodPlaylistItemsList, Auto)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkBlockedByRemote(t *testing.T) {
	_, mock := test.NewMockDB(t)
	ledger := testLedger(100)
	date := today(ledger)

	expectDayRow(mock, date)
	mock.ExpectExec(`UPDATE quota_daily_usage`).
		WithArgs(models.BlockReasonRemoteLimit, models.SourceYoutube, date).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, ledger.MarkBlockedByRemote())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsQuotaExceededError(t *testing.T) {
	assert.True(t, IsQuotaExceededError(&RemoteError{
		StatusCode: 403,
		Reasons:    []string{"quotaExceeded"},
		Message:    "The request cannot be completed",
	}))
	assert.True(t, IsQuotaExceededError(&RemoteError{
		StatusCode: 403,
		Reasons:    []string{"dailyLimitExceeded"},
		Message:    "daily limit",
	}))
	assert.True(t, IsQuotaExceededError(errors.New("exceeded your QUOTA for today")))
	assert.False(t, IsQuotaExceededError(errors.New("connection refused")))
	assert.False(t, IsQuotaExceededError(nil))
	assert.False(t, IsQuotaExceededError(&RemoteError{StatusCode: 404, Reasons: []string{"notFound"}, Message: "not found"}))
}
