package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"

	"tubecaster/internal/download"
	"tubecaster/internal/models"
	"tubecaster/internal/test"
	"tubecaster/pkg/tasks"
)

func newTestHandlers(enqueuer tasks.TaskEnqueuer) *Handlers {
	return New(enqueuer, download.NewGuard(enqueuer), download.NewCleaner("media"), nil, "media")
}

func newRouter(h *Handlers) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/rss/{feedID}", h.GetRSSFeed).Methods("GET")
	r.HandleFunc("/feeds/{feedID}/refresh", h.RefreshFeed).Methods("POST")
	r.HandleFunc("/episodes/stats", h.GetEpisodeStats).Methods("GET")
	r.HandleFunc("/episodes/{episodeID}", h.CancelEpisode).Methods("DELETE")
	r.HandleFunc("/episodes/{episodeID}/retry", h.RetryEpisode).Methods("POST")
	r.HandleFunc("/episodes/{episodeID}/download", h.DownloadEpisode).Methods("POST")
	return r
}

func TestGetRSSFeedNotFound(t *testing.T) {
	_, mock := test.NewMockDB(t)
	h := newTestHandlers(&test.MockTaskEnqueuer{})

	mock.ExpectQuery(`SELECT \* FROM feeds WHERE id = \$1`).
		WithArgs("missing").WillReturnError(assert.AnError)

	req := httptest.NewRequest("GET", "/rss/missing", nil)
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRSSFeedRendersCompletedEpisodes(t *testing.T) {
	_, mock := test.NewMockDB(t)
	h := newTestHandlers(&test.MockTaskEnqueuer{})

	feedRows := sqlmock.NewRows([]string{"id", "type", "source", "title", "description", "sync_enabled", "subscribed_at"}).
		AddRow("feed1", models.FeedTypeChannel, models.SourceYoutube, "My Feed", "About things", true, time.Now())
	mock.ExpectQuery(`SELECT \* FROM feeds WHERE id = \$1`).
		WithArgs("feed1").WillReturnRows(feedRows)

	published := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	epRows := sqlmock.NewRows([]string{"id", "feed_id", "title", "description", "published_at", "status", "media_type", "media_size_bytes", "media_key", "created_at"}).
		AddRow("v1", "feed1", "Episode One", "First", published, models.StatusCompleted, "audio/mp4", int64(1000), "key-1", time.Now())
	mock.ExpectQuery(`SELECT \* FROM episodes WHERE feed_id = \$1 AND status = \$2`).
		WithArgs("feed1", models.StatusCompleted).WillReturnRows(epRows)

	req := httptest.NewRequest("GET", "/rss/feed1", nil)
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/rss+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Episode One")
	assert.Contains(t, rec.Body.String(), "key-1.m4a")
}

func TestRefreshFeedEnqueuesManualSync(t *testing.T) {
	_, mock := test.NewMockDB(t)
	enqueuer := &test.MockTaskEnqueuer{}
	h := newTestHandlers(enqueuer)

	feedRows := sqlmock.NewRows([]string{"id", "type", "source", "title", "sync_enabled", "subscribed_at"}).
		AddRow("feed1", models.FeedTypeChannel, models.SourceYoutube, "Feed", true, time.Now())
	mock.ExpectQuery(`SELECT \* FROM feeds WHERE id = \$1`).
		WithArgs("feed1").WillReturnRows(feedRows)

	req := httptest.NewRequest("POST", "/feeds/feed1/refresh", nil)
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, enqueuer.EnqueuedTasks, 1)
	assert.Equal(t, tasks.TypeSyncFeed, enqueuer.EnqueuedTasks[0].Type())
}

func TestCancelEpisodeConflictsWhenNotPending(t *testing.T) {
	_, mock := test.NewMockDB(t)
	h := newTestHandlers(&test.MockTaskEnqueuer{})

	mock.ExpectExec(`DELETE FROM episodes WHERE id = \$1 AND status = \$2`).
		WithArgs("v1", models.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	req := httptest.NewRequest("DELETE", "/episodes/v1", nil)
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRetryEpisodeReAdmitsFailedEpisode(t *testing.T) {
	_, mock := test.NewMockDB(t)
	enqueuer := &test.MockTaskEnqueuer{}
	h := newTestHandlers(enqueuer)

	epRows := sqlmock.NewRows([]string{"id", "feed_id", "title", "status", "media_key", "retry_count", "created_at"}).
		AddRow("v1", "feed1", "Broken", models.StatusFailed, "key", 1, time.Now())
	mock.ExpectQuery(`SELECT \* FROM episodes WHERE id = \$1`).
		WithArgs("v1").WillReturnRows(epRows)
	mock.ExpectExec(`UPDATE episodes SET status = \$1 WHERE id = \$2 AND status IN \(\$3, \$4\)`).
		WithArgs(models.StatusDownloading, "v1", models.StatusPending, models.StatusFailed).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest("POST", "/episodes/v1/retry", nil)
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, enqueuer.EnqueuedTasks, 1)
	assert.Equal(t, tasks.TypeDownloadEpisode, enqueuer.EnqueuedTasks[0].Type())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDownloadEpisodePromotesReadyEpisode(t *testing.T) {
	_, mock := test.NewMockDB(t)
	enqueuer := &test.MockTaskEnqueuer{}
	h := newTestHandlers(enqueuer)

	epRows := sqlmock.NewRows([]string{"id", "feed_id", "title", "status", "media_key", "retry_count", "created_at"}).
		AddRow("v1", "feed1", "Fresh", models.StatusReady, "key", 0, time.Now())
	mock.ExpectQuery(`SELECT \* FROM episodes WHERE id = \$1`).
		WithArgs("v1").WillReturnRows(epRows)
	mock.ExpectExec(`UPDATE episodes SET status = \$1 WHERE id = \$2 AND status = \$3`).
		WithArgs(models.StatusPending, "v1", models.StatusReady).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE episodes SET status = \$1 WHERE id = \$2 AND status IN \(\$3, \$4\)`).
		WithArgs(models.StatusDownloading, "v1", models.StatusPending, models.StatusFailed).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest("POST", "/episodes/v1/download", nil)
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, enqueuer.EnqueuedTasks, 1)
	assert.Equal(t, tasks.TypeDownloadEpisode, enqueuer.EnqueuedTasks[0].Type())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDownloadEpisodeConflictsWhenPromotionLost(t *testing.T) {
	_, mock := test.NewMockDB(t)
	enqueuer := &test.MockTaskEnqueuer{}
	h := newTestHandlers(enqueuer)

	epRows := sqlmock.NewRows([]string{"id", "feed_id", "title", "status", "media_key", "retry_count", "created_at"}).
		AddRow("v1", "feed1", "Fresh", models.StatusReady, "key", 0, time.Now())
	mock.ExpectQuery(`SELECT \* FROM episodes WHERE id = \$1`).
		WithArgs("v1").WillReturnRows(epRows)
	mock.ExpectExec(`UPDATE episodes SET status = \$1 WHERE id = \$2 AND status = \$3`).
		WithArgs(models.StatusPending, "v1", models.StatusReady).
		WillReturnResult(sqlmock.NewResult(0, 0))

	req := httptest.NewRequest("POST", "/episodes/v1/download", nil)
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, enqueuer.EnqueuedTasks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEpisodeStats(t *testing.T) {
	_, mock := test.NewMockDB(t)
	h := newTestHandlers(&test.MockTaskEnqueuer{})

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow(models.StatusCompleted, 4).
		AddRow(models.StatusFailed, 1)
	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM episodes GROUP BY status`).
		WillReturnRows(rows)

	req := httptest.NewRequest("GET", "/episodes/stats", nil)
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"COMPLETED":4,"FAILED":1}`, rec.Body.String())
}
