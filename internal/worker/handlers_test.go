package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"

	"tubecaster/internal/models"
	"tubecaster/internal/quota"
	"tubecaster/internal/source"
	"tubecaster/internal/syncer"
	"tubecaster/internal/test"
	"tubecaster/pkg/tasks"
)

// emptyLister returns an exhausted listing and records the call context it
// was handed.
type emptyLister struct {
	lastContext quota.CallContext
}

func (l *emptyLister) ListPage(ctx context.Context, feed models.Feed, pageToken string, cc quota.CallContext) ([]source.Item, string, error) {
	l.lastContext = cc
	return nil, "", nil
}

func (l *emptyLister) Details(ctx context.Context, ids []string, cc quota.CallContext) (map[string]source.Detail, error) {
	return map[string]source.Detail{}, nil
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	return b
}

func TestHandleSyncFeedTaskUsesManualContext(t *testing.T) {
	_, mock := test.NewMockDB(t)
	lister := &emptyLister{}
	s := syncer.NewSyncer(map[string]source.Lister{models.SourceYoutube: lister}, nil)
	handler := NewTaskHandler(s, nil, nil)

	feedRows := sqlmock.NewRows([]string{"id", "type", "source", "title", "sync_enabled", "subscribed_at"}).
		AddRow("feed1", models.FeedTypeChannel, models.SourceYoutube, "Feed", true, time.Now())
	mock.ExpectQuery(`SELECT \* FROM feeds WHERE id = \$1`).
		WithArgs("feed1").WillReturnRows(feedRows)
	mock.ExpectExec(`UPDATE feeds SET last_sync_at = \$1 WHERE id = \$2`).
		WithArgs(sqlmock.AnyArg(), "feed1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	payload := tasks.SyncFeedTaskPayload{FeedID: "feed1", Manual: true}
	task := asynq.NewTask(tasks.TypeSyncFeed, mustMarshal(t, payload))

	err := handler.HandleSyncFeedTask(context.Background(), task)
	assert.NoError(t, err)
	assert.Equal(t, quota.Manual, lister.lastContext)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleDownloadEpisodeTaskRejectsBadPayload(t *testing.T) {
	handler := NewTaskHandler(nil, nil, nil)
	task := asynq.NewTask(tasks.TypeDownloadEpisode, []byte("not json"))

	err := handler.HandleDownloadEpisodeTask(context.Background(), task)
	assert.Error(t, err)
}
