package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"tubecaster/internal/db"
	"tubecaster/internal/download"
	"tubecaster/internal/quota"
	"tubecaster/internal/syncer"
	"tubecaster/pkg/tasks"
)

type TaskHandler struct {
	syncer   *syncer.Syncer
	executor *download.Executor
	cleaner  *download.Cleaner
}

func NewTaskHandler(s *syncer.Syncer, e *download.Executor, c *download.Cleaner) *TaskHandler {
	return &TaskHandler{syncer: s, executor: e, cleaner: c}
}

func (h *TaskHandler) HandleSyncAllChannelsTask(ctx context.Context, t *asynq.Task) error {
	log.Println("Syncing due channels...")
	if err := h.syncer.SyncDueChannels(ctx); err != nil {
		return fmt.Errorf("failed to sync channels: %w", err)
	}
	log.Println("Finished syncing channels.")
	return nil
}

func (h *TaskHandler) HandleSyncAllPlaylistsTask(ctx context.Context, t *asynq.Task) error {
	log.Println("Syncing due playlists...")
	if err := h.syncer.SyncDuePlaylists(ctx); err != nil {
		return fmt.Errorf("failed to sync playlists: %w", err)
	}
	log.Println("Finished syncing playlists.")
	return nil
}

func (h *TaskHandler) HandleSyncFeedTask(ctx context.Context, t *asynq.Task) error {
	var p tasks.SyncFeedTaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	feed, err := db.GetFeedByID(p.FeedID)
	if err != nil {
		return fmt.Errorf("failed to get feed %s: %w", p.FeedID, err)
	}
	cc := quota.Auto
	if p.Manual {
		cc = quota.Manual
	}
	log.Printf("Syncing feed %s", feed.ID)
	if err := h.syncer.SyncFeed(ctx, feed, cc); err != nil {
		return fmt.Errorf("failed to sync feed %s: %w", feed.ID, err)
	}
	return nil
}

func (h *TaskHandler) HandleDownloadEpisodeTask(ctx context.Context, t *asynq.Task) error {
	var p tasks.DownloadEpisodeTaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	log.Printf("Downloading episode %s", p.EpisodeID)
	return h.executor.Download(ctx, p.EpisodeID)
}

func (h *TaskHandler) HandleDrainRetryQueueTask(ctx context.Context, t *asynq.Task) error {
	return h.syncer.DrainRetryQueue(ctx, syncer.DrainBatchSize)
}

func (h *TaskHandler) HandleCleanupEpisodesTask(ctx context.Context, t *asynq.Task) error {
	return h.cleaner.Run()
}
