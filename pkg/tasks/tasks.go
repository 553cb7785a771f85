package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	TypeSyncAllChannels  = "channels:sync"
	TypeSyncAllPlaylists = "playlists:sync"
	TypeSyncFeed         = "feed:sync"
	TypeDownloadEpisode  = "episode:download"
	TypeDrainRetryQueue  = "retries:drain"
	TypeCleanupEpisodes  = "episodes:cleanup"
)

type SyncFeedTaskPayload struct {
	FeedID string
	Manual bool
}

// NewSyncFeedTask syncs a single feed out of cadence. Manual marks the run
// as operator-triggered so it bypasses the daily quota budget.
func NewSyncFeedTask(feedID string, manual bool) (*asynq.Task, error) {
	payload, err := json.Marshal(SyncFeedTaskPayload{FeedID: feedID, Manual: manual})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSyncFeed, payload), nil
}

type DownloadEpisodeTaskPayload struct {
	EpisodeID string
}

func NewDownloadEpisodeTask(episodeID string) (*asynq.Task, error) {
	payload, err := json.Marshal(DownloadEpisodeTaskPayload{EpisodeID: episodeID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDownloadEpisode, payload), nil
}

func NewSyncAllChannelsTask() (*asynq.Task, error) {
	return asynq.NewTask(TypeSyncAllChannels, nil), nil
}

func NewSyncAllPlaylistsTask() (*asynq.Task, error) {
	return asynq.NewTask(TypeSyncAllPlaylists, nil), nil
}

func NewDrainRetryQueueTask() (*asynq.Task, error) {
	return asynq.NewTask(TypeDrainRetryQueue, nil), nil
}

func NewCleanupEpisodesTask() (*asynq.Task, error) {
	return asynq.NewTask(TypeCleanupEpisodes, nil), nil
}
