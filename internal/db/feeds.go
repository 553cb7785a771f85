package db

import (
	"log"
	"time"

	"tubecaster/internal/models"
)

func GetFeedByID(id string) (models.Feed, error) {
	feed := models.Feed{}
	err := DB.Get(&feed, "SELECT * FROM feeds WHERE id = $1", id)
	return feed, err
}

func GetAllFeeds() ([]models.Feed, error) {
	var feeds []models.Feed
	err := DB.Select(&feeds, "SELECT * FROM feeds ORDER BY subscribed_at DESC")
	return feeds, err
}

// FindFeedsDueForSync returns sync-enabled feeds of the given type whose last
// sync is absent or older than checkTime. No per-feed interval is stored; the
// shared scheduler cadence supplies the rhythm.
func FindFeedsDueForSync(feedType string, checkTime time.Time) ([]models.Feed, error) {
	var feeds []models.Feed
	err := DB.Select(&feeds, `
		SELECT * FROM feeds
		WHERE type = $1 AND sync_enabled = TRUE
		  AND (last_sync_at IS NULL OR last_sync_at < $2)
		ORDER BY subscribed_at ASC`,
		feedType, checkTime)
	return feeds, err
}

func AddFeed(feed models.Feed) error {
	_, err := DB.NamedExec(`
		INSERT INTO feeds
		(id, type, source, title, description, cover_url,
		 title_contain_keywords, title_exclude_keywords,
		 description_contain_keywords, description_exclude_keywords,
		 minimum_duration, maximum_duration, initial_episodes, maximum_episodes,
		 auto_download_limit,
		 download_type, audio_quality, video_quality, video_encoding,
		 subtitle_languages, subtitle_format, sync_enabled, subscribed_at)
		VALUES
		(:id, :type, :source, :title, :description, :cover_url,
		 :title_contain_keywords, :title_exclude_keywords,
		 :description_contain_keywords, :description_exclude_keywords,
		 :minimum_duration, :maximum_duration, :initial_episodes, :maximum_episodes,
		 :auto_download_limit,
		 :download_type, :audio_quality, :video_quality, :video_encoding,
		 :subtitle_languages, :subtitle_format, :sync_enabled, NOW())`,
		feed)
	if err != nil {
		log.Printf("Error adding feed %s: %v", feed.ID, err)
	}
	return err
}

// AdvanceSyncCursor moves the de-duplication boundary to the newest
// discovered item and stamps the sync time.
func AdvanceSyncCursor(feedID, lastVideoID string, at time.Time) error {
	_, err := DB.Exec(
		"UPDATE feeds SET last_sync_video_id = $1, last_sync_at = $2 WHERE id = $3",
		lastVideoID, at, feedID)
	return err
}

// StampSyncTimestamp records a sync pass that found nothing new, so the feed
// does not stay perpetually due.
func StampSyncTimestamp(feedID string, at time.Time) error {
	_, err := DB.Exec("UPDATE feeds SET last_sync_at = $1 WHERE id = $2", at, feedID)
	return err
}

// DeleteFeed removes the subscription and cascades to its episodes and any
// queued enrichment retries.
func DeleteFeed(id string) error {
	if err := DeleteEpisodesByFeedID(id); err != nil {
		return err
	}
	if _, err := DB.Exec("DELETE FROM playlist_episode_retry WHERE playlist_id = $1", id); err != nil {
		return err
	}
	_, err := DB.Exec("DELETE FROM feeds WHERE id = $1", id)
	return err
}

// GetFeedDefaults returns the stored fallback download policy, or an empty
// value when none has been configured yet.
func GetFeedDefaults() (models.FeedDefaults, error) {
	defaults := models.FeedDefaults{}
	err := DB.Get(&defaults, "SELECT * FROM feed_defaults WHERE id = 1")
	return defaults, err
}

func UpsertFeedDefaults(defaults models.FeedDefaults) error {
	defaults.ID = 1
	_, err := DB.NamedExec(`
		INSERT INTO feed_defaults
		(id, auto_download_limit, maximum_episodes, download_type, audio_quality,
		 video_quality, video_encoding, subtitle_languages, subtitle_format)
		VALUES
		(:id, :auto_download_limit, :maximum_episodes, :download_type, :audio_quality,
		 :video_quality, :video_encoding, :subtitle_languages, :subtitle_format)
		ON CONFLICT (id) DO UPDATE SET
		 auto_download_limit = EXCLUDED.auto_download_limit,
		 maximum_episodes = EXCLUDED.maximum_episodes,
		 download_type = EXCLUDED.download_type,
		 audio_quality = EXCLUDED.audio_quality,
		 video_quality = EXCLUDED.video_quality,
		 video_encoding = EXCLUDED.video_encoding,
		 subtitle_languages = EXCLUDED.subtitle_languages,
		 subtitle_format = EXCLUDED.subtitle_format`,
		defaults)
	return err
}
