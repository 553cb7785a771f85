package db

import (
	"time"

	"tubecaster/internal/models"
)

// UpsertRetryEntry records an enrichment gap. On conflict the existing retry
// count is kept — a re-discovered gap is still the same gap, and resetting
// the count would let a permanently broken item retry forever.
func UpsertRetryEntry(entry models.PlaylistEpisodeRetry) error {
	_, err := DB.Exec(`
		INSERT INTO playlist_episode_retry
		(playlist_id, episode_id, position, approximate_published_at,
		 retry_count, next_retry_at, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (playlist_id, episode_id) DO UPDATE SET
		 position = EXCLUDED.position,
		 approximate_published_at = EXCLUDED.approximate_published_at,
		 retry_count = playlist_episode_retry.retry_count,
		 next_retry_at = EXCLUDED.next_retry_at,
		 last_error = EXCLUDED.last_error,
		 updated_at = NOW()`,
		entry.PlaylistID, entry.EpisodeID, entry.Position, entry.ApproximatePublishedAt,
		entry.RetryCount, entry.NextRetryAt, entry.LastError)
	return err
}

// SelectDueRetryEntries returns due entries oldest first, bounded.
func SelectDueRetryEntries(now time.Time, limit int) ([]models.PlaylistEpisodeRetry, error) {
	var entries []models.PlaylistEpisodeRetry
	err := DB.Select(&entries, `
		SELECT * FROM playlist_episode_retry
		WHERE next_retry_at <= $1
		ORDER BY next_retry_at ASC, id ASC
		LIMIT $2`,
		now, limit)
	return entries, err
}

// RescheduleRetryEntry advances the retry count and pushes the next attempt
// forward after a failed drain attempt.
func RescheduleRetryEntry(id int64, retryCount int, nextRetryAt time.Time, lastError string) error {
	_, err := DB.Exec(`
		UPDATE playlist_episode_retry
		SET retry_count = $1, next_retry_at = $2, last_error = $3, updated_at = NOW()
		WHERE id = $4`,
		retryCount, nextRetryAt, lastError, id)
	return err
}

func DeleteRetryEntry(id int64) error {
	_, err := DB.Exec("DELETE FROM playlist_episode_retry WHERE id = $1", id)
	return err
}
