package models

import "time"

// PlaylistEpisodeRetry is a queued enrichment item: the episode's existence
// and position are known, but its detail fetch failed. Unique per
// (playlist, episode). The retry count only advances via the drain job.
type PlaylistEpisodeRetry struct {
	ID                     int64      `db:"id"`
	PlaylistID             string     `db:"playlist_id"`
	EpisodeID              string     `db:"episode_id"`
	Position               int64      `db:"position"`
	ApproximatePublishedAt *time.Time `db:"approximate_published_at"`
	RetryCount             int        `db:"retry_count"`
	NextRetryAt            time.Time  `db:"next_retry_at"`
	LastError              *string    `db:"last_error"`
	CreatedAt              time.Time  `db:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at"`
}
