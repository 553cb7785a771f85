package models

import "time"

// Episode download lifecycle. Transitions are monotonic except for the
// explicit operator actions (retry, cancel) and the startup stale sweep.
const (
	StatusReady       = "READY"
	StatusPending     = "PENDING"
	StatusDownloading = "DOWNLOADING"
	StatusCompleted   = "COMPLETED"
	StatusFailed      = "FAILED"
)

// Episode is one downloadable item belonging to a feed. The id is the
// source-native video id, so it is globally unique across feeds.
type Episode struct {
	ID              string     `db:"id"`
	FeedID          string     `db:"feed_id"`
	Title           string     `db:"title"`
	Description     string     `db:"description"`
	PublishedAt     *time.Time `db:"published_at"`
	Duration        string     `db:"duration"` // ISO 8601, e.g. PT45M
	DefaultCoverURL *string    `db:"default_cover_url"`
	MaxCoverURL     *string    `db:"max_cover_url"`
	Status          string     `db:"status"`
	MediaPath       *string    `db:"media_path"`
	MediaType       *string    `db:"media_type"`
	MediaSizeBytes  *int64     `db:"media_size_bytes"`
	MediaKey        string     `db:"media_key"`
	ErrorLog        *string    `db:"error_log"`
	RetryCount      int        `db:"retry_count"`
	CreatedAt       time.Time  `db:"created_at"`
}
