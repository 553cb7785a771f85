package models

import "time"

const (
	FeedTypeChannel  = "CHANNEL"
	FeedTypePlaylist = "PLAYLIST"

	SourceYoutube  = "YOUTUBE"
	SourceBilibili = "BILIBILI"

	DownloadAudio = "AUDIO"
	DownloadVideo = "VIDEO"
)

// Feed is a subscribed channel or playlist: the root of a sync cursor,
// a filter policy, and a download policy.
type Feed struct {
	ID          string `db:"id"`
	Type        string `db:"type"`
	Source      string `db:"source"`
	Title       string `db:"title"`
	Description string `db:"description"`
	CoverURL    *string `db:"cover_url"`

	TitleContainKeywords       *string `db:"title_contain_keywords"`
	TitleExcludeKeywords       *string `db:"title_exclude_keywords"`
	DescriptionContainKeywords *string `db:"description_contain_keywords"`
	DescriptionExcludeKeywords *string `db:"description_exclude_keywords"`
	MinimumDuration            *int    `db:"minimum_duration"` // minutes
	MaximumDuration            *int    `db:"maximum_duration"` // minutes

	InitialEpisodes   *int `db:"initial_episodes"`
	MaximumEpisodes   *int `db:"maximum_episodes"`
	AutoDownloadLimit *int `db:"auto_download_limit"`

	DownloadType      *string `db:"download_type"`
	AudioQuality      *int    `db:"audio_quality"`
	VideoQuality      *string `db:"video_quality"`
	VideoEncoding     *string `db:"video_encoding"`
	SubtitleLanguages *string `db:"subtitle_languages"`
	SubtitleFormat    *string `db:"subtitle_format"`

	LastSyncVideoID *string    `db:"last_sync_video_id"`
	LastSyncAt      *time.Time `db:"last_sync_at"`
	SyncEnabled     bool       `db:"sync_enabled"`
	SubscribedAt    time.Time  `db:"subscribed_at"`
}

// FeedDefaults is the singleton fallback download policy applied to feeds
// that leave individual policy fields unset.
type FeedDefaults struct {
	ID                int     `db:"id"`
	AutoDownloadLimit *int    `db:"auto_download_limit"`
	MaximumEpisodes   *int    `db:"maximum_episodes"`
	DownloadType      *string `db:"download_type"`
	AudioQuality      *int    `db:"audio_quality"`
	VideoQuality      *string `db:"video_quality"`
	VideoEncoding     *string `db:"video_encoding"`
	SubtitleLanguages *string `db:"subtitle_languages"`
	SubtitleFormat    *string `db:"subtitle_format"`
}
