package download

import (
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"strings"

	"tubecaster/internal/db"
	"tubecaster/internal/models"
)

// Cleaner enforces each feed's episode-count ceiling: the oldest COMPLETED
// episodes beyond the limit are deleted together with their media files and
// sibling artifacts (thumbnails, subtitles).
type Cleaner struct {
	MediaRoot string
}

func NewCleaner(mediaRoot string) *Cleaner {
	return &Cleaner{MediaRoot: mediaRoot}
}

func (c *Cleaner) Run() error {
	feeds, err := db.GetAllFeeds()
	if err != nil {
		return err
	}
	defaults, err := db.GetFeedDefaults()
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	for _, feed := range feeds {
		limit := feed.MaximumEpisodes
		if limit == nil {
			limit = defaults.MaximumEpisodes
		}
		if limit == nil || *limit <= 0 {
			continue
		}
		if err := c.cleanFeed(feed, *limit); err != nil {
			log.Printf("cleanup failed for feed %s: %v", feed.ID, err)
		}
	}
	return nil
}

func (c *Cleaner) cleanFeed(feed models.Feed, limit int) error {
	count, err := db.CountCompletedEpisodes(feed.ID)
	if err != nil {
		return err
	}
	if count <= limit {
		return nil
	}

	victims, err := db.OldestCompletedEpisodes(feed.ID, count-limit)
	if err != nil {
		return err
	}
	for _, episode := range victims {
		c.RemoveMedia(episode)
		if err := db.DeleteEpisode(episode.ID); err != nil {
			log.Printf("failed to delete episode %s: %v", episode.ID, err)
			continue
		}
		log.Printf("cleaned up episode %s from feed %s", episode.ID, feed.ID)
	}
	return nil
}

// RemoveMedia deletes the episode's media file and every sibling sharing its
// base name. Missing files are not an error; the row is the source of truth.
func (c *Cleaner) RemoveMedia(episode models.Episode) {
	if episode.MediaPath == nil || *episode.MediaPath == "" {
		return
	}
	base := strings.TrimSuffix(*episode.MediaPath, filepath.Ext(*episode.MediaPath))
	matches, err := filepath.Glob(base + ".*")
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			log.Printf("failed to remove %s: %v", m, err)
		}
	}
}
