package feed

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/eduncan911/podcast"

	"tubecaster/internal/models"
)

func getBaseURL(r *http.Request) string {
	if baseURL := os.Getenv("BASE_URL"); baseURL != "" {
		return baseURL
	}

	scheme := r.URL.Scheme
	if scheme == "" {
		scheme = "https"
		if r.Header.Get("X-Forwarded-Proto") != "" {
			scheme = r.Header.Get("X-Forwarded-Proto")
		}
	}

	return fmt.Sprintf("%s://%s", scheme, r.Host)
}

// GenerateRSS renders a feed's COMPLETED episodes as a podcast feed. The
// enclosure media type follows what the download produced for each episode.
func GenerateRSS(f models.Feed, episodes []models.Episode, r *http.Request) (string, error) {
	baseURL := getBaseURL(r)

	description := f.Description
	if description == "" {
		description = f.Title
	}
	p := podcast.New(
		f.Title,
		fmt.Sprintf("%s/rss/%s", baseURL, f.ID),
		description,
		&time.Time{}, &time.Time{},
	)
	if f.CoverURL != nil && *f.CoverURL != "" {
		p.AddImage(*f.CoverURL)
	}

	for _, episode := range episodes {
		if episode.MediaSizeBytes == nil {
			continue
		}
		item := podcast.Item{
			Title:       episode.Title,
			Description: episode.Description,
			PubDate:     episode.PublishedAt,
		}
		if episode.MaxCoverURL != nil {
			item.AddImage(*episode.MaxCoverURL)
		}

		enclosureType := podcast.M4A
		ext := "m4a"
		if episode.MediaType != nil && *episode.MediaType == "video/mp4" {
			enclosureType = podcast.MP4
			ext = "mp4"
		}
		item.AddEnclosure(
			fmt.Sprintf("%s/media/%s.%s", baseURL, episode.MediaKey, ext),
			enclosureType, *episode.MediaSizeBytes)

		if _, err := p.AddItem(item); err != nil {
			return "", err
		}
	}

	return p.String(), nil
}
