package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tubecaster/internal/models"
	"tubecaster/internal/quota"
)

const youtubeAPIBase = "https://www.googleapis.com/youtube/v3"

// YoutubeClient reads paged listings and video details from the YouTube
// Data API v3. Channel feeds are resolved to their uploads playlist first.
type YoutubeClient struct {
	apiKey  string
	ledger  *quota.Ledger
	http    *http.Client
	limiter *rate.Limiter

	mu      sync.Mutex
	uploads map[string]string // channel id -> uploads playlist id
}

func NewYoutubeClient(apiKey string, ledger *quota.Ledger) *YoutubeClient {
	return &YoutubeClient{
		apiKey:  apiKey,
		ledger:  ledger,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
		uploads: map[string]string{},
	}
}

type ytErrorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

type ytThumbnail struct {
	URL string `json:"url"`
}

type ytThumbnails struct {
	Default  *ytThumbnail `json:"default"`
	Medium   *ytThumbnail `json:"medium"`
	High     *ytThumbnail `json:"high"`
	Standard *ytThumbnail `json:"standard"`
	Maxres   *ytThumbnail `json:"maxres"`
}

type ytPlaylistItemsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		Snippet struct {
			Title       string    `json:"title"`
			PublishedAt time.Time `json:"publishedAt"`
			Position    int64     `json:"position"`
			ResourceID  struct {
				VideoID string `json:"videoId"`
			} `json:"resourceId"`
		} `json:"snippet"`
	} `json:"items"`
}

type ytChannelsResponse struct {
	Items []struct {
		ContentDetails struct {
			RelatedPlaylists struct {
				Uploads string `json:"uploads"`
			} `json:"relatedPlaylists"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type ytVideosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title                string       `json:"title"`
			Description          string       `json:"description"`
			PublishedAt          time.Time    `json:"publishedAt"`
			LiveBroadcastContent string       `json:"liveBroadcastContent"`
			Thumbnails           ytThumbnails `json:"thumbnails"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
		LiveStreamingDetails *struct {
			ScheduledStartTime *time.Time `json:"scheduledStartTime"`
			ActualEndTime      *time.Time `json:"actualEndTime"`
		} `json:"liveStreamingDetails"`
	} `json:"items"`
}

func (c *YoutubeClient) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	params.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		youtubeAPIBase+"/"+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		var envelope ytErrorEnvelope
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
			reasons := make([]string, 0, len(envelope.Error.Errors))
			for _, e := range envelope.Error.Errors {
				reasons = append(reasons, e.Reason)
			}
			return &quota.RemoteError{
				StatusCode: resp.StatusCode,
				Reasons:    reasons,
				Message:    envelope.Error.Message,
			}
		}
		return fmt.Errorf("youtube api %s: unexpected status %d", endpoint, resp.StatusCode)
	}

	return json.Unmarshal(body, out)
}

// uploadsPlaylistID resolves a channel's uploads playlist, cached for the
// client's lifetime since the mapping never changes.
func (c *YoutubeClient) uploadsPlaylistID(ctx context.Context, channelID string, cc quota.CallContext) (string, error) {
	c.mu.Lock()
	cached, ok := c.uploads[channelID]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	var resp ytChannelsResponse
	err := execute(c.ledger, quota.MethodChannelsList, cc, func() error {
		params := url.Values{}
		params.Set("part", "contentDetails")
		params.Set("id", channelID)
		return c.get(ctx, "channels", params, &resp)
	})
	if err != nil {
		return "", err
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("youtube channel %s not found", channelID)
	}

	uploads := resp.Items[0].ContentDetails.RelatedPlaylists.Uploads
	c.mu.Lock()
	c.uploads[channelID] = uploads
	c.mu.Unlock()
	return uploads, nil
}

func (c *YoutubeClient) ListPage(ctx context.Context, feed models.Feed, pageToken string, cc quota.CallContext) ([]Item, string, error) {
	playlistID := feed.ID
	if feed.Type == models.FeedTypeChannel {
		var err error
		playlistID, err = c.uploadsPlaylistID(ctx, feed.ID, cc)
		if err != nil {
			return nil, "", err
		}
	}

	var resp ytPlaylistItemsResponse
	err := execute(c.ledger, quota.MethodPlaylistItemsList, cc, func() error {
		params := url.Values{}
		params.Set("part", "snippet")
		params.Set("playlistId", playlistID)
		params.Set("maxResults", fmt.Sprintf("%d", PageSize))
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}
		return c.get(ctx, "playlistItems", params, &resp)
	})
	if err != nil {
		return nil, "", err
	}

	items := make([]Item, 0, len(resp.Items))
	for _, it := range resp.Items {
		published := it.Snippet.PublishedAt
		items = append(items, Item{
			ID:          it.Snippet.ResourceID.VideoID,
			Title:       it.Snippet.Title,
			Position:    it.Snippet.Position,
			PublishedAt: &published,
		})
	}
	return items, resp.NextPageToken, nil
}

func (c *YoutubeClient) Details(ctx context.Context, ids []string, cc quota.CallContext) (map[string]Detail, error) {
	if len(ids) == 0 {
		return map[string]Detail{}, nil
	}

	var resp ytVideosResponse
	err := execute(c.ledger, quota.MethodVideosList, cc, func() error {
		params := url.Values{}
		params.Set("part", "contentDetails,snippet,liveStreamingDetails")
		params.Set("id", strings.Join(ids, ","))
		return c.get(ctx, "videos", params, &resp)
	})
	if err != nil {
		return nil, err
	}

	details := make(map[string]Detail, len(resp.Items))
	for _, v := range resp.Items {
		published := v.Snippet.PublishedAt
		detail := Detail{
			ID:            v.ID,
			Title:         v.Snippet.Title,
			Description:   v.Snippet.Description,
			PublishedAt:   &published,
			Duration:      v.ContentDetails.Duration,
			LiveBroadcast: v.Snippet.LiveBroadcastContent,
		}
		if v.LiveStreamingDetails != nil {
			detail.ScheduledStart = v.LiveStreamingDetails.ScheduledStartTime
			detail.ActualEnd = v.LiveStreamingDetails.ActualEndTime
		}
		detail.DefaultCoverURL, detail.MaxCoverURL = pickThumbnails(v.Snippet.Thumbnails)
		details[v.ID] = detail
	}
	return details, nil
}

// pickThumbnails keeps the default thumbnail and the largest available one.
func pickThumbnails(t ytThumbnails) (defaultURL, maxURL string) {
	if t.Default != nil {
		defaultURL = t.Default.URL
	}
	for _, candidate := range []*ytThumbnail{t.Maxres, t.Standard, t.High, t.Medium, t.Default} {
		if candidate != nil {
			maxURL = candidate.URL
			break
		}
	}
	return defaultURL, maxURL
}
