package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"tubecaster/internal/models"
	"tubecaster/internal/quota"
)

const bilibiliAPIBase = "https://api.bilibili.com"

// BilibiliClient lists uploader archives and favorite folders through the
// public Bilibili web API. Pages are numbered, so page tokens are the decimal
// page number and the first page's token is the empty string.
type BilibiliClient struct {
	ledger  *quota.Ledger
	http    *http.Client
	limiter *rate.Limiter
}

func NewBilibiliClient(ledger *quota.Ledger) *BilibiliClient {
	return &BilibiliClient{
		ledger:  ledger,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(2), 2),
	}
}

type biliEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type biliArchivesData struct {
	List struct {
		Vlist []struct {
			BVID    string `json:"bvid"`
			Title   string `json:"title"`
			Created int64  `json:"created"`
		} `json:"vlist"`
	} `json:"list"`
	Page struct {
		PN    int `json:"pn"`
		PS    int `json:"ps"`
		Count int `json:"count"`
	} `json:"page"`
}

type biliFavData struct {
	Medias []struct {
		BVID    string `json:"bvid"`
		Title   string `json:"title"`
		PubTime int64  `json:"pubtime"`
	} `json:"medias"`
	HasMore bool `json:"has_more"`
}

type biliViewData struct {
	BVID     string `json:"bvid"`
	Title    string `json:"title"`
	Desc     string `json:"desc"`
	Pic      string `json:"pic"`
	PubDate  int64  `json:"pubdate"`
	Duration int64  `json:"duration"` // seconds
}

// -62 access denied, -404 gone; 429 and -412 mean the gateway throttled us.
func (c *BilibiliClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		bilibiliAPIBase+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Referer", "https://www.bilibili.com")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return &quota.RemoteError{
			StatusCode: resp.StatusCode,
			Reasons:    []string{"rateLimitExceeded"},
			Message:    "bilibili gateway throttled the request",
		}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bilibili api %s: unexpected status %d", path, resp.StatusCode)
	}

	var envelope biliEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return err
	}
	if envelope.Code == -412 {
		return &quota.RemoteError{
			StatusCode: resp.StatusCode,
			Reasons:    []string{"rateLimitExceeded"},
			Message:    envelope.Message,
		}
	}
	if envelope.Code != 0 {
		return fmt.Errorf("bilibili api %s: code %d: %s", path, envelope.Code, envelope.Message)
	}
	return json.Unmarshal(envelope.Data, out)
}

func pageFromToken(token string) (int, error) {
	if token == "" {
		return 1, nil
	}
	return strconv.Atoi(token)
}

func (c *BilibiliClient) ListPage(ctx context.Context, feed models.Feed, pageToken string, cc quota.CallContext) ([]Item, string, error) {
	page, err := pageFromToken(pageToken)
	if err != nil {
		return nil, "", fmt.Errorf("bad bilibili page token %q: %w", pageToken, err)
	}
	if feed.Type == models.FeedTypeChannel {
		return c.listArchives(ctx, feed.ID, page, cc)
	}
	return c.listFavorites(ctx, feed.ID, page, cc)
}

// listArchives pages an uploader's space, newest first.
func (c *BilibiliClient) listArchives(ctx context.Context, mid string, page int, cc quota.CallContext) ([]Item, string, error) {
	var data biliArchivesData
	err := execute(c.ledger, quota.MethodSpaceArchives, cc, func() error {
		params := url.Values{}
		params.Set("mid", mid)
		params.Set("pn", strconv.Itoa(page))
		params.Set("ps", strconv.Itoa(PageSize))
		params.Set("order", "pubdate")
		return c.get(ctx, "/x/space/arc/search", params, &data)
	})
	if err != nil {
		return nil, "", err
	}

	items := make([]Item, 0, len(data.List.Vlist))
	for i, v := range data.List.Vlist {
		published := time.Unix(v.Created, 0).UTC()
		items = append(items, Item{
			ID:          v.BVID,
			Title:       v.Title,
			Position:    int64((page-1)*PageSize + i),
			PublishedAt: &published,
		})
	}

	next := ""
	if page*data.Page.PS < data.Page.Count {
		next = strconv.Itoa(page + 1)
	}
	return items, next, nil
}

// listFavorites pages a favorites folder, which is the closest Bilibili
// analogue of a playlist.
func (c *BilibiliClient) listFavorites(ctx context.Context, mediaID string, page int, cc quota.CallContext) ([]Item, string, error) {
	var data biliFavData
	err := execute(c.ledger, quota.MethodFavResources, cc, func() error {
		params := url.Values{}
		params.Set("media_id", mediaID)
		params.Set("pn", strconv.Itoa(page))
		params.Set("ps", strconv.Itoa(PageSize))
		return c.get(ctx, "/x/v3/fav/resource/list", params, &data)
	})
	if err != nil {
		return nil, "", err
	}

	items := make([]Item, 0, len(data.Medias))
	for i, m := range data.Medias {
		published := time.Unix(m.PubTime, 0).UTC()
		items = append(items, Item{
			ID:          m.BVID,
			Title:       m.Title,
			Position:    int64((page-1)*PageSize + i),
			PublishedAt: &published,
		})
	}

	next := ""
	if data.HasMore {
		next = strconv.Itoa(page + 1)
	}
	return items, next, nil
}

// Details fetches archives one by one; the view endpoint has no bulk form.
func (c *BilibiliClient) Details(ctx context.Context, ids []string, cc quota.CallContext) (map[string]Detail, error) {
	details := make(map[string]Detail, len(ids))
	for _, bvid := range ids {
		var data biliViewData
		err := execute(c.ledger, quota.MethodArchiveView, cc, func() error {
			params := url.Values{}
			params.Set("bvid", bvid)
			return c.get(ctx, "/x/web-interface/view", params, &data)
		})
		if err != nil {
			return nil, err
		}
		published := time.Unix(data.PubDate, 0).UTC()
		details[bvid] = Detail{
			ID:              data.BVID,
			Title:           data.Title,
			Description:     data.Desc,
			PublishedAt:     &published,
			Duration:        secondsToISODuration(data.Duration),
			DefaultCoverURL: data.Pic,
			MaxCoverURL:     data.Pic,
		}
	}
	return details, nil
}

// secondsToISODuration renders a duration in seconds in the same ISO 8601
// shape the YouTube API uses, so downstream filtering sees one format.
func secondsToISODuration(seconds int64) string {
	if seconds <= 0 {
		return ""
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	out := "PT"
	if h > 0 {
		out += fmt.Sprintf("%dH", h)
	}
	if m > 0 {
		out += fmt.Sprintf("%dM", m)
	}
	if s > 0 || (h == 0 && m == 0) {
		out += fmt.Sprintf("%dS", s)
	}
	return out
}
