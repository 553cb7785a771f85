// Package syncer walks remote listings incrementally, turns surviving
// candidates into episode records, and keeps the durable enrichment retry
// queue moving.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"tubecaster/internal/db"
	"tubecaster/internal/download"
	"tubecaster/internal/filter"
	"tubecaster/internal/models"
	"tubecaster/internal/quota"
	"tubecaster/internal/source"
)

const (
	// retry drain schedule: delay doubles per attempt from the base, capped.
	retryBaseDelay = 15 * time.Minute
	retryMaxDelay  = 24 * time.Hour

	// DrainBatchSize bounds one drain pass.
	DrainBatchSize = 50

	// defaultInitialEpisodes bounds the first sync of a feed with no stored
	// initial_episodes value, so subscribing to a large channel does not walk
	// its whole history.
	defaultInitialEpisodes = 10
)

type Syncer struct {
	listers map[string]source.Lister
	guard   *download.Guard
	now     func() time.Time
}

func NewSyncer(listers map[string]source.Lister, guard *download.Guard) *Syncer {
	return &Syncer{listers: listers, guard: guard, now: time.Now}
}

func (s *Syncer) lister(feedSource string) (source.Lister, error) {
	l, ok := s.listers[feedSource]
	if !ok {
		return nil, fmt.Errorf("no lister configured for source %s", feedSource)
	}
	return l, nil
}

// SyncFeed walks the feed's listing newest-first until the stored cursor id
// or exhaustion, inserts the surviving candidates, and advances the cursor.
// The sync timestamp is stamped even when nothing new was found, so the feed
// does not stay perpetually due.
func (s *Syncer) SyncFeed(ctx context.Context, feed models.Feed, cc quota.CallContext) error {
	lister, err := s.lister(feed.Source)
	if err != nil {
		return err
	}

	discovered, err := s.walkUntilCursor(ctx, lister, feed, cc)
	if err != nil {
		return err
	}
	if len(discovered) == 0 {
		return db.StampSyncTimestamp(feed.ID, s.now())
	}
	newestID := discovered[0].ID

	fresh, err := s.dropKnown(discovered)
	if err != nil {
		return err
	}

	inserted, err := s.enrichAndInsert(ctx, lister, feed, fresh, cc)
	if err != nil {
		return err
	}

	// Newest discovered id becomes the next de-duplication boundary even if
	// every item was filtered out.
	if err := db.AdvanceSyncCursor(feed.ID, newestID, s.now()); err != nil {
		return err
	}

	s.admitForDownload(feed, inserted)
	return nil
}

// walkUntilCursor pages the listing in order, stopping at the feed's stored
// cursor id. Items at and beyond the cursor were seen by an earlier sync.
// A feed with no cursor yet is on its first sync, which is bounded by the
// feed's initial-episodes setting instead of walking the whole history.
func (s *Syncer) walkUntilCursor(ctx context.Context, lister source.Lister, feed models.Feed, cc quota.CallContext) ([]source.Item, error) {
	bound := 0
	if feed.LastSyncVideoID == nil {
		bound = defaultInitialEpisodes
		if feed.InitialEpisodes != nil && *feed.InitialEpisodes > 0 {
			bound = *feed.InitialEpisodes
		}
	}

	var discovered []source.Item
	pageToken := ""
	for {
		items, next, err := lister.ListPage(ctx, feed, pageToken, cc)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if feed.LastSyncVideoID != nil && item.ID == *feed.LastSyncVideoID {
				return discovered, nil
			}
			discovered = append(discovered, item)
			if bound > 0 && len(discovered) >= bound {
				return discovered, nil
			}
		}
		if next == "" {
			return discovered, nil
		}
		pageToken = next
	}
}

func (s *Syncer) dropKnown(items []source.Item) ([]source.Item, error) {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	existing, err := db.ExistingEpisodeIDs(ids)
	if err != nil {
		return nil, err
	}
	fresh := items[:0]
	for _, item := range items {
		if !existing[item.ID] {
			fresh = append(fresh, item)
		}
	}
	return fresh, nil
}

// enrichAndInsert resolves details one listing page at a time, applies the
// disqualifiers and the feed's filter, and inserts survivors. An enrichment
// failure queues the whole page for the retry drain instead of failing the
// sync, except when the failure is the quota block, which must stop the
// caller.
func (s *Syncer) enrichAndInsert(ctx context.Context, lister source.Lister, feed models.Feed, items []source.Item, cc quota.CallContext) ([]models.Episode, error) {
	var inserted []models.Episode
	for start := 0; start < len(items); start += source.PageSize {
		end := start + source.PageSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		ids := make([]string, len(batch))
		for i, item := range batch {
			ids[i] = item.ID
		}
		details, err := lister.Details(ctx, ids, cc)
		if err != nil {
			if errors.Is(err, quota.ErrBlocked) {
				return inserted, err
			}
			log.Printf("detail fetch failed for feed %s, queueing %d item(s) for retry: %v", feed.ID, len(batch), err)
			s.queueForRetry(feed, batch, err)
			continue
		}

		for _, item := range batch {
			detail, ok := details[item.ID]
			if !ok {
				s.queueForRetry(feed, []source.Item{item}, fmt.Errorf("item %s absent from detail response", item.ID))
				continue
			}
			if detail.Disqualified() {
				continue
			}
			if excludedByFilter(feed, detail) {
				continue
			}
			episode := episodeFromDetail(feed, detail)
			ok, err := db.InsertEpisodeIfAbsent(episode)
			if err != nil {
				return inserted, fmt.Errorf("failed to insert episode %s: %w", episode.ID, err)
			}
			if ok {
				inserted = append(inserted, episode)
			}
		}
	}
	return inserted, nil
}

func excludedByFilter(feed models.Feed, detail source.Detail) bool {
	if filter.Excluded(detail.Title,
		deref(feed.TitleContainKeywords), deref(feed.TitleExcludeKeywords),
		feed.MinimumDuration, feed.MaximumDuration, detail.Duration) {
		return true
	}
	return filter.NotMatchesKeyword(detail.Description,
		deref(feed.DescriptionContainKeywords), deref(feed.DescriptionExcludeKeywords))
}

func episodeFromDetail(feed models.Feed, detail source.Detail) models.Episode {
	episode := models.Episode{
		ID:          detail.ID,
		FeedID:      feed.ID,
		Title:       detail.Title,
		Description: detail.Description,
		PublishedAt: detail.PublishedAt,
		Duration:    detail.Duration,
		Status:      models.StatusReady,
		MediaKey:    uuid.NewString(),
	}
	if detail.DefaultCoverURL != "" {
		episode.DefaultCoverURL = &detail.DefaultCoverURL
	}
	if detail.MaxCoverURL != "" {
		episode.MaxCoverURL = &detail.MaxCoverURL
	}
	return episode
}

// admitForDownload promotes the newest N inserted episodes to PENDING and
// hands them to the guard. Episodes beyond the limit stay READY for manual
// download. A nil limit means no cap.
func (s *Syncer) admitForDownload(feed models.Feed, inserted []models.Episode) {
	limit := autoDownloadLimit(feed)
	for i, episode := range inserted {
		if limit != nil && i >= *limit {
			break
		}
		promoted, err := db.MarkReadyEpisodePending(episode.ID)
		if err != nil {
			log.Printf("failed to mark episode %s pending: %v", episode.ID, err)
			continue
		}
		if !promoted {
			continue
		}
		if s.guard != nil {
			s.guard.Submit(episode.ID)
		}
	}
}

func autoDownloadLimit(feed models.Feed) *int {
	if feed.AutoDownloadLimit != nil {
		return feed.AutoDownloadLimit
	}
	defaults, err := db.GetFeedDefaults()
	if err != nil {
		return nil
	}
	return defaults.AutoDownloadLimit
}

func (s *Syncer) queueForRetry(feed models.Feed, items []source.Item, cause error) {
	message := cause.Error()
	for _, item := range items {
		entry := models.PlaylistEpisodeRetry{
			PlaylistID:             feed.ID,
			EpisodeID:              item.ID,
			Position:               item.Position,
			ApproximatePublishedAt: item.PublishedAt,
			NextRetryAt:            s.now().Add(retryBaseDelay),
			LastError:              &message,
		}
		if err := db.UpsertRetryEntry(entry); err != nil {
			log.Printf("failed to queue retry for %s/%s: %v", feed.ID, item.ID, err)
		}
	}
}

// SyncDueChannels syncs every channel feed that is due. Per-feed failures
// are contained; the quota block stops the remaining batch since every
// later feed would hit the same wall.
func (s *Syncer) SyncDueChannels(ctx context.Context) error {
	return s.syncDue(ctx, models.FeedTypeChannel)
}

func (s *Syncer) SyncDuePlaylists(ctx context.Context) error {
	return s.syncDue(ctx, models.FeedTypePlaylist)
}

func (s *Syncer) syncDue(ctx context.Context, feedType string) error {
	feeds, err := db.FindFeedsDueForSync(feedType, s.now())
	if err != nil {
		return fmt.Errorf("failed to find due feeds: %w", err)
	}
	for _, feed := range feeds {
		if err := s.SyncFeed(ctx, feed, quota.Auto); err != nil {
			if errors.Is(err, quota.ErrBlocked) {
				log.Printf("quota blocked while syncing %s; stopping the batch", feed.ID)
				return nil
			}
			log.Printf("failed to sync feed %s: %v", feed.ID, err)
		}
	}
	return nil
}

// DrainRetryQueue re-attempts due enrichment entries oldest first. Success
// finalizes the episode's details and deletes the entry; failure doubles the
// delay; an item the remote now reports as filtered or disqualified is
// dropped along with its placeholder episode.
func (s *Syncer) DrainRetryQueue(ctx context.Context, limit int) error {
	entries, err := db.SelectDueRetryEntries(s.now(), limit)
	if err != nil {
		return fmt.Errorf("failed to select due retry entries: %w", err)
	}
	for _, entry := range entries {
		if err := s.drainOne(ctx, entry); err != nil {
			if errors.Is(err, quota.ErrBlocked) {
				log.Printf("quota blocked while draining retries; stopping the batch")
				return nil
			}
			log.Printf("retry drain failed for %s/%s: %v", entry.PlaylistID, entry.EpisodeID, err)
		}
	}
	return nil
}

func (s *Syncer) drainOne(ctx context.Context, entry models.PlaylistEpisodeRetry) error {
	feed, err := db.GetFeedByID(entry.PlaylistID)
	if err != nil {
		// Feed is gone; the entry is orphaned.
		return db.DeleteRetryEntry(entry.ID)
	}
	lister, err := s.lister(feed.Source)
	if err != nil {
		return err
	}

	details, err := lister.Details(ctx, []string{entry.EpisodeID}, quota.Auto)
	if err != nil {
		if errors.Is(err, quota.ErrBlocked) {
			return err
		}
		s.reschedule(entry, err)
		return nil
	}

	detail, ok := details[entry.EpisodeID]
	if !ok || detail.Disqualified() || excludedByFilter(feed, detail) {
		// Not coming back, or no longer wanted.
		if _, err := db.DeletePendingEpisode(entry.EpisodeID); err != nil {
			log.Printf("failed to delete placeholder for %s: %v", entry.EpisodeID, err)
		}
		return db.DeleteRetryEntry(entry.ID)
	}

	episode := episodeFromDetail(feed, detail)
	if _, err := db.InsertEpisodeIfAbsent(episode); err != nil {
		s.reschedule(entry, err)
		return nil
	}
	if err := db.FinalizeEpisodeDetails(episode); err != nil {
		s.reschedule(entry, err)
		return nil
	}
	return db.DeleteRetryEntry(entry.ID)
}

func (s *Syncer) reschedule(entry models.PlaylistEpisodeRetry, cause error) {
	delay := retryBaseDelay << uint(entry.RetryCount)
	if delay > retryMaxDelay || delay <= 0 {
		delay = retryMaxDelay
	}
	next := s.now().Add(delay)
	if err := db.RescheduleRetryEntry(entry.ID, entry.RetryCount+1, next, cause.Error()); err != nil {
		log.Printf("failed to reschedule retry %d: %v", entry.ID, err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
