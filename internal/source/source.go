// Package source talks to the remote listing APIs (YouTube Data API,
// Bilibili HTTP API). Every call is budgeted through the quota ledger, and
// remote quota-exhaustion responses flip the day's blocked flag.
package source

import (
	"context"
	"time"

	"tubecaster/internal/models"
	"tubecaster/internal/quota"
)

// Item is one entry of a paged remote listing, in listing order.
type Item struct {
	ID          string
	Title       string
	Position    int64
	PublishedAt *time.Time
}

// Detail is the per-item enrichment payload. Fields may be missing on the
// remote side; absent duration or live-broadcast markers disqualify the item
// rather than failing the sync.
type Detail struct {
	ID              string
	Title           string
	Description     string
	PublishedAt     *time.Time
	Duration        string // ISO 8601
	LiveBroadcast   string // "none", "live", "upcoming"
	ScheduledStart  *time.Time
	ActualEnd       *time.Time
	DefaultCoverURL string
	MaxCoverURL     string
}

// Disqualified reports remote-side signals that mark an entry transient or
// invalid: no readable duration, an in-progress or upcoming live broadcast,
// or a scheduled stream that never ended.
func (d Detail) Disqualified() bool {
	if d.Duration == "" {
		return true
	}
	if d.LiveBroadcast == "live" || d.LiveBroadcast == "upcoming" {
		return true
	}
	if d.ScheduledStart != nil && d.ActualEnd == nil {
		return true
	}
	return false
}

// Lister is the read-only view of a remote platform used by the sync engine.
type Lister interface {
	// ListPage fetches one page of the feed's listing. An empty next page
	// token means the listing is exhausted.
	ListPage(ctx context.Context, feed models.Feed, pageToken string, cc quota.CallContext) ([]Item, string, error)
	// Details resolves enrichment data for up to one page of ids. Missing
	// ids are simply absent from the result map.
	Details(ctx context.Context, ids []string, cc quota.CallContext) (map[string]Detail, error)
}

// PageSize is the fixed listing page size used by all sources.
const PageSize = 50

// execute reserves budget for one remote call and runs it, converting a
// refused AUTO reservation into ErrBlocked and converting a remote quota
// error into a durable block for the rest of the day.
func execute(ledger *quota.Ledger, method quota.Method, cc quota.CallContext, fn func() error) error {
	reserved, err := ledger.Reserve(method, cc)
	if err != nil {
		return err
	}
	if !reserved {
		return quota.ErrBlocked
	}

	if err := fn(); err != nil {
		if quota.IsQuotaExceededError(err) {
			if markErr := ledger.MarkBlockedByRemote(); markErr != nil {
				return markErr
			}
		}
		return err
	}
	return nil
}
