// Package quota tracks daily API spend per platform and blocks unattended
// sync once the local or remote budget is exhausted. Manual calls are never
// budgeted; the day is keyed to the platform's local calendar, so a block
// lasts until the platform's midnight creates a fresh row.
package quota

import (
	"errors"
	"log"
	"strings"
	"time"

	"tubecaster/internal/db"
	"tubecaster/internal/models"
)

// CallContext marks whether the current call chain was triggered by the
// scheduler (AUTO) or by an operator (MANUAL). It is passed explicitly
// through every chain that reaches the ledger.
type CallContext int

const (
	Auto CallContext = iota
	Manual
)

// Method is a billable remote API method.
type Method struct {
	Name string
	Cost int
}

// YouTube Data API v3 unit costs.
var (
	MethodSearchList        = Method{"search.list", 100}
	MethodChannelsList      = Method{"channels.list", 1}
	MethodPlaylistsList     = Method{"playlists.list", 1}
	MethodPlaylistItemsList = Method{"playlistItems.list", 1}
	MethodVideosList        = Method{"videos.list", 1}
)

// Bilibili endpoints carry no published unit costs; each request is billed
// as a single unit against the configured daily limit.
var (
	MethodSpaceArchives = Method{"space.archives", 1}
	MethodFavResources  = Method{"fav.resources", 1}
	MethodArchiveView   = Method{"archive.view", 1}
)

// ErrBlocked is returned to AUTO callers once the day's budget is spent or
// the remote platform reported exhaustion.
var ErrBlocked = errors.New("daily quota reached; auto sync is blocked until the platform's next calendar day")

// RemoteError carries the structured payload of a remote API failure so the
// ledger can recognize quota exhaustion by reason code.
type RemoteError struct {
	StatusCode int
	Reasons    []string
	Message    string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Ledger is the per-platform budget keeper. DailyLimit <= 0 means no local
// limit is configured and AUTO calls are only stopped by remote exhaustion.
type Ledger struct {
	Platform   string
	Zone       *time.Location
	DailyLimit int
}

// NewYoutubeLedger keys the day to Pacific time, which is what the YouTube
// quota window uses.
func NewYoutubeLedger(dailyLimit int) *Ledger {
	zone, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		zone = time.UTC
	}
	return &Ledger{Platform: models.SourceYoutube, Zone: zone, DailyLimit: dailyLimit}
}

// NewBilibiliLedger counts requests on the platform's local day. Bilibili
// publishes no unit model, so every method costs one unit.
func NewBilibiliLedger(dailyLimit int) *Ledger {
	zone, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		zone = time.UTC
	}
	return &Ledger{Platform: models.SourceBilibili, Zone: zone, DailyLimit: dailyLimit}
}

func (l *Ledger) today() string {
	return time.Now().In(l.Zone).Format("2006-01-02")
}

// Reserve spends budget for one call and reports whether it may proceed.
// AUTO calls are refused without touching the network once the day is
// blocked, and blocked with LOCAL_LIMIT_REACHED when the conditional
// increment finds no room. MANUAL calls always proceed and are still
// recorded.
func (l *Ledger) Reserve(method Method, callContext CallContext) (bool, error) {
	usageDate := l.today()

	if err := db.EnsureQuotaDayRow(l.Platform, usageDate); err != nil {
		return false, err
	}

	if callContext == Auto {
		blocked, err := l.BlockedToday()
		if err != nil {
			return false, err
		}
		if blocked {
			return false, nil
		}
	}

	if callContext == Auto && l.DailyLimit > 0 {
		ok, err := db.TryIncrementQuotaWithinLimit(l.Platform, usageDate, method.Cost, l.DailyLimit)
		if err != nil {
			return false, err
		}
		if !ok {
			if err := db.BlockAutoSync(l.Platform, usageDate, models.BlockReasonLocalLimit); err != nil {
				return false, err
			}
			log.Printf("%s daily quota limit reached; auto sync blocked (date=%s, limit=%d)",
				l.Platform, usageDate, l.DailyLimit)
			return false, nil
		}
	} else {
		if err := db.IncrementQuotaUsage(l.Platform, usageDate, method.Cost); err != nil {
			return false, err
		}
	}

	if err := db.IncrementQuotaMethodUsage(l.Platform, usageDate, method.Name, method.Cost); err != nil {
		// The breakdown is observational; losing one increment must not fail
		// the reservation.
		log.Printf("failed to record method usage for %s %s: %v", l.Platform, method.Name, err)
	}
	return true, nil
}

// MarkBlockedByRemote flags today blocked because the platform itself
// reported exhaustion. The remote ground truth wins over any local budget.
func (l *Ledger) MarkBlockedByRemote() error {
	usageDate := l.today()
	if err := db.EnsureQuotaDayRow(l.Platform, usageDate); err != nil {
		return err
	}
	return db.BlockAutoSync(l.Platform, usageDate, models.BlockReasonRemoteLimit)
}

func (l *Ledger) BlockedToday() (bool, error) {
	usage, err := db.GetQuotaDailyUsage(l.Platform, l.today())
	if err != nil {
		return false, err
	}
	return usage != nil && usage.AutoSyncBlocked, nil
}

// TodayUsage summarizes the day for the operator status endpoint.
type TodayUsage struct {
	Platform        string                    `json:"platform"`
	UsageDate       string                    `json:"usageDate"`
	DailyLimitUnits int                       `json:"dailyLimitUnits,omitempty"`
	RequestCount    int                       `json:"requestCount"`
	UsedUnits       int                       `json:"usedUnits"`
	RemainingUnits  *int                      `json:"remainingUnits,omitempty"`
	AutoSyncBlocked bool                      `json:"autoSyncBlocked"`
	BlockedReason   *string                   `json:"blockedReason,omitempty"`
	MethodBreakdown []models.QuotaMethodUsage `json:"methodBreakdown"`
}

func (l *Ledger) Today() (TodayUsage, error) {
	usageDate := l.today()
	result := TodayUsage{Platform: l.Platform, UsageDate: usageDate, DailyLimitUnits: l.DailyLimit}

	usage, err := db.GetQuotaDailyUsage(l.Platform, usageDate)
	if err != nil {
		return result, err
	}
	if usage != nil {
		result.RequestCount = usage.RequestCount
		result.UsedUnits = usage.QuotaUnits
		result.AutoSyncBlocked = usage.AutoSyncBlocked
		result.BlockedReason = usage.BlockedReason
	}
	if l.DailyLimit > 0 {
		remaining := l.DailyLimit - result.UsedUnits
		if remaining < 0 {
			remaining = 0
		}
		result.RemainingUnits = &remaining
	}

	breakdown, err := db.GetQuotaMethodUsage(l.Platform, usageDate)
	if err != nil {
		return result, err
	}
	result.MethodBreakdown = breakdown
	return result, nil
}

// IsQuotaExceededError recognizes remote quota exhaustion from structured
// reason codes, falling back to a case-insensitive message substring.
func IsQuotaExceededError(err error) bool {
	if err == nil {
		return false
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		for _, reason := range remote.Reasons {
			if reason == "quotaExceeded" || reason == "dailyLimitExceeded" {
				return true
			}
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "quota")
}
