package models

import "time"

const (
	BlockReasonLocalLimit  = "LOCAL_LIMIT_REACHED"
	BlockReasonRemoteLimit = "REMOTE_QUOTA_EXCEEDED"
)

// QuotaDailyUsage is one row per platform-local calendar day. Spent units
// only increase within a day; a new day gets a new row, never a reset.
type QuotaDailyUsage struct {
	Platform        string     `db:"platform"`
	UsageDate       string     `db:"usage_date"` // YYYY-MM-DD, platform-local
	RequestCount    int        `db:"request_count"`
	QuotaUnits      int        `db:"quota_units"`
	AutoSyncBlocked bool       `db:"auto_sync_blocked"`
	BlockedReason   *string    `db:"blocked_reason"`
	BlockedAt       *time.Time `db:"blocked_at"`
}

// QuotaMethodUsage is the purely observational per-method breakdown,
// derived additively from the same events that update QuotaDailyUsage.
type QuotaMethodUsage struct {
	Platform     string `db:"platform"`
	UsageDate    string `db:"usage_date"`
	APIMethod    string `db:"api_method"`
	RequestCount int    `db:"request_count"`
	QuotaUnits   int    `db:"quota_units"`
}
