package db

import (
	"database/sql"

	"tubecaster/internal/models"
)

func EnsureQuotaDayRow(platform, usageDate string) error {
	_, err := DB.Exec(`
		INSERT INTO quota_daily_usage (platform, usage_date, request_count, quota_units, auto_sync_blocked)
		VALUES ($1, $2, 0, 0, FALSE)
		ON CONFLICT (platform, usage_date) DO NOTHING`,
		platform, usageDate)
	return err
}

func IncrementQuotaUsage(platform, usageDate string, units int) error {
	_, err := DB.Exec(`
		UPDATE quota_daily_usage
		SET request_count = request_count + 1, quota_units = quota_units + $1
		WHERE platform = $2 AND usage_date = $3`,
		units, platform, usageDate)
	return err
}

// TryIncrementQuotaWithinLimit is the atomic "increment only if the resulting
// spend stays within the limit" update. A zero row count means the budget is
// exhausted.
func TryIncrementQuotaWithinLimit(platform, usageDate string, units, limitUnits int) (bool, error) {
	res, err := DB.Exec(`
		UPDATE quota_daily_usage
		SET request_count = request_count + 1, quota_units = quota_units + $1
		WHERE platform = $2 AND usage_date = $3 AND quota_units + $1 <= $4`,
		units, platform, usageDate, limitUnits)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// BlockAutoSync flags the day; the first block wins the timestamp.
func BlockAutoSync(platform, usageDate, reason string) error {
	_, err := DB.Exec(`
		UPDATE quota_daily_usage
		SET auto_sync_blocked = TRUE,
		    blocked_reason = $1,
		    blocked_at = COALESCE(blocked_at, NOW())
		WHERE platform = $2 AND usage_date = $3`,
		reason, platform, usageDate)
	return err
}

func GetQuotaDailyUsage(platform, usageDate string) (*models.QuotaDailyUsage, error) {
	usage := models.QuotaDailyUsage{}
	err := DB.Get(&usage,
		"SELECT * FROM quota_daily_usage WHERE platform = $1 AND usage_date = $2",
		platform, usageDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

func IncrementQuotaMethodUsage(platform, usageDate, method string, units int) error {
	_, err := DB.Exec(`
		INSERT INTO quota_daily_usage_method (platform, usage_date, api_method, request_count, quota_units)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (platform, usage_date, api_method) DO UPDATE SET
		 request_count = quota_daily_usage_method.request_count + 1,
		 quota_units = quota_daily_usage_method.quota_units + EXCLUDED.quota_units`,
		platform, usageDate, method, units)
	return err
}

func GetQuotaMethodUsage(platform, usageDate string) ([]models.QuotaMethodUsage, error) {
	var usages []models.QuotaMethodUsage
	err := DB.Select(&usages, `
		SELECT * FROM quota_daily_usage_method
		WHERE platform = $1 AND usage_date = $2
		ORDER BY api_method ASC`,
		platform, usageDate)
	return usages, err
}
