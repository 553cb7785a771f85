package db

import (
	"database/sql"
	"log"

	"github.com/jmoiron/sqlx"

	"tubecaster/internal/models"
)

func GetEpisodeByID(id string) (models.Episode, error) {
	episode := models.Episode{}
	err := DB.Get(&episode, "SELECT * FROM episodes WHERE id = $1", id)
	return episode, err
}

func GetEpisodeByMediaKey(key string) (models.Episode, error) {
	episode := models.Episode{}
	err := DB.Get(&episode, "SELECT * FROM episodes WHERE media_key = $1", key)
	return episode, err
}

func GetEpisodesByFeedID(feedID string) ([]models.Episode, error) {
	var episodes []models.Episode
	err := DB.Select(&episodes,
		"SELECT * FROM episodes WHERE feed_id = $1 ORDER BY published_at DESC", feedID)
	return episodes, err
}

func GetCompletedEpisodesByFeedID(feedID string) ([]models.Episode, error) {
	var episodes []models.Episode
	err := DB.Select(&episodes,
		"SELECT * FROM episodes WHERE feed_id = $1 AND status = $2 ORDER BY published_at DESC",
		feedID, models.StatusCompleted)
	return episodes, err
}

// ExistingEpisodeIDs returns the subset of ids already present, so sync
// inserts stay idempotent.
func ExistingEpisodeIDs(ids []string) (map[string]bool, error) {
	existing := map[string]bool{}
	if len(ids) == 0 {
		return existing, nil
	}
	query, args, err := sqlx.In("SELECT id FROM episodes WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	rows, err := DB.Query(DB.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing[id] = true
	}
	return existing, rows.Err()
}

// InsertEpisodeIfAbsent persists a newly-discovered episode. Re-discovered
// ids are skipped without error.
func InsertEpisodeIfAbsent(e models.Episode) (bool, error) {
	res, err := DB.Exec(`
		INSERT INTO episodes
		(id, feed_id, title, description, published_at, duration, default_cover_url, max_cover_url,
		 status, media_key, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, NOW())
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.FeedID, e.Title, e.Description, e.PublishedAt, e.Duration,
		e.DefaultCoverURL, e.MaxCoverURL, e.Status, e.MediaKey)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// TryMarkDownloading performs the admission guard's check-and-set: the flip
// to DOWNLOADING succeeds only from PENDING or FAILED, so two concurrent
// submitters cannot both win.
func TryMarkDownloading(id string) (bool, error) {
	res, err := DB.Exec(
		"UPDATE episodes SET status = $1 WHERE id = $2 AND status IN ($3, $4)",
		models.StatusDownloading, id, models.StatusPending, models.StatusFailed)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RollbackDownloadingToPending undoes an admission whose pool submission was
// rejected. Only a row still in DOWNLOADING is touched.
func RollbackDownloadingToPending(id string) error {
	_, err := DB.Exec(
		"UPDATE episodes SET status = $1 WHERE id = $2 AND status = $3",
		models.StatusPending, id, models.StatusDownloading)
	return err
}

// MarkReadyEpisodePending promotes a READY episode for download admission.
// Guarded like the other status flips so concurrent promoters cannot race.
func MarkReadyEpisodePending(id string) (bool, error) {
	res, err := DB.Exec(
		"UPDATE episodes SET status = $1 WHERE id = $2 AND status = $3",
		models.StatusPending, id, models.StatusReady)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkEpisodeCompleted records a successful download and clears any error
// log left over from earlier attempts.
func MarkEpisodeCompleted(id, mediaPath, mediaType string, sizeBytes int64) error {
	_, err := DB.Exec(`
		UPDATE episodes
		SET status = $1, media_path = $2, media_type = $3, media_size_bytes = $4, error_log = NULL
		WHERE id = $5`,
		models.StatusCompleted, mediaPath, mediaType, sizeBytes, id)
	return err
}

// MarkEpisodeFailed records the diagnostic text and bumps the retry counter.
func MarkEpisodeFailed(id, errorLog string) error {
	_, err := DB.Exec(`
		UPDATE episodes
		SET status = $1, error_log = $2, retry_count = retry_count + 1
		WHERE id = $3`,
		models.StatusFailed, errorLog, id)
	return err
}

// ResetStaleDownloading flips every DOWNLOADING episode back to PENDING.
// Run at worker startup: an in-flight marker that survived a restart is an
// artifact of a crash and cannot be trusted.
func ResetStaleDownloading() (int64, error) {
	res, err := DB.Exec("UPDATE episodes SET status = $1 WHERE status = $2",
		models.StatusPending, models.StatusDownloading)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeletePendingEpisode is the user cancel: a direct delete, valid only while
// the episode has not been handed to a worker.
func DeletePendingEpisode(id string) (bool, error) {
	res, err := DB.Exec("DELETE FROM episodes WHERE id = $1 AND status = $2",
		id, models.StatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func DeleteEpisode(id string) error {
	_, err := DB.Exec("DELETE FROM episodes WHERE id = $1", id)
	return err
}

func DeleteEpisodesByFeedID(feedID string) error {
	_, err := DB.Exec("DELETE FROM episodes WHERE feed_id = $1", feedID)
	return err
}

// FinalizeEpisodeDetails fills in metadata recovered by the enrichment
// retry drain.
func FinalizeEpisodeDetails(e models.Episode) error {
	_, err := DB.Exec(`
		UPDATE episodes
		SET title = $1, description = $2, published_at = $3, duration = $4,
		    default_cover_url = $5, max_cover_url = $6
		WHERE id = $7`,
		e.Title, e.Description, e.PublishedAt, e.Duration,
		e.DefaultCoverURL, e.MaxCoverURL, e.ID)
	return err
}

// OldestCompletedEpisodes returns the oldest COMPLETED episodes of a feed,
// used by the cleanup job to enforce the episode-count ceiling.
func OldestCompletedEpisodes(feedID string, limit int) ([]models.Episode, error) {
	var episodes []models.Episode
	err := DB.Select(&episodes, `
		SELECT * FROM episodes
		WHERE feed_id = $1 AND status = $2
		ORDER BY published_at ASC
		LIMIT $3`,
		feedID, models.StatusCompleted, limit)
	return episodes, err
}

func CountCompletedEpisodes(feedID string) (int, error) {
	var count int
	err := DB.Get(&count,
		"SELECT COUNT(*) FROM episodes WHERE feed_id = $1 AND status = $2",
		feedID, models.StatusCompleted)
	return count, err
}

// CountEpisodesByStatus powers the operator statistics endpoint.
func CountEpisodesByStatus() (map[string]int, error) {
	rows, err := DB.Query("SELECT status, COUNT(*) FROM episodes GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// GetEpisodeIfExists distinguishes "absent" from a query failure.
func GetEpisodeIfExists(id string) (*models.Episode, error) {
	episode, err := GetEpisodeByID(id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		log.Printf("Error looking up episode %s: %v", id, err)
		return nil, err
	}
	return &episode, nil
}
