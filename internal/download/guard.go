// Package download owns the episode download lifecycle: the admission guard
// that hands episodes to the worker pool exactly once, and the executor that
// runs the external fetch tool.
package download

import (
	"log"

	"tubecaster/internal/db"
	"tubecaster/pkg/tasks"
)

// Guard admits episodes into the download pool. The status flip to
// DOWNLOADING is the lock: it succeeds for exactly one of any number of
// concurrent submitters, and a submission the pool refuses is rolled back
// so the episode stays claimable.
type Guard struct {
	asynqClient tasks.TaskEnqueuer
}

func NewGuard(client tasks.TaskEnqueuer) *Guard {
	return &Guard{asynqClient: client}
}

// Submit claims the episode and enqueues its download task. It returns true
// only when this caller both won the claim and handed the task off.
func (g *Guard) Submit(episodeID string) bool {
	var won bool
	err := db.WithBackoff(func() error {
		var err error
		won, err = db.TryMarkDownloading(episodeID)
		return err
	})
	if err != nil {
		log.Printf("failed to claim episode %s for download: %v", episodeID, err)
		return false
	}
	if !won {
		return false
	}

	task, err := tasks.NewDownloadEpisodeTask(episodeID)
	if err != nil {
		g.rollback(episodeID)
		return false
	}
	if _, err := g.asynqClient.Enqueue(task); err != nil {
		log.Printf("failed to enqueue download for episode %s: %v", episodeID, err)
		g.rollback(episodeID)
		return false
	}
	return true
}

// rollback releases a claim whose handoff failed. Nothing else can be in
// DOWNLOADING for this id, so the guarded update is safe to retry blindly.
func (g *Guard) rollback(episodeID string) {
	err := db.WithBackoff(func() error {
		return db.RollbackDownloadingToPending(episodeID)
	})
	if err != nil {
		log.Printf("failed to roll back claim for episode %s: %v", episodeID, err)
	}
}

// SweepStale resets every DOWNLOADING row to PENDING. Called once at worker
// startup, before the pool starts consuming: any in-flight marker that
// survived a restart belongs to a dead process.
func SweepStale() {
	n, err := db.ResetStaleDownloading()
	if err != nil {
		log.Printf("failed to sweep stale downloads: %v", err)
		return
	}
	if n > 0 {
		log.Printf("reset %d stale downloading episode(s) to pending", n)
	}
}
