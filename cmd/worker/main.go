package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"tubecaster/internal/db"
	"tubecaster/internal/download"
	"tubecaster/internal/models"
	"tubecaster/internal/quota"
	"tubecaster/internal/source"
	"tubecaster/internal/syncer"
	"tubecaster/internal/worker"
	"tubecaster/pkg/tasks"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file")
	}

	db.InitDB()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "127.0.0.1:6379"
	}
	mediaPath := os.Getenv("MEDIA_PATH")
	if mediaPath == "" {
		mediaPath = "media"
	}
	concurrency := 1
	if v := os.Getenv("DOWNLOAD_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			concurrency = n
		}
	}
	dailyQuota := 10000
	if v := os.Getenv("YOUTUBE_DAILY_QUOTA_UNITS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			dailyQuota = n
		}
	}

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
	defer client.Close()

	youtubeLedger := quota.NewYoutubeLedger(dailyQuota)
	bilibiliLedger := quota.NewBilibiliLedger(0)
	listers := map[string]source.Lister{
		models.SourceYoutube:  source.NewYoutubeClient(os.Getenv("YOUTUBE_API_KEY"), youtubeLedger),
		models.SourceBilibili: source.NewBilibiliClient(bilibiliLedger),
	}

	guard := download.NewGuard(client)
	s := syncer.NewSyncer(listers, guard)
	executor := download.NewExecutor(mediaPath, os.Getenv("COOKIES_FILE"))
	cleaner := download.NewCleaner(mediaPath)

	// A DOWNLOADING row that survived a restart belongs to a dead process.
	download.SweepStale()

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"high":    2,
				"default": 1,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := 5 * time.Minute
				maxDelay := 24 * time.Hour
				for i := 0; i < n; i++ {
					delay *= 2
					if delay > maxDelay {
						delay = maxDelay
						break
					}
				}
				log.Printf("Task %s failed %d times, retrying in %v", task.Type(), n+1, delay)
				return delay
			},
		},
	)

	mux := asynq.NewServeMux()
	taskHandler := worker.NewTaskHandler(s, executor, cleaner)

	mux.HandleFunc(tasks.TypeSyncAllChannels, taskHandler.HandleSyncAllChannelsTask)
	mux.HandleFunc(tasks.TypeSyncAllPlaylists, taskHandler.HandleSyncAllPlaylistsTask)
	mux.HandleFunc(tasks.TypeSyncFeed, taskHandler.HandleSyncFeedTask)
	mux.HandleFunc(tasks.TypeDownloadEpisode, taskHandler.HandleDownloadEpisodeTask)
	mux.HandleFunc(tasks.TypeDrainRetryQueue, taskHandler.HandleDrainRetryQueueTask)
	mux.HandleFunc(tasks.TypeCleanupEpisodes, taskHandler.HandleCleanupEpisodesTask)

	log.Printf("Worker starting (commit: %s)", CommitSHA)
	if err := srv.Run(mux); err != nil {
		log.Fatalf("could not run server: %v", err)
	}
}
