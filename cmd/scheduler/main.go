package main

import (
	"log"
	"os"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"tubecaster/pkg/tasks"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file")
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "127.0.0.1:6379"
	}

	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{Addr: redisAddr},
		&asynq.SchedulerOpts{},
	)

	register := func(cron string, task *asynq.Task, taskErr error) {
		if taskErr != nil {
			log.Fatalf("could not create task: %v", taskErr)
		}
		if _, err := scheduler.Register(cron, task); err != nil {
			log.Fatalf("could not register task %s: %v", task.Type(), err)
		}
	}

	channelTask, err := tasks.NewSyncAllChannelsTask()
	register("@every 1h", channelTask, err)

	playlistTask, err := tasks.NewSyncAllPlaylistsTask()
	register("@every 3h", playlistTask, err)

	drainTask, err := tasks.NewDrainRetryQueueTask()
	register("@every 15m", drainTask, err)

	cleanupTask, err := tasks.NewCleanupEpisodesTask()
	register("@every 24h", cleanupTask, err)

	log.Printf("Scheduler starting (commit: %s)", CommitSHA)
	if err := scheduler.Run(); err != nil {
		log.Fatalf("could not run scheduler: %v", err)
	}
}
