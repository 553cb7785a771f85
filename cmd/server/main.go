package main

import (
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"tubecaster/internal/db"
	"tubecaster/internal/download"
	"tubecaster/internal/handlers"
	"tubecaster/internal/middleware"
	"tubecaster/internal/models"
	"tubecaster/internal/quota"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file")
	}

	db.InitDB()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "127.0.0.1:6379"
	}
	mediaPath := os.Getenv("MEDIA_PATH")
	if mediaPath == "" {
		mediaPath = "media"
	}
	dailyQuota := 10000
	if v := os.Getenv("YOUTUBE_DAILY_QUOTA_UNITS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			dailyQuota = n
		}
	}

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
	defer client.Close()

	ledgers := map[string]*quota.Ledger{
		models.SourceYoutube:  quota.NewYoutubeLedger(dailyQuota),
		models.SourceBilibili: quota.NewBilibiliLedger(0),
	}

	guard := download.NewGuard(client)
	cleaner := download.NewCleaner(mediaPath)
	h := handlers.New(client, guard, cleaner, ledgers, mediaPath)

	rateLimiter := middleware.NewRateLimiterMiddleware(rate.Limit(5), 10)

	r := mux.NewRouter()
	r.Use(rateLimiter.Middleware)

	r.HandleFunc("/rss/{feedID}", h.GetRSSFeed).Methods("GET")
	r.HandleFunc("/media/{filename}", h.ServeMediaFile).Methods("GET")

	r.HandleFunc("/feeds", h.ListFeeds).Methods("GET")
	r.HandleFunc("/feeds", h.AddFeed).Methods("POST")
	r.HandleFunc("/feeds/defaults", h.GetFeedDefaults).Methods("GET")
	r.HandleFunc("/feeds/defaults", h.PutFeedDefaults).Methods("PUT")
	r.HandleFunc("/feeds/{feedID}", h.DeleteFeed).Methods("DELETE")
	r.HandleFunc("/feeds/{feedID}/refresh", h.RefreshFeed).Methods("POST")

	r.HandleFunc("/episodes/stats", h.GetEpisodeStats).Methods("GET")
	r.HandleFunc("/episodes/{episodeID}", h.CancelEpisode).Methods("DELETE")
	r.HandleFunc("/episodes/{episodeID}/download", h.DownloadEpisode).Methods("POST")
	r.HandleFunc("/episodes/{episodeID}/retry", h.RetryEpisode).Methods("POST")

	r.HandleFunc("/quota/today", h.GetQuotaToday).Methods("GET")

	log.Printf("Server starting on :%s (commit: %s)", port, CommitSHA)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatal(err)
	}
}
