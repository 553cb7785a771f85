package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"tubecaster/internal/db"
	"tubecaster/internal/feed"
	"tubecaster/internal/models"
	"tubecaster/pkg/tasks"
)

func (h *Handlers) GetRSSFeed(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	feedID := vars["feedID"]

	f, err := db.GetFeedByID(feedID)
	if err != nil {
		http.Error(w, "Feed not found", http.StatusNotFound)
		return
	}

	episodes, err := db.GetCompletedEpisodesByFeedID(f.ID)
	if err != nil {
		log.Printf("Error getting episodes: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	rss, err := feed.GenerateRSS(f, episodes, r)
	if err != nil {
		log.Printf("Error generating RSS: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml")
	w.Write([]byte(rss))
}

// ServeMediaFile resolves a media key to the stored file. The key in the URL
// carries an extension for player compatibility; only the stem is the key.
func (h *Handlers) ServeMediaFile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["filename"]
	key := strings.TrimSuffix(name, filepath.Ext(name))

	episode, err := db.GetEpisodeByMediaKey(key)
	if err != nil || episode.MediaPath == nil {
		http.Error(w, "Media not found", http.StatusNotFound)
		return
	}
	http.ServeFile(w, r, *episode.MediaPath)
}

func (h *Handlers) ListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := db.GetAllFeeds()
	if err != nil {
		log.Printf("Error listing feeds: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, feeds)
}

func (h *Handlers) AddFeed(w http.ResponseWriter, r *http.Request) {
	var f models.Feed
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if f.ID == "" || f.Type == "" || f.Source == "" {
		http.Error(w, "id, type and source are required", http.StatusBadRequest)
		return
	}
	f.SyncEnabled = true

	if err := db.AddFeed(f); err != nil {
		http.Error(w, "Failed to add feed", http.StatusInternalServerError)
		return
	}

	// First sync runs out of band; subscribing stays fast.
	task, err := tasks.NewSyncFeedTask(f.ID, true)
	if err == nil {
		if _, err := h.asynqClient.Enqueue(task); err != nil {
			log.Printf("failed to enqueue initial sync for %s: %v", f.ID, err)
		}
	}

	writeJSON(w, http.StatusCreated, f)
}

func (h *Handlers) DeleteFeed(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	feedID := vars["feedID"]

	episodes, err := db.GetEpisodesByFeedID(feedID)
	if err != nil {
		log.Printf("Error loading episodes for feed %s: %v", feedID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	for _, episode := range episodes {
		h.cleaner.RemoveMedia(episode)
	}

	if err := db.DeleteFeed(feedID); err != nil {
		log.Printf("Error deleting feed %s: %v", feedID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RefreshFeed triggers an out-of-cadence sync with the manual quota context.
func (h *Handlers) RefreshFeed(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	feedID := vars["feedID"]

	if _, err := db.GetFeedByID(feedID); err != nil {
		http.Error(w, "Feed not found", http.StatusNotFound)
		return
	}

	task, err := tasks.NewSyncFeedTask(feedID, true)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if _, err := h.asynqClient.Enqueue(task); err != nil {
		log.Printf("failed to enqueue manual sync for %s: %v", feedID, err)
		http.Error(w, "Failed to enqueue sync", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync enqueued"})
}

func (h *Handlers) GetFeedDefaults(w http.ResponseWriter, r *http.Request) {
	defaults, err := db.GetFeedDefaults()
	if err != nil {
		// No row yet means no defaults configured.
		writeJSON(w, http.StatusOK, models.FeedDefaults{})
		return
	}
	writeJSON(w, http.StatusOK, defaults)
}

func (h *Handlers) PutFeedDefaults(w http.ResponseWriter, r *http.Request) {
	var defaults models.FeedDefaults
	if err := json.NewDecoder(r.Body).Decode(&defaults); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := db.UpsertFeedDefaults(defaults); err != nil {
		log.Printf("Error saving feed defaults: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, defaults)
}
