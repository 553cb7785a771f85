package handlers

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"tubecaster/internal/db"
	"tubecaster/internal/models"
)

func (h *Handlers) GetEpisodeStats(w http.ResponseWriter, r *http.Request) {
	counts, err := db.CountEpisodesByStatus()
	if err != nil {
		log.Printf("Error counting episodes: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// DownloadEpisode is the manual admission of a READY episode: promote it to
// PENDING and hand it to the guard. FAILED episodes go through RetryEpisode.
func (h *Handlers) DownloadEpisode(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	episodeID := vars["episodeID"]

	episode, err := db.GetEpisodeIfExists(episodeID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if episode == nil {
		http.Error(w, "Episode not found", http.StatusNotFound)
		return
	}
	if episode.Status != models.StatusReady {
		http.Error(w, "Episode is not in READY state", http.StatusConflict)
		return
	}

	promoted, err := db.MarkReadyEpisodePending(episodeID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if !promoted {
		http.Error(w, "Episode was claimed by another download", http.StatusConflict)
		return
	}
	if !h.guard.Submit(episodeID) {
		http.Error(w, "Episode was claimed by another download", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "download enqueued"})
}

// RetryEpisode re-admits a FAILED episode. Stale media artifacts from the
// failed attempt are removed before the new download starts.
func (h *Handlers) RetryEpisode(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	episodeID := vars["episodeID"]

	episode, err := db.GetEpisodeIfExists(episodeID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if episode == nil {
		http.Error(w, "Episode not found", http.StatusNotFound)
		return
	}
	if episode.Status != models.StatusFailed {
		http.Error(w, "Episode is not in FAILED state", http.StatusConflict)
		return
	}

	h.cleaner.RemoveMedia(*episode)
	if !h.guard.Submit(episodeID) {
		http.Error(w, "Episode was claimed by another download", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "retry enqueued"})
}

// CancelEpisode removes a PENDING episode before a worker picks it up. An
// episode in any other state cannot be cancelled.
func (h *Handlers) CancelEpisode(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	episodeID := vars["episodeID"]

	deleted, err := db.DeletePendingEpisode(episodeID)
	if err != nil {
		log.Printf("Error cancelling episode %s: %v", episodeID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "Episode is not pending", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
