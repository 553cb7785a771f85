package handlers

import (
	"log"
	"net/http"

	"tubecaster/internal/quota"
)

// GetQuotaToday reports today's spend and block state for every platform.
func (h *Handlers) GetQuotaToday(w http.ResponseWriter, r *http.Request) {
	summaries := make([]quota.TodayUsage, 0, len(h.ledgers))
	for _, ledger := range h.ledgers {
		summary, err := ledger.Today()
		if err != nil {
			log.Printf("Error reading quota for %s: %v", ledger.Platform, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		summaries = append(summaries, summary)
	}
	writeJSON(w, http.StatusOK, summaries)
}
