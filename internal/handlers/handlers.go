package handlers

import (
	"encoding/json"
	"net/http"

	"tubecaster/internal/download"
	"tubecaster/internal/quota"
	"tubecaster/pkg/tasks"
)

type Handlers struct {
	asynqClient tasks.TaskEnqueuer
	guard       *download.Guard
	cleaner     *download.Cleaner
	ledgers     map[string]*quota.Ledger
	mediaRoot   string
}

func New(asynqClient tasks.TaskEnqueuer, guard *download.Guard, cleaner *download.Cleaner, ledgers map[string]*quota.Ledger, mediaRoot string) *Handlers {
	return &Handlers{
		asynqClient: asynqClient,
		guard:       guard,
		cleaner:     cleaner,
		ledgers:     ledgers,
		mediaRoot:   mediaRoot,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
