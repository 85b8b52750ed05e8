package handlers

import (
	"net/http"
	"strconv"

	"veogen/internal/adapter/repo"
)

type historyResponse struct {
	Total   int                     `json:"total"`
	Records []repo.GenerationRecord `json:"records"`
}

// ListHistory returns recent generation records, newest first. Responds 503
// when the service runs without a database.
func (a *App) ListHistory(w http.ResponseWriter, r *http.Request) {
	if a.History == nil {
		a.error(w, http.StatusServiceUnavailable, "history_unavailable", "generation history is not configured")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			a.error(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := a.History.Recent(r.Context(), limit)
	if err != nil {
		a.Logger.Error().Err(err).Msg("failed to load generation history")
		a.error(w, http.StatusInternalServerError, "history_failed", "failed to load generation history")
		return
	}
	if records == nil {
		records = []repo.GenerationRecord{}
	}
	a.json(w, http.StatusOK, historyResponse{Total: len(records), Records: records})
}
