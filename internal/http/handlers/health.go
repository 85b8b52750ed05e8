package handlers

import "net/http"

// Index describes the API surface.
func (a *App) Index(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"message": "Veo Video Generation API",
		"endpoints": map[string]string{
			"generate": "POST /api/generate-video",
			"videos":   "GET /api/videos",
			"history":  "GET /api/history",
			"health":   "GET /health",
		},
	})
}

// Health is the liveness probe.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "healthy"})
}
