package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"veogen/internal/adapter/repo"
	"veogen/internal/domain"
)

// Generator is the single inbound operation of the pipeline core.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResult, error)
}

// VideoLister is the storage backend's listing capability.
type VideoLister interface {
	List(ctx context.Context, folder string, maxResults int) ([]domain.CloudVideo, error)
}

// History records and lists completed generations. Nil when no database is
// configured.
type History interface {
	Record(ctx context.Context, rec *repo.GenerationRecord) error
	Recent(ctx context.Context, limit int) ([]repo.GenerationRecord, error)
}

// App bundles handler dependencies. The boundary layer only decodes,
// validates, invokes the orchestrator and maps results to transport
// responses; it owns no orchestration logic.
type App struct {
	Generator     Generator
	Videos        VideoLister
	History       History
	DefaultFolder string
	Logger        zerolog.Logger
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, errorResponse{Error: kind, Message: message})
}
