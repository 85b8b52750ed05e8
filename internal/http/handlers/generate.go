package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"veogen/internal/adapter/repo"
	"veogen/internal/domain"
)

type generateRequest struct {
	Prompt        string `json:"prompt"`
	AspectRatio   string `json:"aspect_ratio"`
	EnhancePrompt *bool  `json:"enhance_prompt"`
}

type generateResponse struct {
	Message        string  `json:"message"`
	VideoURL       string  `json:"video_url"`
	Backend        string  `json:"backend"`
	Filename       string  `json:"filename"`
	OriginalPrompt string  `json:"original_prompt"`
	EnhancedPrompt *string `json:"enhanced_prompt"`
	UsedFallback   bool    `json:"used_fallback"`
}

// GenerateVideo runs the full text-to-video pipeline for one request. The
// connection stays open for the duration of the generation, so the server's
// write timeout is sized against the poll deadline.
func (a *App) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	var body generateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.error(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}

	aspect, ok := domain.ParseAspectRatio(body.AspectRatio)
	if !ok {
		a.error(w, http.StatusBadRequest, "invalid_request", "aspect_ratio must be one of 16:9, 9:16, 1:1")
		return
	}

	enhance := true
	if body.EnhancePrompt != nil {
		enhance = *body.EnhancePrompt
	}

	req := domain.GenerationRequest{
		Prompt:      body.Prompt,
		AspectRatio: aspect,
		Enhance:     enhance,
	}

	result, err := a.Generator.Generate(r.Context(), req)
	if err != nil {
		a.writeGenerationError(w, err)
		return
	}

	a.recordHistory(r, req, result)

	resp := generateResponse{
		Message:        "Video generated successfully",
		VideoURL:       result.Artifact.URI,
		Backend:        string(result.Artifact.Backend),
		Filename:       result.Artifact.Filename,
		OriginalPrompt: result.Prompt.Original,
		UsedFallback:   result.Prompt.UsedFallback,
	}
	if enhance && !result.Prompt.UsedFallback {
		resp.EnhancedPrompt = &result.Prompt.Enhanced
	}
	a.json(w, http.StatusOK, resp)
}

func (a *App) writeGenerationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		a.error(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrSubmissionFailed):
		a.error(w, http.StatusBadGateway, "submission_failed", err.Error())
	case errors.Is(err, domain.ErrGenerationTimeout):
		a.error(w, http.StatusGatewayTimeout, "generation_timeout", err.Error())
	case errors.Is(err, domain.ErrGenerationFailed):
		a.error(w, http.StatusBadGateway, "generation_failed", err.Error())
	case errors.Is(err, domain.ErrStorageFailed):
		a.error(w, http.StatusInternalServerError, "storage_failed", err.Error())
	default:
		a.Logger.Error().Err(err).Msg("generation failed with unclassified error")
		a.error(w, http.StatusInternalServerError, "internal_error", "video generation failed")
	}
}

// recordHistory is best effort. A failed insert never fails a request that
// already produced a video.
func (a *App) recordHistory(r *http.Request, req domain.GenerationRequest, result *domain.GenerationResult) {
	if a.History == nil {
		return
	}
	rec := &repo.GenerationRecord{
		ID:             uuid.NewString(),
		Prompt:         result.Prompt.Original,
		EnhancedPrompt: result.Prompt.Enhanced,
		UsedFallback:   result.Prompt.UsedFallback,
		AspectRatio:    string(req.AspectRatio),
		Backend:        string(result.Artifact.Backend),
		URI:            result.Artifact.URI,
		Filename:       result.Artifact.Filename,
		Bytes:          result.Artifact.Bytes,
	}
	if err := a.History.Record(r.Context(), rec); err != nil {
		a.Logger.Warn().Err(err).Str("record_id", rec.ID).Msg("failed to record generation history")
	}
}
