package handlers

import (
	"errors"
	"net/http"
	"path"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"veogen/internal/domain"
	"veogen/internal/storage"
)

var titleCaser = cases.Title(language.Und)

type videoItem struct {
	domain.CloudVideo
	Title string `json:"title"`
}

type videosResponse struct {
	Folder string      `json:"folder"`
	Total  int         `json:"total"`
	Videos []videoItem `json:"videos"`
}

// ListVideos returns the stored videos in the configured CDN folder.
// Optional query parameters: folder, max_results.
func (a *App) ListVideos(w http.ResponseWriter, r *http.Request) {
	folder := r.URL.Query().Get("folder")
	if folder == "" {
		folder = a.DefaultFolder
	}

	maxResults := 0
	if raw := r.URL.Query().Get("max_results"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			a.error(w, http.StatusBadRequest, "invalid_request", "max_results must be a positive integer")
			return
		}
		maxResults = n
	}

	videos, err := a.Videos.List(r.Context(), folder, maxResults)
	if err != nil {
		if errors.Is(err, storage.ErrCDNNotConfigured) {
			a.error(w, http.StatusServiceUnavailable, "storage_unavailable", "cloud storage is not configured")
			return
		}
		a.Logger.Error().Err(err).Str("folder", folder).Msg("failed to list stored videos")
		a.error(w, http.StatusBadGateway, "listing_failed", "failed to list stored videos")
		return
	}

	items := make([]videoItem, 0, len(videos))
	for _, v := range videos {
		items = append(items, videoItem{CloudVideo: v, Title: displayTitle(v)})
	}
	a.json(w, http.StatusOK, videosResponse{Folder: folder, Total: len(items), Videos: items})
}

// displayTitle derives a human readable label from the stored filename,
// e.g. "veo31_video_20260828_174502.mp4" becomes "Veo31 Video 20260828 174502".
func displayTitle(v domain.CloudVideo) string {
	name := v.Filename
	if name == "" {
		name = path.Base(v.PublicID)
	}
	name = strings.TrimSuffix(name, path.Ext(name))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return titleCaser.String(name)
}
