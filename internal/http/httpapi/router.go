package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"veogen/internal/http/handlers"
	"veogen/internal/middleware"
)

func NewRouter(app *handlers.App, logger zerolog.Logger, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(logger),
		middleware.CORS(allowedOrigins),
	)

	r.Get("/", app.Index)
	r.Get("/health", app.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/generate-video", app.GenerateVideo)
		r.Get("/videos", app.ListVideos)
		r.Get("/history", app.ListHistory)
	})

	return r
}
