package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"veogen/internal/adapter/repo"
	"veogen/internal/http/handlers"
	"veogen/internal/http/httpapi"
	"veogen/internal/infra"
	"veogen/internal/pipeline"
	"veogen/internal/providers/prompt"
	"veogen/internal/providers/video"
	"veogen/internal/storage"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	enhancer, err := prompt.NewGeminiEnhancer(prompt.GeminiOptions{
		APIKey:     cfg.GeminiAPIKey,
		Model:      cfg.GeminiModel,
		BaseURL:    cfg.GeminiBaseURL,
		HTTPClient: &http.Client{Timeout: cfg.EnhanceTimeout},
		OnFallback: func(reason string, err error) {
			logger.Warn().Err(err).Str("reason", reason).Msg("prompt enhancement fell back to raw prompt")
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build prompt enhancer")
	}

	jobs, err := video.NewClient(video.Options{
		APIKey:       cfg.GeminiAPIKey,
		BaseURL:      cfg.GeminiBaseURL,
		Model:        cfg.VeoModel,
		PollInterval: cfg.PollInterval,
		PollDeadline: cfg.PollDeadline,
		Logger:       &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build video client")
	}

	files, err := storage.NewFileStore(cfg.OutputDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare local output directory")
	}

	var cdn *storage.Cloudinary
	if cfg.CloudinaryConfigured() {
		cdn, err = storage.NewCloudinary(storage.CloudinaryOptions{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build cloudinary client")
		}
	} else {
		logger.Warn().Str("output_dir", cfg.OutputDir).Msg("cloudinary not configured, storing videos on local disk only")
	}

	store, err := storage.NewStore(storage.StoreOptions{
		CDN:    cdn,
		Files:  files,
		Folder: cfg.StorageFolder,
		Logger: &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build artifact store")
	}

	orchestrator, err := pipeline.NewOrchestrator(pipeline.Options{
		Enhancer:       enhancer,
		Jobs:           jobs,
		Store:          store,
		MaxPromptChars: cfg.MaxPromptChars,
		Logger:         &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build orchestrator")
	}

	ctx := context.Background()

	app := &handlers.App{
		Generator:     orchestrator,
		Videos:        store,
		DefaultFolder: cfg.StorageFolder,
		Logger:        logger,
	}

	if cfg.HistoryEnabled() {
		dbpool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer dbpool.Close()

		history := repo.NewGenerationHistory(dbpool)
		if err := history.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare generation history schema")
		}
		app.History = history
	}

	router := httpapi.NewRouter(app, logger, cfg.CORSAllowedOrigins)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("port", cfg.Port).Str("env", cfg.AppEnv).Msg("API listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
