package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment
// variables. Loaded once at startup and immutable thereafter; every client
// receives its credentials through constructor options rather than ambient
// lookups.
type Config struct {
	AppEnv string
	Port   string

	GeminiAPIKey  string
	GeminiBaseURL string
	GeminiModel   string
	VeoModel      string

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	StorageFolder       string
	OutputDir           string

	DatabaseURL string

	PollInterval   time.Duration
	PollDeadline   time.Duration
	EnhanceTimeout time.Duration
	MaxPromptChars int

	CORSAllowedOrigins []string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. The Gemini key is required; Cloudinary credentials
// and DATABASE_URL are optional and merely disable their features when absent.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv: getEnv("APP_ENV", "development"),
		Port:   getEnv("PORT", "8000"),

		GeminiAPIKey:  firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY"),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		VeoModel:      getEnv("VEO_MODEL", "veo-3.1-generate-preview"),

		CloudinaryCloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:    os.Getenv("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret: os.Getenv("CLOUDINARY_API_SECRET"),
		StorageFolder:       getEnv("STORAGE_FOLDER", "veo31-videos"),
		OutputDir:           getEnv("OUTPUT_DIR", "output"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		PollInterval:   time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 5)),
		PollDeadline:   time.Second * time.Duration(getEnvInt("POLL_DEADLINE_SECONDS", 600)),
		EnhanceTimeout: time.Second * time.Duration(getEnvInt("ENHANCE_TIMEOUT_SECONDS", 10)),
		MaxPromptChars: getEnvInt("MAX_PROMPT_CHARS", 2000),

		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),

		HTTPReadTimeout: time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPIdleTimeout: time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY or GOOGLE_API_KEY is required")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL_SECONDS must be positive")
	}
	if cfg.PollDeadline <= 0 {
		return nil, fmt.Errorf("POLL_DEADLINE_SECONDS must be positive")
	}

	// The generate endpoint holds its connection for the entire poll window,
	// so the write timeout must outlive the poll deadline.
	writeTimeout := getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 0)
	if writeTimeout > 0 {
		cfg.HTTPWriteTimeout = time.Second * time.Duration(writeTimeout)
	} else {
		cfg.HTTPWriteTimeout = cfg.PollDeadline + time.Minute
	}

	return cfg, nil
}

// CloudinaryConfigured reports whether the full credential triple is present.
func (c *Config) CloudinaryConfigured() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// HistoryEnabled reports whether the generation history store is configured.
func (c *Config) HistoryEnabled() bool {
	return c.DatabaseURL != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
