package infra

import (
	"context"
	"net/http"
	"time"
)

// HTTPServer wraps http.Server with start and graceful-shutdown helpers.
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer builds the server around the configured timeouts. The
// generate endpoint holds its connection for the whole poll window, so the
// write timeout comes from config (poll deadline plus slack) while headers
// of inbound requests stay on a short leash.
func NewHTTPServer(cfg *Config, handler http.Handler) *HTTPServer {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		MaxHeaderBytes:    1 << 20,
	}

	return &HTTPServer{server: srv}
}

// Start runs the HTTP server in the current goroutine until Shutdown or a
// listener error.
func (s *HTTPServer) Start() error {
	if s.server == nil {
		return nil
	}
	return s.server.ListenAndServe()
}

// Shutdown stops accepting new connections and waits for in-flight requests
// up to the context deadline.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
