package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"veogen/internal/domain"
)

// ErrCDNNotConfigured is returned by List when no CDN credentials are
// present. Missing credentials are a valid configuration, not a startup
// error: persistence then runs in local-only mode.
var ErrCDNNotConfigured = errors.New("storage: cdn backend not configured")

const defaultRetryBackoff = 2 * time.Second

// StoreOptions configures the artifact store.
type StoreOptions struct {
	CDN          *Cloudinary // nil selects local-only mode
	Files        *FileStore
	Folder       string
	RetryBackoff time.Duration
	Logger       *zerolog.Logger
}

// Store persists generated videos: Cloudinary first when configured, local
// disk as fallback. Persist is invoked at most once per successful job.
type Store struct {
	cdn          *Cloudinary
	files        *FileStore
	folder       string
	retryBackoff time.Duration
	logger       zerolog.Logger
}

func NewStore(opts StoreOptions) (*Store, error) {
	if opts.Files == nil {
		return nil, errors.New("storage: file store is required")
	}
	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Store{
		cdn:          opts.CDN,
		files:        opts.Files,
		folder:       opts.Folder,
		retryBackoff: backoff,
		logger:       logger,
	}, nil
}

// CDNConfigured reports whether the CDN backend is available.
func (s *Store) CDNConfigured() bool {
	return s.cdn != nil
}

// Persist stores the video bytes under filename. The CDN upload gets one
// retry after a short backoff; any further failure falls back to a local
// write. A local failure after that has no remaining substitute and is
// fatal to the pipeline.
func (s *Store) Persist(ctx context.Context, data []byte, filename string) (domain.StoredArtifact, error) {
	if s.cdn != nil {
		publicID := strings.TrimSuffix(filename, ".mp4")
		result, err := s.uploadWithRetry(ctx, data, publicID)
		if err == nil {
			size := result.Bytes
			if size == 0 {
				size = int64(len(data))
			}
			return domain.StoredArtifact{
				URI:      result.SecureURL,
				Backend:  domain.BackendCDN,
				Bytes:    size,
				Filename: filename,
			}, nil
		}
		if ctx.Err() != nil {
			return domain.StoredArtifact{}, ctx.Err()
		}
		s.logger.Warn().Err(err).Str("filename", filename).Msg("storage: cdn upload failed, falling back to local disk")
	}

	path, err := s.files.Write(ctx, filename, data)
	if err != nil {
		return domain.StoredArtifact{}, fmt.Errorf("local fallback write: %w", err)
	}
	return domain.StoredArtifact{
		URI:      path,
		Backend:  domain.BackendLocal,
		Bytes:    int64(len(data)),
		Filename: filename,
	}, nil
}

// List passes through to the CDN's listing capability.
func (s *Store) List(ctx context.Context, folder string, maxResults int) ([]domain.CloudVideo, error) {
	if s.cdn == nil {
		return nil, ErrCDNNotConfigured
	}
	if folder == "" {
		folder = s.folder
	}
	return s.cdn.List(ctx, folder, maxResults)
}

// Folder returns the default CDN folder for uploads and listings.
func (s *Store) Folder() string {
	return s.folder
}

func (s *Store) uploadWithRetry(ctx context.Context, data []byte, publicID string) (*UploadResult, error) {
	result, err := s.cdn.Upload(ctx, data, s.folder, publicID)
	if err == nil {
		return result, nil
	}
	s.logger.Warn().Err(err).Str("public_id", publicID).Msg("storage: cdn upload failed, retrying once")

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.retryBackoff):
	}
	return s.cdn.Upload(ctx, data, s.folder, publicID)
}
