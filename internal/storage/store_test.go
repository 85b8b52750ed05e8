package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"veogen/internal/domain"
)

func newLocalOnlyStore(t *testing.T) *Store {
	t.Helper()
	files, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	store, err := NewStore(StoreOptions{Files: files, Folder: "veo31-videos"})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func newStoreWithCDN(t *testing.T, handler http.Handler) (*Store, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cdn, err := NewCloudinary(CloudinaryOptions{CloudName: "demo", APIKey: "key", APISecret: "secret", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewCloudinary: %v", err)
	}
	files, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	store, err := NewStore(StoreOptions{
		CDN:          cdn,
		Files:        files,
		Folder:       "veo31-videos",
		RetryBackoff: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, server
}

func TestPersistUsesCDNWhenUploadSucceeds(t *testing.T) {
	store, _ := newStoreWithCDN(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"secure_url": "https://res.cloudinary.com/demo/clip.mp4",
			"bytes":      9,
		})
	}))

	artifact, err := store.Persist(context.Background(), []byte("mp4-bytes"), "veo31_video_20260101_120000.mp4")
	if err != nil {
		t.Fatalf("Persist returned error: %v", err)
	}
	if artifact.Backend != domain.BackendCDN {
		t.Fatalf("backend = %s, want cdn", artifact.Backend)
	}
	if artifact.URI != "https://res.cloudinary.com/demo/clip.mp4" {
		t.Fatalf("uri = %q", artifact.URI)
	}
	if artifact.Bytes != 9 {
		t.Fatalf("bytes = %d", artifact.Bytes)
	}
}

func TestPersistRetriesOnceThenFallsBackToLocal(t *testing.T) {
	var uploads int32
	store, _ := newStoreWithCDN(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&uploads, 1)
		http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
	}))

	artifact, err := store.Persist(context.Background(), []byte("mp4-bytes"), "veo31_video_20260101_120000.mp4")
	if err != nil {
		t.Fatalf("Persist returned error: %v", err)
	}
	if got := atomic.LoadInt32(&uploads); got != 2 {
		t.Fatalf("upload attempts = %d, want 2 (one retry)", got)
	}
	if artifact.Backend != domain.BackendLocal {
		t.Fatalf("backend = %s, want local", artifact.Backend)
	}
	if !strings.HasSuffix(artifact.URI, "veo31_video_20260101_120000.mp4") {
		t.Fatalf("uri = %q, want local path", artifact.URI)
	}
	if artifact.Bytes != int64(len("mp4-bytes")) {
		t.Fatalf("bytes = %d", artifact.Bytes)
	}
}

func TestPersistNeverAttemptsCDNWhenUnconfigured(t *testing.T) {
	store := newLocalOnlyStore(t)

	artifact, err := store.Persist(context.Background(), []byte("mp4"), "clip.mp4")
	if err != nil {
		t.Fatalf("Persist returned error: %v", err)
	}
	if artifact.Backend != domain.BackendLocal {
		t.Fatalf("backend = %s, want local", artifact.Backend)
	}
	if store.CDNConfigured() {
		t.Fatal("CDNConfigured = true, want false")
	}
}

func TestPersistFailsWhenLocalFallbackFails(t *testing.T) {
	store := newLocalOnlyStore(t)

	if _, err := store.Persist(context.Background(), []byte("mp4"), "../escape.mp4"); err == nil {
		t.Fatal("expected error when local write fails")
	}
}

func TestListWithoutCDNReturnsTypedError(t *testing.T) {
	store := newLocalOnlyStore(t)

	if _, err := store.List(context.Background(), "", 10); !errors.Is(err, ErrCDNNotConfigured) {
		t.Fatalf("err = %v, want ErrCDNNotConfigured", err)
	}
}

func TestListIsIdempotent(t *testing.T) {
	store, _ := newStoreWithCDN(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"resources": []any{
				map[string]any{"public_id": "veo31-videos/veo31_video_20260101_120000", "secure_url": "https://cdn/a.mp4", "format": "mp4", "bytes": 10},
				map[string]any{"public_id": "veo31-videos/veo31_video_20260101_130000", "secure_url": "https://cdn/b.mp4", "format": "mp4", "bytes": 20},
				map[string]any{"public_id": "veo31-videos/veo31_video_20260101_140000", "secure_url": "https://cdn/c.mp4", "format": "mp4", "bytes": 30},
			},
		})
	}))

	first, err := store.List(context.Background(), "veo31-videos", 10)
	if err != nil {
		t.Fatalf("first List returned error: %v", err)
	}
	second, err := store.List(context.Background(), "veo31-videos", 10)
	if err != nil {
		t.Fatalf("second List returned error: %v", err)
	}

	if len(first) != 3 || len(second) != len(first) {
		t.Fatalf("lengths = %d and %d, want 3 and 3", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("entry %d differs between calls: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestListDefaultsToConfiguredFolder(t *testing.T) {
	var gotExpression string
	store, _ := newStoreWithCDN(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotExpression = req.Expression
		_ = json.NewEncoder(w).Encode(map[string]any{"resources": []any{}})
	}))

	if _, err := store.List(context.Background(), "", 5); err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if gotExpression != "resource_type:video AND folder:veo31-videos" {
		t.Fatalf("expression = %q, want default folder", gotExpression)
	}
}
