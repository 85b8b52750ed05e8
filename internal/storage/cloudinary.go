package storage

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"veogen/internal/domain"
)

const cloudinaryDefaultBaseURL = "https://api.cloudinary.com"

// CloudinaryOptions configures the CDN client.
type CloudinaryOptions struct {
	CloudName  string
	APIKey     string
	APISecret  string
	BaseURL    string
	HTTPClient *http.Client
}

// Cloudinary uploads videos to the Cloudinary CDN and lists previously
// uploaded ones through its Search API.
type Cloudinary struct {
	cloudName  string
	apiKey     string
	apiSecret  string
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// UploadResult is the subset of the upload response the pipeline consumes.
type UploadResult struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	Bytes     int64  `json:"bytes"`
}

type searchRequest struct {
	Expression string `json:"expression"`
	MaxResults int    `json:"max_results"`
}

type searchResponse struct {
	Resources []struct {
		PublicID  string  `json:"public_id"`
		SecureURL string  `json:"secure_url"`
		Format    string  `json:"format"`
		Width     int     `json:"width"`
		Height    int     `json:"height"`
		Bytes     int64   `json:"bytes"`
		CreatedAt string  `json:"created_at"`
		Duration  float64 `json:"duration"`
	} `json:"resources"`
}

// NewCloudinary constructs a client; the full credential triple is required.
func NewCloudinary(opts CloudinaryOptions) (*Cloudinary, error) {
	if opts.CloudName == "" || opts.APIKey == "" || opts.APISecret == "" {
		return nil, errors.New("cloudinary: cloud name, api key and api secret are required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = cloudinaryDefaultBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &Cloudinary{
		cloudName:  opts.CloudName,
		apiKey:     opts.APIKey,
		apiSecret:  opts.APISecret,
		baseURL:    baseURL,
		httpClient: client,
		now:        time.Now,
	}, nil
}

// Upload sends a signed video upload, organized under folder with the given
// public id. Overwrite is enabled so a colliding public id replaces the
// earlier upload, and the CDN cache is invalidated. The multipart body is
// streamed through a pipe so the video is never duplicated in memory.
func (c *Cloudinary) Upload(ctx context.Context, data []byte, folder, publicID string) (*UploadResult, error) {
	params := map[string]string{
		"folder":     folder,
		"public_id":  publicID,
		"overwrite":  "true",
		"invalidate": "true",
		"timestamp":  strconv.FormatInt(c.now().Unix(), 10),
	}
	params["signature"] = signParams(params, c.apiSecret)
	params["api_key"] = c.apiKey

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		_ = pw.CloseWithError(writeUploadForm(writer, params, publicID, data))
	}()

	endpoint := fmt.Sprintf("%s/v1_1/%s/video/upload", c.baseURL, c.cloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("cloudinary: create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: upload: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("cloudinary: upload status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("cloudinary: decode upload response: %w", err)
	}
	if result.SecureURL == "" {
		return nil, errors.New("cloudinary: upload response missing secure_url")
	}
	return &result, nil
}

func writeUploadForm(writer *multipart.Writer, params map[string]string, publicID string, data []byte) error {
	for key, value := range params {
		if err := writer.WriteField(key, value); err != nil {
			return fmt.Errorf("cloudinary: write field: %w", err)
		}
	}
	part, err := writer.CreateFormFile("file", publicID+".mp4")
	if err != nil {
		return fmt.Errorf("cloudinary: create file part: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("cloudinary: copy payload: %w", err)
	}
	return writer.Close()
}

// List returns the videos stored under folder, newest ordering as reported
// by the Search API. Two identical calls without intervening writes return
// the same sequence.
func (c *Cloudinary) List(ctx context.Context, folder string, maxResults int) ([]domain.CloudVideo, error) {
	if maxResults <= 0 {
		maxResults = 500
	}
	payload := searchRequest{
		Expression: fmt.Sprintf("resource_type:video AND folder:%s", folder),
		MaxResults: maxResults,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: marshal search: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1_1/%s/resources/search", c.baseURL, c.cloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cloudinary: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.apiKey, c.apiSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: search: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("cloudinary: search status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("cloudinary: decode search response: %w", err)
	}

	videos := make([]domain.CloudVideo, 0, len(result.Resources))
	for _, res := range result.Resources {
		filename := res.PublicID
		if idx := strings.LastIndex(filename, "/"); idx >= 0 {
			filename = filename[idx+1:]
		}
		videos = append(videos, domain.CloudVideo{
			PublicID:  res.PublicID,
			SecureURL: res.SecureURL,
			Format:    res.Format,
			Width:     res.Width,
			Height:    res.Height,
			Bytes:     res.Bytes,
			CreatedAt: res.CreatedAt,
			Duration:  res.Duration,
			Filename:  filename,
		})
	}
	return videos, nil
}

// signParams produces Cloudinary's request signature: the SHA-1 hex digest
// of the alphabetically sorted parameter string concatenated with the API
// secret.
func signParams(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+params[key])
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}
