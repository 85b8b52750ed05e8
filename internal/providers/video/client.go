package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"veogen/internal/domain"
)

const (
	defaultBaseURL         = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel           = "veo-3.1-generate-preview"
	defaultPollInterval    = 5 * time.Second
	defaultPollDeadline    = 10 * time.Minute
	defaultMaxPollFailures = 3
)

// Options controls how the Veo client is configured.
type Options struct {
	APIKey          string
	BaseURL         string
	Model           string
	PollInterval    time.Duration
	PollDeadline    time.Duration
	MaxPollFailures int
	HTTPClient      *http.Client
	Logger          *zerolog.Logger
}

// Client drives a remote long-running video generation operation: one call
// to create the job, repeated status reads until a terminal state, and a
// download of the transient result file. Every status read is a fresh round
// trip; no remote state is held in process.
type Client struct {
	apiKey          string
	baseURL         string
	model           string
	pollInterval    time.Duration
	pollDeadline    time.Duration
	maxPollFailures int
	httpClient      *http.Client
	logger          zerolog.Logger
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

type predictInstance struct {
	Prompt string `json:"prompt"`
}

type predictParameters struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type operationResponse struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error,omitempty"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response,omitempty"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Veo client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with a bounded per-call timeout is
// created so no single request can hang the poll loop.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("veo api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	deadline := opts.PollDeadline
	if deadline <= 0 {
		deadline = defaultPollDeadline
	}
	maxFailures := opts.MaxPollFailures
	if maxFailures <= 0 {
		maxFailures = defaultMaxPollFailures
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		apiKey:          strings.TrimSpace(opts.APIKey),
		baseURL:         baseURL,
		model:           model,
		pollInterval:    interval,
		pollDeadline:    deadline,
		maxPollFailures: maxFailures,
		httpClient:      client,
		logger:          logger,
	}, nil
}

// Model returns the configured Veo model identifier.
func (c *Client) Model() string {
	return c.model
}

// Submit creates the remote generation job. Submission errors are not
// retried: resubmitting risks a duplicate billable job, which is worse than
// surfacing the failure.
func (c *Client) Submit(ctx context.Context, prompt string, aspect domain.AspectRatio) (domain.Job, error) {
	payload := predictRequest{
		Instances:  []predictInstance{{Prompt: prompt}},
		Parameters: predictParameters{AspectRatio: string(aspect)},
	}
	endpoint := fmt.Sprintf("%s/models/%s:predictLongRunning", c.baseURL, url.PathEscape(c.model))

	var op operationResponse
	if err := c.invoke(ctx, http.MethodPost, endpoint, payload, &op); err != nil {
		return domain.Job{}, fmt.Errorf("create job: %w", err)
	}
	if strings.TrimSpace(op.Name) == "" {
		return domain.Job{}, fmt.Errorf("create job: no operation name in response")
	}

	c.logger.Info().
		Str("job_id", op.Name).
		Str("model", c.model).
		Str("aspect_ratio", string(aspect)).
		Msg("veo: job submitted")

	return domain.Job{ID: op.Name, State: domain.JobSubmitted}, nil
}

// AwaitCompletion polls the job at a constant interval until it reaches a
// terminal state or the wall-clock deadline expires. Jobs run minutes, not
// seconds, so no backoff is applied. Transient poll errors are tolerated up
// to a bounded consecutive count before the job is escalated to FAILED.
// Context cancellation stops local polling and returns the context error;
// neither cancellation nor timeout attempts to stop the remote job.
func (c *Client) AwaitCompletion(ctx context.Context, job domain.Job) (domain.Job, error) {
	start := time.Now()
	failures := 0
	for {
		polled, err := c.poll(ctx, job)
		if err != nil {
			if ctx.Err() != nil {
				return job, ctx.Err()
			}
			failures++
			c.logger.Warn().
				Err(err).
				Str("job_id", job.ID).
				Int("consecutive_failures", failures).
				Msg("veo: status check failed")
			if failures >= c.maxPollFailures {
				job.State = domain.JobFailed
				job.Error = fmt.Sprintf("status checks failed %d times: %v", failures, err)
				return job, nil
			}
		} else {
			failures = 0
			job = polled
			if job.State.Terminal() {
				c.logger.Info().
					Str("job_id", job.ID).
					Str("state", string(job.State)).
					Dur("elapsed", time.Since(start)).
					Msg("veo: job reached terminal state")
				return job, nil
			}
		}

		if time.Since(start) >= c.pollDeadline {
			job.State = domain.JobTimedOut
			c.logger.Warn().
				Str("job_id", job.ID).
				Dur("deadline", c.pollDeadline).
				Msg("veo: poll deadline exceeded, remote job left running")
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// Download fetches the bytes behind a result reference. The reference is
// transient on the remote side, so callers persist the bytes promptly.
func (c *Client) Download(ctx context.Context, resultRef string) ([]byte, error) {
	target := resultRef
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(target, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download result: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("download status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read result: %w", err)
	}
	return blob, nil
}

func (c *Client) poll(ctx context.Context, job domain.Job) (domain.Job, error) {
	endpoint := c.baseURL + "/" + strings.TrimLeft(job.ID, "/")

	var op operationResponse
	if err := c.invoke(ctx, http.MethodGet, endpoint, nil, &op); err != nil {
		return job, err
	}

	if !op.Done {
		job.State = domain.JobRunning
		c.logger.Debug().Str("job_id", job.ID).Msg("veo: job still running")
		return job, nil
	}
	if op.Error != nil {
		job.State = domain.JobFailed
		job.Error = op.Error.Message
		if job.Error == "" {
			job.Error = fmt.Sprintf("operation error code %d", op.Error.Code)
		}
		return job, nil
	}
	ref := ""
	if op.Response != nil && len(op.Response.GenerateVideoResponse.GeneratedSamples) > 0 {
		ref = op.Response.GenerateVideoResponse.GeneratedSamples[0].Video.URI
	}
	if strings.TrimSpace(ref) == "" {
		job.State = domain.JobFailed
		job.Error = "operation finished without a video"
		return job, nil
	}
	job.State = domain.JobSucceeded
	job.ResultRef = ref
	return job, nil
}

func (c *Client) invoke(ctx context.Context, method, endpoint string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("veo status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("veo status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
