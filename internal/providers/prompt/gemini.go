package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"veogen/internal/domain"
)

const (
	geminiDefaultTimeout = 10 * time.Second
	geminiDefaultModel   = "gemini-1.5-flash"
	geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

// GeminiOptions configures the Gemini-backed enhancer.
type GeminiOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	// OnFallback is invoked whenever a remote failure is absorbed. Useful
	// for logging and tests; never affects the returned prompt.
	OnFallback func(reason string, err error)
}

// GeminiEnhancer asks Gemini for a visually richer rewrite of the prompt.
// Every failure path degrades to the raw prompt: a mediocre but present
// video beats no video. One attempt only; retrying a slow enhancement call
// would eat into the end-to-end budget.
type GeminiEnhancer struct {
	apiKey     string
	model      string
	baseURL    string
	client     *http.Client
	onFallback func(reason string, err error)
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func NewGeminiEnhancer(opts GeminiOptions) (*GeminiEnhancer, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = geminiDefaultModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: geminiDefaultTimeout}
	}
	return &GeminiEnhancer{
		apiKey:     strings.TrimSpace(opts.APIKey),
		model:      model,
		baseURL:    baseURL,
		client:     client,
		onFallback: opts.OnFallback,
	}, nil
}

func (g *GeminiEnhancer) Enhance(ctx context.Context, raw string, aspect domain.AspectRatio) (domain.EnhancedPrompt, error) {
	payload := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: buildInstruction(raw, aspect)}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     0.7,
			TopP:            0.9,
			MaxOutputTokens: 500,
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return g.fallback(raw, "encode_request", err), nil
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(), &buf)
	if err != nil {
		return g.fallback(raw, "build_request", err), nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return g.fallback(raw, "http_request", err), nil
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return g.fallback(raw, "http_status", fmt.Errorf("gemini status %d", resp.StatusCode)), nil
	}
	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return g.fallback(raw, "decode_response", err), nil
	}
	text := trimCodeFence(extractText(out))
	if text == "" {
		return g.fallback(raw, "empty_response", errors.New("no text candidates")), nil
	}
	return domain.EnhancedPrompt{Original: raw, Enhanced: text}, nil
}

func (g *GeminiEnhancer) fallback(raw, reason string, err error) domain.EnhancedPrompt {
	if g.onFallback != nil {
		g.onFallback(reason, err)
	}
	return domain.EnhancedPrompt{Original: raw, Enhanced: raw, UsedFallback: true}
}

func (g *GeminiEnhancer) endpoint() string {
	return fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))
}

func buildInstruction(raw string, aspect domain.AspectRatio) string {
	sb := &strings.Builder{}
	sb.WriteString("You are an expert at writing prompts for an AI video generation model. ")
	sb.WriteString("Rewrite the prompt below into a richer, visually descriptive prompt: concrete subjects, lighting, motion, and camera direction. ")
	fmt.Fprintf(sb, "Compose for a %s frame. ", aspect)
	sb.WriteString("Keep the content family-friendly and avoid anything violent, explicit, or otherwise unsafe. ")
	sb.WriteString("Return ONLY the enhanced prompt, nothing else. Do not add explanations or meta-commentary.")
	fmt.Fprintf(sb, "\n\nOriginal prompt: %s\n\nEnhanced prompt:", raw)
	return sb.String()
}

func extractText(resp geminiResponse) string {
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if strings.TrimSpace(part.Text) != "" {
				return strings.TrimSpace(part.Text)
			}
		}
	}
	return ""
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```text")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

var _ Enhancer = (*GeminiEnhancer)(nil)
