// Package llm calls the Gemini API with a fixed persona and a bounded
// conversation history. Callers see a uniform failure regardless of
// whether the transport, the status code, or the payload was at fault.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/leochui/tifa-api/internal/convo"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Default model pair. The fallback is only tried after the primary fails.
const (
	DefaultPrimaryModel  = "gemini-3-flash-preview"
	DefaultFallbackModel = "gemini-2.5-flash"
)

// Generation settings tuned for short, grounded resume answers.
const (
	genTemperature     = 0.35
	genTopP            = 0.9
	genMaxOutputTokens = 220
)

// ErrUpstream is returned for any provider failure: transport error,
// non-success status, or a response with no usable text.
var ErrUpstream = errors.New("upstream model failure")

// Client talks to the Gemini generateContent endpoint.
type Client struct {
	apiKey   string
	baseURL  string
	primary  string
	fallback string
	client   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Tests point this at a stub.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithModels overrides the primary/fallback model pair.
func WithModels(primary, fallback string) Option {
	return func(c *Client) {
		if primary != "" {
			c.primary = primary
		}
		if fallback != "" {
			c.fallback = fallback
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// NewClient creates a Gemini client. The API key is required.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	c := &Client{
		apiKey:   apiKey,
		baseURL:  defaultBaseURL,
		primary:  DefaultPrimaryModel,
		fallback: DefaultFallbackModel,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type geminiRequest struct {
	Contents          []geminiContent  `json:"contents"`
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Generate sends the prompt, the fixed system instruction, and the
// bounded history to one model and returns its text.
func (c *Client) Generate(ctx context.Context, model, prompt string, history []convo.Message) (string, error) {
	req := geminiRequest{
		Contents:          buildContents(prompt, history),
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}},
		GenerationConfig: &geminiGenConfig{
			Temperature:     genTemperature,
			TopP:            genTopP,
			MaxOutputTokens: genMaxOutputTokens,
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrUpstream, err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrUpstream, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: model %s returned status %d", ErrUpstream, model, resp.StatusCode)
	}

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}

	if len(parsed.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrUpstream)
	}

	var texts []string
	for _, part := range parsed.Candidates[0].Content.Parts {
		if part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	reply := strings.TrimSpace(strings.Join(texts, " "))
	if reply == "" {
		return "", fmt.Errorf("%w: empty reply", ErrUpstream)
	}
	return reply, nil
}

// GenerateWithFallback tries the primary model and, only on failure,
// retries once against the fallback. Callers never learn which model
// answered.
func (c *Client) GenerateWithFallback(ctx context.Context, prompt string, history []convo.Message) (string, error) {
	reply, err := c.Generate(ctx, c.primary, prompt, history)
	if err == nil {
		return reply, nil
	}

	if c.fallback == "" || c.fallback == c.primary {
		return "", err
	}

	log.Printf("[llm] primary model %s failed, trying fallback %s: %v", c.primary, c.fallback, err)
	return c.Generate(ctx, c.fallback, prompt, history)
}

// buildContents maps the stored history onto the Gemini wire format.
// Assistant turns become role "model".
func buildContents(prompt string, history []convo.Message) []geminiContent {
	if len(history) > convo.MaxHistoryMessages {
		history = history[len(history)-convo.MaxHistoryMessages:]
	}

	contents := make([]geminiContent, 0, len(history)+1)
	for _, m := range history {
		role := "user"
		if m.Role == convo.RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Text}},
		})
	}
	return append(contents, geminiContent{
		Role:  "user",
		Parts: []geminiPart{{Text: prompt}},
	})
}
