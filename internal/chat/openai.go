package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/vetcheck/internal/shared"
)

const (
	// DefaultCompletionsModel is the model requested when none is configured.
	DefaultCompletionsModel = "gpt-4o-mini"

	// DefaultConnectTimeout bounds dialing the completions endpoint.
	DefaultConnectTimeout = 10 * time.Second
)

var errNoChoices = errors.New("completion response has no choices")

// CompletionsClient talks to an OpenAI-compatible chat completions endpoint.
type CompletionsClient struct {
	url        string
	apiKey     string
	model      string
	httpClient *http.Client
}

// CompletionsOption configures a CompletionsClient.
type CompletionsOption func(*CompletionsClient)

// WithModel overrides the requested model.
func WithModel(model string) CompletionsOption {
	return func(c *CompletionsClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithConnectTimeout bounds dialing and the TLS handshake.
func WithConnectTimeout(d time.Duration) CompletionsOption {
	return func(c *CompletionsClient) {
		if d > 0 {
			c.httpClient = shared.NewHTTPClient(d, 0)
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) CompletionsOption {
	return func(c *CompletionsClient) { c.httpClient = hc }
}

// NewCompletionsClient creates a client posting to url. apiKey may be empty
// for proxies that do not authenticate.
func NewCompletionsClient(url, apiKey string, opts ...CompletionsOption) *CompletionsClient {
	c := &CompletionsClient{
		url:        url,
		apiKey:     apiKey,
		model:      DefaultCompletionsModel,
		httpClient: shared.NewHTTPClient(DefaultConnectTimeout, 0),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Name implements Conversational.
func (c *CompletionsClient) Name() string { return "completions" }

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model    string              `json:"model"`
	Messages []completionMessage `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message completionMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends prompt as a single user message and returns the first choice.
func (c *CompletionsClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(completionRequest{
		Model:    c.model,
		Messages: []completionMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("completion status %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errNoChoices
	}
	return out.Choices[0].Message.Content, nil
}
