// Package anthropic provides an LLM provider for the Anthropic Messages API.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/entrhq/repoman/pkg/llm"
)

const (
	// DefaultBaseURL is the default Anthropic API base URL
	DefaultBaseURL = "https://api.anthropic.com/v1"

	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-3-5-sonnet-latest"

	// APIVersion is sent as the anthropic-version header.
	APIVersion = "2023-06-01"

	defaultMaxTokens = 2000
)

// Provider implements llm.Provider for Anthropic models.
type Provider struct {
	httpClient  *http.Client
	temperature *float64
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithModel sets the model to use for completions.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		if baseURL != "" {
			p.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ProviderOption {
	return func(p *Provider) { p.temperature = &t }
}

// WithMaxTokens caps the completion length. The API requires a value, so
// non-positive values keep the default.
func WithMaxTokens(n int) ProviderOption {
	return func(p *Provider) {
		if n > 0 {
			p.maxTokens = n
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) ProviderOption {
	return func(p *Provider) {
		if d > 0 {
			p.httpClient = &http.Client{Timeout: d}
		}
	}
}

// NewProvider creates an Anthropic provider. An empty apiKey falls back to
// ANTHROPIC_API_KEY.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (provide via parameter or ANTHROPIC_API_KEY environment variable)")
	}

	p := &Provider{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		maxTokens:  defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns "anthropic".
func (p *Provider) Name() string { return "anthropic" }

// GetModel returns the model name being used.
func (p *Provider) GetModel() string { return p.model }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Temperature *float64  `json:"temperature,omitempty"`
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

// buildRequest moves system messages into the top-level system field, which
// is where the Messages API expects them.
func (p *Provider) buildRequest(messages []llm.Message) request {
	req := request{
		Temperature: p.temperature,
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		Stream:      true,
	}
	var system []string
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, m.Content)
		case llm.RoleAssistant:
			req.Messages = append(req.Messages, message{Role: "assistant", Content: m.Content})
		default:
			req.Messages = append(req.Messages, message{Role: "user", Content: m.Content})
		}
	}
	req.System = strings.Join(system, "\n\n")
	return req
}

// StreamCompletion streams a Messages API response.
func (p *Provider) StreamCompletion(ctx context.Context, messages []llm.Message) (<-chan *llm.StreamChunk, error) {
	body, err := json.Marshal(p.buildRequest(messages))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", APIVersion)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		return nil, &llm.APIError{Provider: p.Name(), StatusCode: resp.StatusCode, Body: string(b)}
	}

	chunks := make(chan *llm.StreamChunk, 10)
	go p.processStream(ctx, resp, chunks)
	return chunks, nil
}

// Complete returns the full response text.
func (p *Provider) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	stream, err := p.StreamCompletion(ctx, messages)
	if err != nil {
		return "", err
	}
	text, err := llm.Collect(stream)
	if err == nil && ctx.Err() != nil {
		return "", ctx.Err()
	}
	return text, err
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *Provider) processStream(ctx context.Context, resp *http.Response, chunks chan<- *llm.StreamChunk) {
	defer close(chunks)
	defer resp.Body.Close()

	emit := func(c *llm.StreamChunk) bool {
		select {
		case chunks <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64<<10), 4<<20)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}

		switch ev.Type {
		case "message_start":
			if !emit(&llm.StreamChunk{Role: "assistant"}) {
				return
			}
		case "content_block_delta":
			if ev.Delta.Type != "text_delta" || ev.Delta.Text == "" {
				continue
			}
			if !emit(&llm.StreamChunk{Content: ev.Delta.Text}) {
				return
			}
		case "message_stop":
			emit(&llm.StreamChunk{Finished: true})
			return
		case "error":
			emit(&llm.StreamChunk{Error: fmt.Errorf("anthropic stream error: %s: %s", ev.Error.Type, ev.Error.Message)})
			return
		}
	}

	if err := scanner.Err(); err != nil {
		emit(&llm.StreamChunk{Error: fmt.Errorf("stream read error: %w", err)})
	}
}
