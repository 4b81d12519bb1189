package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/PabloGalante/brandlab/internal/domain"
)

const (
	anthropicVersion  = "2023-06-01"
	defaultAnthropic  = "https://api.anthropic.com/v1"
	defaultMaxRetries = 3
)

type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	// RetryBase is the first backoff interval; it doubles per attempt.
	RetryBase  time.Duration
	HTTPClient *http.Client
}

// AnthropicClient calls the Messages API directly over HTTP.
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	model      string
	maxRetries int
	retryBase  time.Duration
	httpClient *http.Client
}

func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	c := &AnthropicClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      modelOrDefault(cfg.Model, "claude-sonnet-4-5"),
		maxRetries: cfg.MaxRetries,
		retryBase:  cfg.RetryBase,
		httpClient: cfg.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = defaultAnthropic
	}
	if c.maxRetries <= 0 {
		c.maxRetries = defaultMaxRetries
	}
	if c.retryBase <= 0 {
		c.retryBase = time.Second
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	return c
}

func (c *AnthropicClient) Backend() domain.Backend { return domain.BackendAnthropic }

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Generate implements Provider. Anthropic takes the system prompt as a
// top-level field and only user/assistant roles in messages. HTTP 429 and 5xx
// responses are retried with exponential backoff.
func (c *AnthropicClient) Generate(ctx context.Context, req domain.LLMRequest) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("anthropic API key not configured")
	}

	body := anthropicRequest{
		Model:     modelOrDefault(req.Model, c.model),
		MaxTokens: req.MaxOutputTokens,
		System:    req.SystemPrompt,
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = 1024
	}
	if req.Temperature > 0 {
		temp := req.Temperature
		body.Temperature = &temp
	}
	for _, t := range normalizeTurns(req.Turns) {
		body.Messages = append(body.Messages, anthropicMessage{Role: string(t.Role), Content: t.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryBase
	b.Multiplier = 2

	return backoff.Retry(ctx, func() (string, error) {
		return c.send(ctx, payload)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(c.maxRetries+1)))
}

func (c *AnthropicClient) send(ctx context.Context, payload []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("creating request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		return "", fmt.Errorf("calling anthropic: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("anthropic returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", backoff.Permanent(fmt.Errorf("anthropic returned %d: %s", resp.StatusCode, string(msg)))
	}

	var out anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", backoff.Permanent(fmt.Errorf("decoding anthropic response: %w", err))
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", backoff.Permanent(fmt.Errorf("anthropic returned no text content"))
	}
	return text.String(), nil
}
