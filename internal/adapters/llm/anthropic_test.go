package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/brandlab/internal/domain"
)

func TestAnthropicEncodesSystemAndTurns(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"What matters most?"}]}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient(AnthropicConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "claude-test"})
	text, err := c.Generate(context.Background(), domain.LLMRequest{
		SystemPrompt:    "You interview operators.",
		Turns:           []domain.Turn{{Role: domain.RoleAssistant, Content: "Q1"}, {Role: domain.RoleUser, Content: "A1"}},
		Temperature:     0.7,
		MaxOutputTokens: 300,
	})
	require.NoError(t, err)
	assert.Equal(t, "What matters most?", text)

	assert.Equal(t, "claude-test", got.Model)
	assert.Equal(t, "You interview operators.", got.System)
	assert.Equal(t, 300, got.MaxTokens)
	require.NotNil(t, got.Temperature)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[1].Role)
}

func TestAnthropicRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"third time"}]}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: srv.URL, RetryBase: time.Millisecond})
	text, err := c.Generate(context.Background(), domain.LLMRequest{Turns: []domain.Turn{{Role: domain.RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "third time", text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAnthropicDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: srv.URL, RetryBase: time.Millisecond})
	_, err := c.Generate(context.Background(), domain.LLMRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestAnthropicMissingKey(t *testing.T) {
	c := NewAnthropicClient(AnthropicConfig{})
	_, err := c.Generate(context.Background(), domain.LLMRequest{})
	require.Error(t, err)
}
