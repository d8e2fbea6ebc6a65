package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmuoria/talent-admin/internal/config"
)

type countingClient struct {
	calls  int
	closed bool
}

func (c *countingClient) Complete(ctx context.Context, prompt string) (string, error) {
	c.calls++
	return "ok:" + prompt, nil
}

func (c *countingClient) Close() error {
	c.closed = true
	return nil
}

func TestNew_NoProvider(t *testing.T) {
	c, err := New(context.Background(), config.AIConfig{Provider: config.ProviderNone})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = New(context.Background(), config.AIConfig{})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(context.Background(), config.AIConfig{Provider: "openai"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")

	_, err = New(context.Background(), config.AIConfig{Provider: config.ProviderAnthropic})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key is required")

	_, err = New(context.Background(), config.AIConfig{Provider: config.ProviderVertex})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vertex project is required")
}

func TestNew_AnthropicIsRateLimited(t *testing.T) {
	c, err := New(context.Background(), config.AIConfig{Provider: config.ProviderAnthropic, AnthropicKey: "k", RequestsPerMinute: 60})
	require.NoError(t, err)
	_, ok := c.(*limitedClient)
	assert.True(t, ok)
	assert.NoError(t, c.Close())
}

func TestWithRateLimit(t *testing.T) {
	inner := &countingClient{}
	assert.Same(t, inner, WithRateLimit(inner, 0))

	limited := WithRateLimit(inner, 600)
	out, err := limited.Complete(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "ok:a", out)

	// the burst is spent; a cancelled context fails the wait
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = limited.Complete(ctx, "b")
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)

	require.NoError(t, limited.Close())
	assert.True(t, inner.closed)
}

func TestWithRateLimit_Spacing(t *testing.T) {
	inner := &countingClient{}
	limited := WithRateLimit(inner, 1200) // one call per 50ms

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := limited.Complete(context.Background(), "x")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, 3, inner.calls)
}

func TestAnthropicClient_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-haiku-4-5-20251001",
			"content": [{"type": "text", "text": "{\"Full Name\": "}, {"type": "text", "text": "\"Name\"}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`)
	}))
	defer srv.Close()

	c, err := NewAnthropicClient("test-key", Options{Temperature: 0.1, MaxOutputTokens: 256},
		option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "map these columns")
	require.NoError(t, err)
	assert.Equal(t, `{"Full Name": "Name"}`, out)

	assert.Equal(t, DefaultAnthropicModel, got["model"])
	assert.EqualValues(t, 256, got["max_tokens"])
	assert.InDelta(t, 0.1, got["temperature"], 0.0001)
}

func TestAnthropicClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"type":"error","error":{"type":"api_error","message":"boom"}}`)
	}))
	defer srv.Close()

	c, err := NewAnthropicClient("k", Options{}, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic create message")
}
