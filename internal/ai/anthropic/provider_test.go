package anthropic_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/kiranshivaraju/threatlens/internal/ai/anthropic"
	"github.com/kiranshivaraju/threatlens/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body struct {
			Model    string `json:"model"`
			System   string `json:"system"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, "claude-test", body.Model)
		assert.Equal(t, "system text", body.System)
		require.Len(t, body.Messages, 1)
		assert.Equal(t, "user text", body.Messages[0].Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"score\":5,"},{"type":"text","text":"\"status\":\"safe\"}"}],"stop_reason":"end_turn"}`))
	}))
	defer srv.Close()

	p := anthropic.NewProvider(config.AnthropicConfig{APIKey: "sk-ant-test", Model: "claude-test", BaseURL: srv.URL})
	out, err := p.Complete(context.Background(), "system text", "user text")

	require.NoError(t, err)
	assert.Equal(t, `{"score":5,"status":"safe"}`, out)
	assert.Equal(t, "anthropic", p.Name())
}

func TestProvider_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	p := anthropic.NewProvider(config.AnthropicConfig{APIKey: "k", Model: "m", BaseURL: srv.URL})
	_, err := p.Complete(context.Background(), "s", "u")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "slow down")
	assert.Contains(t, err.Error(), "rate_limit_error")
}

func TestProvider_NoTextContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"content":[],"stop_reason":"max_tokens"}`))
	}))
	defer srv.Close()

	p := anthropic.NewProvider(config.AnthropicConfig{APIKey: "k", Model: "m", BaseURL: srv.URL})
	_, err := p.Complete(context.Background(), "s", "u")
	require.Error(t, err)
}

func TestProvider_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := anthropic.NewProvider(config.AnthropicConfig{APIKey: "k", Model: "m", BaseURL: srv.URL})
	_, err := p.Complete(ctx, "s", "u")
	require.ErrorIs(t, err, context.Canceled)
}
