package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/entrhq/repoman/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, check func(r *http.Request, req request), events ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if check != nil {
			check(r, req)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			fmt.Fprintf(w, "%s\n\n", ev)
		}
	}))
}

func textDelta(s string) string {
	return fmt.Sprintf("event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":%q}}", s)
}

func TestProvider_Complete(t *testing.T) {
	server := newServer(t, func(r *http.Request, req request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, APIVersion, r.Header.Get("anthropic-version"))
		assert.Equal(t, "claude-test", req.Model)
		assert.Equal(t, "rules one\n\nrules two", req.System)
		assert.Equal(t, 100, req.MaxTokens)
		assert.True(t, req.Stream)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Equal(t, "assistant", req.Messages[1].Role)
	},
		`event: message_start`+"\n"+`data: {"type":"message_start","message":{"role":"assistant"}}`,
		`event: ping`+"\n"+`data: {"type":"ping"}`,
		textDelta("def "),
		textDelta("f(): pass"),
		`event: message_stop`+"\n"+`data: {"type":"message_stop"}`,
	)
	defer server.Close()

	p, err := NewProvider("secret", WithBaseURL(server.URL), WithModel("claude-test"), WithMaxTokens(100))
	require.NoError(t, err)

	got, err := p.Complete(context.Background(), []llm.Message{
		llm.SystemMessage("rules one"),
		llm.UserMessage("write f"),
		llm.SystemMessage("rules two"),
		llm.AssistantMessage("ok"),
	})
	require.NoError(t, err)
	assert.Equal(t, "def f(): pass", got)
}

func TestProvider_StreamError(t *testing.T) {
	server := newServer(t, nil,
		textDelta("partial"),
		`event: error`+"\n"+`data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
	)
	defer server.Close()

	p, err := NewProvider("k", WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), []llm.Message{llm.UserMessage("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded_error")
}

func TestProvider_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	p, err := NewProvider("k", WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), []llm.Message{llm.UserMessage("x")})
	var apiErr *llm.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "anthropic", apiErr.Provider)
}

func TestNewProvider(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewProvider("")
	require.Error(t, err)

	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	p, err := NewProvider("", WithMaxTokens(0))
	require.NoError(t, err)
	assert.Equal(t, "from-env", p.apiKey)
	assert.Equal(t, defaultMaxTokens, p.maxTokens)
	assert.Equal(t, DefaultModel, p.GetModel())
}
