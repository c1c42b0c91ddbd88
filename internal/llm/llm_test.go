package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lphhien112-gif/NOTEBOOKLM/internal/errors"
)

type capturedRequest struct {
	Path     string
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Temperature float64 `json:"temperature"`
}

// fakeChatServer answers chat completions with reply and records requests.
func fakeChatServer(t *testing.T, status int, reply string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var captured []capturedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req capturedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.Path = r.URL.Path
		mu.Lock()
		captured = append(captured, req)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"model not found","type":"not_found"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": reply},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func TestOpenAIClient_Generate(t *testing.T) {
	// Given: a chat server
	srv, captured := fakeChatServer(t, http.StatusOK, "Xin chào!")
	c := NewOpenAIClient(Config{BaseURL: srv.URL, Model: "gemma3:1b"})

	// When: generating with a system prompt
	out, err := c.Generate(context.Background(), Request{System: "be brief", Prompt: "hello", Temperature: 0.5})

	// Then: the reply is returned and the request is well formed
	require.NoError(t, err)
	assert.Equal(t, "Xin chào!", out)
	require.Len(t, *captured, 1)
	req := (*captured)[0]
	assert.Equal(t, "/v1/chat/completions", req.Path)
	assert.Equal(t, "gemma3:1b", req.Model)
	assert.InDelta(t, 0.5, req.Temperature, 1e-9)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "be brief", req.Messages[0].Content)
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, "hello", req.Messages[1].Content)
}

func TestOpenAIClient_NoSystemMessage(t *testing.T) {
	srv, captured := fakeChatServer(t, http.StatusOK, "ok")
	c := NewOpenAIClient(Config{BaseURL: srv.URL + "/v1/"})

	_, err := c.Generate(context.Background(), Request{Prompt: "context prompt", Temperature: 0.1})

	require.NoError(t, err)
	require.Len(t, *captured, 1)
	assert.Equal(t, "/v1/chat/completions", (*captured)[0].Path)
	require.Len(t, (*captured)[0].Messages, 1)
	assert.Equal(t, "user", (*captured)[0].Messages[0].Role)
}

func TestOpenAIClient_ServerError(t *testing.T) {
	srv, _ := fakeChatServer(t, http.StatusNotFound, "")
	c := NewOpenAIClient(Config{BaseURL: srv.URL, Model: "missing"})

	_, err := c.Generate(context.Background(), Request{Prompt: "hi"})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeGenerationUnavailable, apperrors.GetCode(err))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestOpenAIClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c := NewOpenAIClient(Config{BaseURL: url, Timeout: 5 * time.Second})

	_, err := c.Generate(context.Background(), Request{Prompt: "hi"})

	assert.Equal(t, apperrors.ErrCodeGenerationUnavailable, apperrors.GetCode(err))
}

func TestNewOpenAIClient_Defaults(t *testing.T) {
	c := NewOpenAIClient(Config{})

	assert.Equal(t, DefaultModel, c.Model())
	assert.Equal(t, DefaultTimeout, c.timeout)
}
