package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOllama serves /api/tags and /api/embed with 3-dimensional vectors.
func fakeOllama(t *testing.T, failFirst int) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var embedCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"nomic-embed-text:latest"}]}`))
	})
	mux.HandleFunc("POST /api/embed", func(w http.ResponseWriter, r *http.Request) {
		n := embedCalls.Add(1)
		if int(n) <= failFirst {
			http.Error(w, "loading model", http.StatusServiceUnavailable)
			return
		}
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := ollamaEmbedResponse{Model: req.Model}
		for i := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float64{float64(i + 1), 0, 0})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &embedCalls
}

func TestOllamaEmbedder_HealthCheckDetectsDimensions(t *testing.T) {
	// Given: an Ollama server with the model installed
	srv, _ := fakeOllama(t, 0)

	// When: constructing the embedder
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "nomic-embed-text",
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	// Then: dimensions come from a probe embedding
	assert.Equal(t, 3, e.Dimensions())
	assert.Equal(t, "nomic-embed-text", e.ModelName())
}

func TestOllamaEmbedder_MissingModel(t *testing.T) {
	srv, _ := fakeOllama(t, 0)

	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "other-model",
	})

	assert.Error(t, err)
}

func TestOllamaEmbedder_BatchesAndNormalizes(t *testing.T) {
	// Given: a batch size of 2
	srv, calls := fakeOllama(t, 0)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		Model:           "nomic-embed-text",
		BatchSize:       2,
		SkipHealthCheck: true,
	})
	require.NoError(t, err)

	// When: embedding five texts
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)

	// Then: three requests were made and every vector is unit length
	assert.Equal(t, int64(3), calls.Load())
	require.Len(t, vecs, 5)
	for _, v := range vecs {
		assert.InDelta(t, 1.0, norm(v), 1e-6)
	}
}

func TestOllamaEmbedder_RetriesServerErrors(t *testing.T) {
	// Given: a server that fails the first request with 503
	srv, calls := fakeOllama(t, 1)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		Model:           "nomic-embed-text",
		SkipHealthCheck: true,
	})
	require.NoError(t, err)

	// When: embedding one text
	vec, err := e.Embed(context.Background(), "hello")

	// Then: the retry succeeds
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.Equal(t, int64(2), calls.Load())
}

func TestOllamaEmbedder_ClosedRejectsCalls(t *testing.T) {
	srv, _ := fakeOllama(t, 0)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		Model:           "nomic-embed-text",
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = e.Embed(context.Background(), "x")
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}
