package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/config"
)

func TestNewEmbedder_Static(t *testing.T) {
	cfg := config.NewConfig().Embeddings
	cfg.Provider = "static"
	cfg.Dimensions = 64

	e, err := NewEmbedder(context.Background(), cfg)
	require.NoError(t, err)

	cached, ok := e.(*CachedEmbedder)
	require.True(t, ok)
	assert.IsType(t, &StaticEmbedder{}, cached.Inner())
	assert.Equal(t, 64, e.Dimensions())
}

func TestNewEmbedder_UnknownProvider(t *testing.T) {
	cfg := config.NewConfig().Embeddings
	cfg.Provider = "word2vec"

	_, err := NewEmbedder(context.Background(), cfg)

	assert.ErrorContains(t, err, "unknown embeddings provider")
}

func TestNewEmbedder_OllamaUnreachable(t *testing.T) {
	cfg := config.NewConfig().Embeddings
	cfg.OllamaHost = "http://127.0.0.1:1"

	_, err := NewEmbedder(context.Background(), cfg)

	assert.ErrorContains(t, err, "ollama unavailable")
}
