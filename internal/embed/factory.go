package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/config"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderOllama uses the Ollama /api/embed endpoint
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings (offline, deterministic)
	ProviderStatic ProviderType = "static"
)

// NewEmbedder creates the configured embedder wrapped in an LRU cache.
// There is no silent fallback: an unreachable Ollama is an error, and
// offline use must select the static provider explicitly.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	var inner Embedder

	switch ProviderType(strings.ToLower(cfg.Provider)) {
	case ProviderStatic:
		inner = NewStaticEmbedder(cfg.Dimensions)
	case ProviderOllama, "":
		e, err := NewOllamaEmbedder(ctx, OllamaConfig{
			Host:      cfg.OllamaHost,
			Model:     cfg.Model,
			BatchSize: cfg.BatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("ollama unavailable: %w\n\nTo fix:\n  1. Start Ollama: ollama serve\n  2. Pull the model: ollama pull %s\n  3. Or run offline: NOTEBOOKLM_EMBEDDINGS_PROVIDER=static", err, cfg.Model)
		}
		inner = e
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Provider)
	}

	slog.Debug("embedder_ready",
		slog.String("provider", cfg.Provider),
		slog.String("model", inner.ModelName()),
		slog.Int("dimensions", inner.Dimensions()))

	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
