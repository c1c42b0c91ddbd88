package preflight

import (
	"context"
	"fmt"
	"strings"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/config"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/provision"
)

// BackendProbe reports whether an Ollama-compatible host runs and which
// of the given models it lacks.
type BackendProbe interface {
	Check(ctx context.Context, host string, models ...string) (*provision.Status, error)
}

type ollamaProbe struct{}

func (ollamaProbe) Check(ctx context.Context, host string, models ...string) (*provision.Status, error) {
	return provision.NewOllama(host).Check(ctx, models...)
}

// CheckEmbeddingBackend checks the embedding provider. The static
// provider needs no backend. Ingestion cannot work without Ollama, so
// the check is required when Ollama is configured.
func (c *Checker) CheckEmbeddingBackend(ctx context.Context, cfg config.EmbeddingsConfig) CheckResult {
	result := CheckResult{Name: "embedding_backend"}

	if strings.EqualFold(cfg.Provider, "static") {
		result.Status = StatusPass
		result.Message = fmt.Sprintf("static embeddings (%d dimensions)", cfg.Dimensions)
		return result
	}

	result.Required = true
	c.checkBackend(ctx, &result, cfg.OllamaHost, cfg.Model)
	return result
}

// CheckLLMBackend checks the generation backend. Retrieval works without
// it, so failures only warn.
func (c *Checker) CheckLLMBackend(ctx context.Context, cfg config.LLMConfig) CheckResult {
	result := CheckResult{Name: "llm_backend"}
	host := strings.TrimSuffix(strings.TrimRight(cfg.BaseURL, "/"), "/v1")
	c.checkBackend(ctx, &result, host, cfg.Model)
	if result.Status == StatusFail {
		result.Status = StatusWarn
	}
	return result
}

func (c *Checker) checkBackend(ctx context.Context, result *CheckResult, host, model string) {
	status, err := c.probe.Check(ctx, host, model)
	switch {
	case err != nil:
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot query %s: %v", host, err)
	case !status.Running:
		result.Status = StatusFail
		result.Message = fmt.Sprintf("not reachable at %s", host)
		result.Details = provision.InstallInstructions()
	case len(status.Missing) > 0:
		result.Status = StatusFail
		result.Message = fmt.Sprintf("model %s is not installed", strings.Join(status.Missing, ", "))
		result.Details = "Run 'notebooklm doctor --pull' to download it"
	default:
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%s ready at %s", model, host)
	}
}
