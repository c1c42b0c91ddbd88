package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/async"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/chunk"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/config"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/embed"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/lifecycle"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/llm"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/rag"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/search"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/session"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/store"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/telemetry"
)

// app holds every component a command may need, opened from one project
// directory.
type app struct {
	cfg       *config.Config
	embedder  embed.Embedder
	fragments *store.FragmentStore
	lexical   *store.LexicalIndex
	state     *session.State
	manager   *lifecycle.Manager
	retriever *telemetry.Retriever
	pipeline  *rag.Pipeline

	// metrics is flushed into usage on Close; usage is nil when the
	// telemetry database could not be opened.
	metrics *telemetry.Metrics
	usage   *telemetry.Store
}

// newGenerator builds the chat backend. Tests replace it.
var newGenerator = func(cfg config.LLMConfig) llm.Generator {
	return llm.NewOpenAIClient(llm.Config{
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		APIKey:     cfg.APIKey,
		Timeout:    cfg.Timeout,
		MaxRetries: 2,
	})
}

// loadConfig loads the configuration of the --dir project.
func loadConfig() (*config.Config, error) {
	dir, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", projectDir, err)
	}
	return config.LoadFile(dir, configFile)
}

// openApp loads configuration and opens the stores. Close must be called.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	embedder, err := embed.NewEmbedder(ctx, cfg.Embeddings)
	if err != nil {
		return nil, err
	}

	fragments, err := store.OpenFragmentStore(ctx, store.FragmentStoreConfig{
		Dir:        cfg.Paths.VectorStore,
		Collection: cfg.Collection,
		BatchSize:  cfg.Embeddings.BatchSize,
	}, embedder)
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	lexical := store.OpenLexicalIndex(cfg.Paths.LexicalIndex, store.BM25Params{
		K1:      cfg.BM25.K1,
		B:       cfg.BM25.B,
		Epsilon: cfg.BM25.Epsilon,
	})
	state := session.Open(cfg.Paths.StateFile)

	uploads, err := lifecycle.NewUploadStore(cfg.Paths.UploadDir)
	if err != nil {
		_ = fragments.Close()
		_ = embedder.Close()
		return nil, err
	}

	manager := lifecycle.NewManager(lifecycle.ManagerConfig{
		Fragments: fragments,
		Lexical:   lexical,
		State:     state,
		Uploads:   uploads,
		Splitter: chunk.NewSplitterWithOptions(chunk.SplitterOptions{
			ChunkSize:    cfg.Chunking.ChunkSize,
			ChunkOverlap: cfg.Chunking.ChunkOverlap,
		}),
	})

	metrics := telemetry.NewMetrics()
	usage, err := telemetry.Open(ctx, filepath.Join(cfg.Paths.DataDir, telemetry.FileName))
	if err != nil {
		slog.Warn("telemetry_disabled", slog.String("error", err.Error()))
		usage = nil
	}

	retriever := telemetry.Wrap(search.NewRetriever(fragments, lexical, search.Options{
		TopK:        cfg.Retrieval.TopK,
		OverFetch:   cfg.Retrieval.OverFetch,
		RRFConstant: cfg.Retrieval.RRFConstant,
	}), metrics)

	pipeline := rag.NewPipeline(rag.Config{
		Retriever: retriever,
		Documents: fragments,
		Active:    state,
		Generator: newGenerator(cfg.LLM),
		TopK:      cfg.Retrieval.TopK,
	})

	slog.Debug("app_opened",
		slog.String("data_dir", cfg.Paths.DataDir),
		slog.String("embedder", embedder.ModelName()),
		slog.Int("lexical_fragments", lexical.Len()))

	return &app{
		cfg:       cfg,
		embedder:  embedder,
		fragments: fragments,
		lexical:   lexical,
		state:     state,
		manager:   manager,
		retriever: retriever,
		pipeline:  pipeline,
		metrics:   metrics,
		usage:     usage,
	}, nil
}

// newQueue creates the background ingest queue; the caller starts it.
func (a *app) newQueue() *async.IngestQueue {
	return async.NewIngestQueue(async.QueueConfig{Workers: a.cfg.Server.Workers}, func(ctx context.Context, job async.Job) (int, error) {
		res, err := a.manager.IngestFile(ctx, job.Path, job.DocumentID)
		return res.Fragments, err
	})
}

// flushTelemetry moves the in-memory query metrics into the telemetry
// database.
func (a *app) flushTelemetry(ctx context.Context) {
	if a.usage == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.usage.Add(ctx, a.metrics.Drain()); err != nil {
		slog.Warn("telemetry_flush_failed", slog.String("error", err.Error()))
	}
}

// flushTelemetryEvery flushes periodically until ctx is done.
func (a *app) flushTelemetryEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.flushTelemetry(ctx)
		}
	}
}

// Close flushes query telemetry and releases the stores and the embedder.
func (a *app) Close() error {
	var errs []error
	if a.usage != nil {
		a.flushTelemetry(context.Background())
		errs = append(errs, a.usage.Close())
	}
	errs = append(errs, a.fragments.Close(), a.embedder.Close())
	return errors.Join(errs...)
}
