// Package api serves the document Q&A HTTP surface under /api/v1.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/async"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/lifecycle"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/rag"
)

// Prefix is the path prefix of every API route.
const Prefix = "/api/v1"

// Defaults for Config fields left zero.
const (
	DefaultAddr        = ":8000"
	DefaultMaxUploadMB = 50
	shutdownTimeout    = 10 * time.Second
	readHeaderTimeout  = 10 * time.Second
)

// Config wires a Server.
type Config struct {
	Addr string

	// MaxUploadMB caps the request body of an upload (default: 50).
	MaxUploadMB int

	// UploadRate is the sustained number of uploads per second accepted
	// across all clients. Zero or negative disables the limit.
	UploadRate  float64
	UploadBurst int

	Manager  *lifecycle.Manager
	Queue    *async.IngestQueue
	Pipeline *rag.Pipeline
}

// Server is the HTTP front of the Manager, the ingest queue and the
// question-answering pipeline.
type Server struct {
	cfg      Config
	manager  *lifecycle.Manager
	queue    *async.IngestQueue
	pipeline *rag.Pipeline
	uploads  *rate.Limiter
	handler  http.Handler
}

// New creates a Server. The ingest queue must be started by the caller.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = DefaultMaxUploadMB
	}

	limit := rate.Inf
	if cfg.UploadRate > 0 {
		limit = rate.Limit(cfg.UploadRate)
	}
	if cfg.UploadBurst <= 0 {
		cfg.UploadBurst = 1
	}

	s := &Server{
		cfg:      cfg,
		manager:  cfg.Manager,
		queue:    cfg.Queue,
		pipeline: cfg.Pipeline,
		uploads:  rate.NewLimiter(limit, cfg.UploadBurst),
	}
	s.handler = withCORS(withRequestLog(s.routes()))
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST "+Prefix+"/chat", s.handleChat)

	mux.Handle("POST "+Prefix+"/documents", s.limitUploads(http.HandlerFunc(s.handleUpload)))
	mux.HandleFunc("GET "+Prefix+"/documents", s.handleListDocuments)
	mux.HandleFunc("GET "+Prefix+"/documents/{id}", s.handleDocumentStatus)
	mux.HandleFunc("DELETE "+Prefix+"/documents/{id}", s.handleDeleteDocument)
	mux.HandleFunc("DELETE "+Prefix+"/clear-all", s.handleClearAll)

	mux.HandleFunc("POST "+Prefix+"/tasks/summarize", s.handleSummarize)
	mux.HandleFunc("POST "+Prefix+"/tasks/generate-questions", s.handleGenerateQuestions)
	mux.HandleFunc("POST "+Prefix+"/tasks/extract-keywords", s.handleExtractKeywords)

	return mux
}

// ListenAndServe serves on cfg.Addr until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api_listening", slog.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("api_shutdown_incomplete", slog.String("error", err.Error()))
		return err
	}
	slog.Info("api_stopped")
	return nil
}
