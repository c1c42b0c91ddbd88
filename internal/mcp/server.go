package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/async"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/config"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/embed"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/lifecycle"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/rag"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/search"
	"github.com/lphhien112-gif/NOTEBOOKLM/pkg/version"
)

// ServerName is the implementation name reported to MCP clients.
const ServerName = "notebooklm"

const maxSearchLimit = 50

// Retriever ranks fragments for the search tool. *search.Retriever and its
// telemetry wrapper satisfy it.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, documentID string) ([]search.Result, error)
	TopK() int
}

// Config wires a Server. Queue and Embedder are optional.
type Config struct {
	Retriever Retriever
	Pipeline  *rag.Pipeline
	Manager   *lifecycle.Manager
	Queue     *async.IngestQueue
	Embedder  embed.Embedder
	Settings  *config.Config
}

// Server is the MCP server for notebooklm. It exposes hybrid search,
// question answering and the whole-document tasks as tools.
type Server struct {
	mcp       *mcp.Server
	retriever Retriever
	pipeline  *rag.Pipeline
	manager   *lifecycle.Manager
	queue     *async.IngestQueue
	embedder  embed.Embedder
	settings  *config.Config
	logger    *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "search",
		Description: "Hybrid search over the uploaded documents. Fuses semantic similarity and BM25 keyword relevance and returns the best fragments with their source file and page.",
	},
	{
		Name:        "ask",
		Description: "Answer a question from the uploaded documents. Uses the active document unless document_id is given and returns the answer with the fragments it was based on.",
	},
	{
		Name:        "summarize_document",
		Description: "Write a detailed summary of a whole document.",
	},
	{
		Name:        "generate_questions",
		Description: "Generate review questions that test understanding of a whole document.",
	},
	{
		Name:        "extract_keywords",
		Description: "List the main keywords and topics of a whole document.",
	},
	{
		Name:        "list_documents",
		Description: "List the stored documents with their fragment counts, ingestion status and which one is active.",
	},
	{
		Name:        "index_status",
		Description: "Report document and fragment counts, store consistency, the embedding and generation backends and any ingestion still running.",
	},
}

// NewServer creates a new MCP server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if cfg.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if cfg.Manager == nil {
		return nil, errors.New("document manager is required")
	}
	if cfg.Settings == nil {
		cfg.Settings = config.NewConfig()
	}

	s := &Server{
		retriever: cfg.Retriever,
		pipeline:  cfg.Pipeline,
		manager:   cfg.Manager,
		queue:     cfg.Queue,
		embedder:  cfg.Embedder,
		settings:  cfg.Settings,
		logger:    slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return ServerName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

// CallTool invokes a tool by name with JSON-style arguments and returns
// its markdown rendering, or the structured output for the listing tools.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "search":
		var in SearchInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		results, err := s.search(ctx, in)
		if err != nil {
			return nil, err
		}
		return FormatSearchResults(in.Query, results), nil
	case "ask":
		var in AskInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		ans, err := s.ask(ctx, in)
		if err != nil {
			return nil, err
		}
		return FormatAnswer(ans), nil
	case "summarize_document", "generate_questions", "extract_keywords":
		var in QuestionsInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		out, err := s.runTask(ctx, name, in)
		if err != nil {
			return nil, err
		}
		return out.Result, nil
	case "list_documents":
		return s.listDocuments(ctx)
	case "index_status":
		return s.indexStatus(ctx)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func decodeArgs(args map[string]any, v any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(data, v); err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "search", Description: tools[0].Description}, s.mcpSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "ask", Description: tools[1].Description}, s.mcpAskHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "summarize_document", Description: tools[2].Description}, s.taskHandler("summarize_document"))
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "generate_questions", Description: tools[3].Description}, s.mcpQuestionsHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "extract_keywords", Description: tools[4].Description}, s.taskHandler("extract_keywords"))
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "list_documents", Description: tools[5].Description}, s.mcpListDocumentsHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "index_status", Description: tools[6].Description}, s.mcpIndexStatusHandler)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(tools)))
}

func (s *Server) search(ctx context.Context, in SearchInput) ([]search.Result, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}

	start := time.Now()
	requestID := generateRequestID()
	limit := clampLimit(in.Limit, s.retriever.TopK(), 1, maxSearchLimit)

	results, err := s.retriever.Retrieve(ctx, in.Query, limit, in.DocumentID)
	if err != nil {
		s.logger.Error("mcp_search_failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info("mcp_search_completed",
		slog.String("request_id", requestID),
		slog.String("document_id", in.DocumentID),
		slog.Int("limit", limit),
		slog.Int("result_count", len(results)),
		slog.Duration("duration", time.Since(start)))
	return results, nil
}

func (s *Server) ask(ctx context.Context, in AskInput) (*rag.Answer, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}
	ans, err := s.pipeline.Ask(ctx, in.Query, in.DocumentID)
	if err != nil {
		return nil, MapError(err)
	}
	return ans, nil
}

func (s *Server) runTask(ctx context.Context, name string, in QuestionsInput) (TaskOutput, error) {
	var (
		result string
		err    error
	)
	switch name {
	case "summarize_document":
		result, err = s.pipeline.Summarize(ctx, in.DocumentID)
	case "generate_questions":
		result, err = s.pipeline.GenerateQuestions(ctx, in.NumQuestions, in.DocumentID)
	case "extract_keywords":
		result, err = s.pipeline.ExtractKeywords(ctx, in.DocumentID)
	default:
		return TaskOutput{}, NewMethodNotFoundError(name)
	}
	if err != nil {
		return TaskOutput{}, MapError(err)
	}
	return TaskOutput{Result: result}, nil
}

func (s *Server) listDocuments(ctx context.Context) (*ListDocumentsOutput, error) {
	docs, err := s.manager.Documents(ctx)
	if err != nil {
		return nil, MapError(err)
	}

	out := &ListDocumentsOutput{Documents: make([]DocumentOutput, 0, len(docs))}
	out.ActiveDocument, _ = s.manager.ActiveDocument()
	for _, d := range docs {
		doc := DocumentOutput{
			DocumentID: d.DocumentID,
			Filename:   d.Filename,
			MIMEType:   MimeTypeForPath(d.Filename),
			Fragments:  d.Fragments,
			Active:     d.Active,
		}
		if s.queue != nil {
			if p, ok := s.queue.Status(d.DocumentID); ok {
				doc.Status = p.Status
			}
		}
		if doc.Status == "" && d.Fragments > 0 {
			doc.Status = string(async.StatusReady)
		}
		out.Documents = append(out.Documents, doc)
	}
	return out, nil
}

// indexStatus reports store statistics and backend state. Consistency
// comes from a full audit of both stores.
func (s *Server) indexStatus(ctx context.Context) (*IndexStatusOutput, error) {
	report, err := s.manager.Audit(ctx)
	if err != nil {
		return nil, MapError(err)
	}

	out := &IndexStatusOutput{
		Stats: IndexStats{
			Documents:  report.Documents,
			Fragments:  report.Fragments,
			Consistent: report.Consistent(),
			CheckedAt:  time.Now().Format(time.RFC3339),
		},
		Embeddings: EmbeddingInfo{
			Provider: s.settings.Embeddings.Provider,
			Model:    s.settings.Embeddings.Model,
			Status:   "unavailable",
		},
		Generation: GenerationInfo{
			Model:   s.settings.LLM.Model,
			BaseURL: s.settings.LLM.BaseURL,
		},
	}
	out.ActiveDocument, _ = s.manager.ActiveDocument()

	if s.embedder != nil {
		out.Embeddings.Model = s.embedder.ModelName()
		out.Embeddings.Dimensions = s.embedder.Dimensions()
		if s.embedder.Available(ctx) {
			out.Embeddings.Status = "ready"
		}
	}

	if s.queue != nil {
		for _, p := range s.queue.Snapshot() {
			if p.Status == string(async.StatusQueued) || p.Status == string(async.StatusProcessing) {
				out.Ingesting = append(out.Ingesting, IngestingInfo{
					DocumentID:     p.DocumentID,
					Filename:       p.Filename,
					Status:         p.Status,
					ElapsedSeconds: p.ElapsedSeconds,
				})
			}
		}
	}
	return out, nil
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	results, err := s.search(ctx, input)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{Results: make([]FragmentOutput, 0, len(results)), Count: len(results)}
	for _, r := range results {
		output.Results = append(output.Results, ToFragmentOutput(r))
	}
	return nil, output, nil
}

func (s *Server) mcpAskHandler(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (
	*mcp.CallToolResult,
	AskOutput,
	error,
) {
	ans, err := s.ask(ctx, input)
	if err != nil {
		return nil, AskOutput{}, err
	}
	return nil, AskOutput{
		Answer:     ans.Answer,
		DocumentID: ans.DocumentID,
		Sources:    sourceOutputs(ans.Sources),
	}, nil
}

func (s *Server) taskHandler(name string) mcp.ToolHandlerFor[DocumentInput, TaskOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input DocumentInput) (*mcp.CallToolResult, TaskOutput, error) {
		out, err := s.runTask(ctx, name, QuestionsInput{DocumentID: input.DocumentID})
		return nil, out, err
	}
}

func (s *Server) mcpQuestionsHandler(ctx context.Context, _ *mcp.CallToolRequest, input QuestionsInput) (
	*mcp.CallToolResult,
	TaskOutput,
	error,
) {
	out, err := s.runTask(ctx, "generate_questions", input)
	return nil, out, err
}

func (s *Server) mcpListDocumentsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ ListDocumentsInput) (
	*mcp.CallToolResult,
	*ListDocumentsOutput,
	error,
) {
	out, err := s.listDocuments(ctx)
	return nil, out, err
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	out, err := s.indexStatus(ctx)
	return nil, out, err
}

// Serve runs the server over stdio until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", "stdio"))

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
