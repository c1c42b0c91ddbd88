// Package rag answers questions over ingested documents and runs
// whole-document tasks (summary, review questions, keywords).
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/lphhien112-gif/NOTEBOOKLM/internal/errors"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/llm"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/search"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/store"
)

// Question count bounds for GenerateQuestions.
const (
	DefaultQuestionCount = 5
	MaxQuestionCount     = 20
)

// Retriever returns the top k fused fragments for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, documentID string) ([]search.Result, error)
}

// DocumentReader returns every fragment of a document in order.
type DocumentReader interface {
	GetAll(ctx context.Context, documentID string) ([]store.Fragment, error)
}

// ActiveDocument supplies the default document id.
type ActiveDocument interface {
	Get() (string, bool)
}

// Config wires a Pipeline.
type Config struct {
	Retriever Retriever
	Documents DocumentReader
	Active    ActiveDocument
	Generator llm.Generator

	// TopK is the number of fragments used as context (default: 5).
	TopK int
}

// Source is one fragment used to answer.
type Source struct {
	FragmentID string  `json:"fragment_id"`
	DocumentID string  `json:"document_id"`
	Source     string  `json:"source"`
	Page       *int    `json:"page,omitempty"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

// Answer is the result of Ask.
type Answer struct {
	Answer         string   `json:"answer"`
	Sources        []Source `json:"sources"`
	DocumentID     string   `json:"document_id,omitempty"`
	Conversational bool     `json:"conversational,omitempty"`
}

// Pipeline combines retrieval and generation.
type Pipeline struct {
	retriever Retriever
	documents DocumentReader
	active    ActiveDocument
	generator llm.Generator
	topK      int
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg Config) *Pipeline {
	if cfg.TopK <= 0 {
		cfg.TopK = search.DefaultOptions().TopK
	}
	return &Pipeline{
		retriever: cfg.Retriever,
		documents: cfg.Documents,
		active:    cfg.Active,
		generator: cfg.Generator,
		topK:      cfg.TopK,
	}
}

// Ask answers query. Small talk goes straight to the generator. Anything
// else is answered from the top fragments of documentID, or of the active
// document when documentID is empty, or of the whole corpus when neither
// is set. Finding nothing is a normal answer, not an error.
func (p *Pipeline) Ask(ctx context.Context, query, documentID string) (*Answer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperrors.New(apperrors.ErrCodeQueryEmpty, "query is empty", nil)
	}

	if IsConversational(query) {
		return &Answer{Answer: p.converse(ctx, query), Sources: []Source{}, Conversational: true}, nil
	}

	target := p.resolve(documentID)
	start := time.Now()
	results, err := p.retriever.Retrieve(ctx, query, p.topK, target)
	if err != nil {
		return nil, err
	}

	answer := &Answer{DocumentID: target, Sources: toSources(results)}
	if len(results) == 0 {
		slog.Info("no_context_found", slog.String("document_id", target))
		answer.Answer = NoContextAnswer
		return answer, nil
	}

	text, err := p.generator.Generate(ctx, llm.Request{
		Prompt:      answerPrompt(query, search.Contents(results)),
		Temperature: answerTemperature,
	})
	if err != nil {
		return nil, err
	}
	answer.Answer = text

	slog.Info("question_answered",
		slog.String("document_id", target),
		slog.Int("sources", len(results)),
		slog.Duration("duration", time.Since(start)))
	return answer, nil
}

// converse never fails; a generation error yields a fixed greeting.
func (p *Pipeline) converse(ctx context.Context, query string) string {
	text, err := p.generator.Generate(ctx, llm.Request{
		System:      conversationalSystemPrompt,
		Prompt:      query,
		Temperature: conversationalTemperature,
	})
	if err != nil {
		slog.Warn("conversational_generation_failed", slog.String("error", err.Error()))
		return GreetingFallback
	}
	return text
}

// Summarize writes a detailed summary of a document.
func (p *Pipeline) Summarize(ctx context.Context, documentID string) (string, error) {
	return p.documentTask(ctx, "summarize", documentID, summaryTemperature, summaryPrompt)
}

// GenerateQuestions writes n review questions about a document. Zero
// means DefaultQuestionCount.
func (p *Pipeline) GenerateQuestions(ctx context.Context, n int, documentID string) (string, error) {
	if n == 0 {
		n = DefaultQuestionCount
	}
	if n < 1 || n > MaxQuestionCount {
		return "", apperrors.ValidationError(
			fmt.Sprintf("number of questions must be between 1 and %d, got %d", MaxQuestionCount, n), nil)
	}
	return p.documentTask(ctx, "generate_questions", documentID, questionsTemperature,
		func(text string) string { return questionsPrompt(text, n) })
}

// ExtractKeywords lists the main keywords and topics of a document.
func (p *Pipeline) ExtractKeywords(ctx context.Context, documentID string) (string, error) {
	return p.documentTask(ctx, "extract_keywords", documentID, keywordsTemperature, keywordsPrompt)
}

// FullText returns every fragment of a document joined by newlines.
func (p *Pipeline) FullText(ctx context.Context, documentID string) (string, string, error) {
	target := p.resolve(documentID)
	if target == "" {
		return "", "", apperrors.New(apperrors.ErrCodeNoActiveDocument, "no document specified and no active document", nil).
			WithSuggestion("Ingest a document first or pass a document id")
	}

	fragments, err := p.documents.GetAll(ctx, target)
	if err != nil {
		return "", target, err
	}
	if len(fragments) == 0 {
		return "", target, apperrors.New(apperrors.ErrCodeDocumentNotFound, "no content found for document "+target, nil).
			WithDetail("document_id", target)
	}

	parts := make([]string, len(fragments))
	for i, f := range fragments {
		parts[i] = f.Content
	}
	return strings.Join(parts, "\n"), target, nil
}

func (p *Pipeline) documentTask(ctx context.Context, task, documentID string, temperature float64, prompt func(string) string) (string, error) {
	text, target, err := p.FullText(ctx, documentID)
	if err != nil {
		return "", err
	}

	start := time.Now()
	out, err := p.generator.Generate(ctx, llm.Request{Prompt: prompt(text), Temperature: temperature})
	if err != nil {
		return "", err
	}

	slog.Info("document_task_completed",
		slog.String("task", task),
		slog.String("document_id", target),
		slog.Int("chars", len(text)),
		slog.Duration("duration", time.Since(start)))
	return out, nil
}

func (p *Pipeline) resolve(documentID string) string {
	if documentID != "" || p.active == nil {
		return documentID
	}
	id, _ := p.active.Get()
	return id
}

func toSources(results []search.Result) []Source {
	sources := make([]Source, len(results))
	for i, r := range results {
		sources[i] = Source{
			FragmentID: r.Fragment.ID,
			DocumentID: r.Fragment.Metadata.DocumentID,
			Source:     r.Fragment.Metadata.Source,
			Page:       r.Fragment.Metadata.Page,
			Content:    r.Fragment.Content,
			Score:      r.Score,
		}
	}
	return sources
}
