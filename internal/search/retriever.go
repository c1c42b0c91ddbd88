package search

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/store"
)

// SemanticSource ranks fragments by embedding distance.
type SemanticSource interface {
	Query(ctx context.Context, queryText string, n int, documentID string) ([]store.SemanticHit, error)
}

// LexicalSource ranks fragments by BM25 over an optionally restricted corpus.
type LexicalSource interface {
	Search(query, documentID string, n int) []store.LexicalHit
}

// Options configures a Retriever.
type Options struct {
	// TopK is the default number of results (default: 5).
	TopK int

	// OverFetch multiplies k for each ranked list (default: 2).
	OverFetch int

	// RRFConstant is the fusion smoothing constant (default: 60).
	RRFConstant int
}

// DefaultOptions returns the standard retrieval parameters.
func DefaultOptions() Options {
	return Options{TopK: 5, OverFetch: DefaultOverFetch, RRFConstant: DefaultRRFConstant}
}

// Result is one fused fragment.
type Result struct {
	Fragment store.Fragment
	Score    float64

	// SemanticRank and LexicalRank are 0-based, -1 when absent from that list.
	SemanticRank int
	LexicalRank  int
}

// Retriever answers hybrid queries over a semantic and a lexical source.
type Retriever struct {
	semantic SemanticSource
	lexical  LexicalSource
	fusion   *RRFFusion
	opts     Options
}

// NewRetriever creates a retriever. Non-positive options take defaults.
func NewRetriever(semantic SemanticSource, lexical LexicalSource, opts Options) *Retriever {
	def := DefaultOptions()
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if opts.OverFetch <= 0 {
		opts.OverFetch = def.OverFetch
	}
	if opts.RRFConstant <= 0 {
		opts.RRFConstant = def.RRFConstant
	}
	return &Retriever{
		semantic: semantic,
		lexical:  lexical,
		fusion:   NewRRFFusion(opts.RRFConstant),
		opts:     opts,
	}
}

// TopK returns the default result count.
func (r *Retriever) TopK() int {
	return r.opts.TopK
}

// Retrieve returns up to k fragments for query, restricted to documentID
// when it is non-empty. k <= 0 uses the configured TopK. Both sources are
// queried concurrently; a failure of either is returned as is. No
// matching content is an empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, documentID string) ([]Result, error) {
	if k <= 0 {
		k = r.opts.TopK
	}
	n := k * r.opts.OverFetch
	start := time.Now()

	var semantic []store.SemanticHit
	var lexical []store.LexicalHit

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := r.semantic.Query(gctx, query, n, documentID)
		if err != nil {
			return err
		}
		semantic = hits
		return nil
	})
	g.Go(func() error {
		lexical = r.lexical.Search(query, documentID, n)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := r.fuse(semantic, lexical, k)

	slog.Debug("hybrid_retrieval",
		slog.String("document_id", documentID),
		slog.Int("semantic", len(semantic)),
		slog.Int("lexical", len(lexical)),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))

	return results, nil
}

// fuse ranks the two hit lists and resolves the top k ids back to
// fragments, preferring the Fragment Store copy.
func (r *Retriever) fuse(semantic []store.SemanticHit, lexical []store.LexicalHit, k int) []Result {
	semIDs := make([]string, len(semantic))
	byID := make(map[string]store.Fragment, len(semantic)+len(lexical))
	for i, h := range semantic {
		semIDs[i] = h.Fragment.ID
		if _, ok := byID[h.Fragment.ID]; !ok {
			byID[h.Fragment.ID] = h.Fragment
		}
	}
	lexIDs := make([]string, len(lexical))
	for i, h := range lexical {
		lexIDs[i] = h.Fragment.ID
		if _, ok := byID[h.Fragment.ID]; !ok {
			byID[h.Fragment.ID] = h.Fragment
		}
	}

	fused := r.fusion.Fuse(semIDs, lexIDs)
	if len(fused) > k {
		fused = fused[:k]
	}

	results := make([]Result, 0, len(fused))
	for _, f := range fused {
		results = append(results, Result{
			Fragment:     byID[f.ID],
			Score:        f.Score,
			SemanticRank: f.SemanticRank,
			LexicalRank:  f.LexicalRank,
		})
	}
	return results
}

// Contents returns the fragment texts in rank order, best first.
func Contents(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Fragment.Content
	}
	return out
}
