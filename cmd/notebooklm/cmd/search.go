package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/output"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/search"
)

// searchHit is the JSON form of one fused result.
type searchHit struct {
	FragmentID   string  `json:"fragment_id"`
	DocumentID   string  `json:"document_id"`
	Source       string  `json:"source"`
	Page         *int    `json:"page,omitempty"`
	Score        float64 `json:"score"`
	SemanticRank int     `json:"semantic_rank"`
	LexicalRank  int     `json:"lexical_rank"`
	Content      string  `json:"content"`
}

func newSearchCmd() *cobra.Command {
	var documentID string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Show the fragments retrieved for a query",
		Long: `Run hybrid retrieval without generating an answer.

Semantic and keyword results are fused with Reciprocal Rank Fusion.
Unlike ask, search does not fall back to the active document: without
--doc the whole corpus is searched.

Examples:
  notebooklm search "photosynthesis"
  notebooklm search "error budget" --doc 7f3a9c1e-... --limit 10 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			query := strings.Join(args, " ")
			results, err := a.retriever.Retrieve(cmd.Context(), query, limit, documentID)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), toSearchHits(results))
			}
			printResults(output.New(cmd.OutOrStdout()), query, results)
			return nil
		},
	}

	cmd.Flags().StringVarP(&documentID, "doc", "d", "", "Restrict to one document")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results (default: retrieval.top_k)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func toSearchHits(results []search.Result) []searchHit {
	hits := make([]searchHit, len(results))
	for i, r := range results {
		hits[i] = searchHit{
			FragmentID:   r.Fragment.ID,
			DocumentID:   r.Fragment.Metadata.DocumentID,
			Source:       r.Fragment.Metadata.Source,
			Page:         r.Fragment.Metadata.Page,
			Score:        r.Score,
			SemanticRank: r.SemanticRank,
			LexicalRank:  r.LexicalRank,
			Content:      r.Fragment.Content,
		}
	}
	return hits
}

func printResults(out *output.Writer, query string, results []search.Result) {
	if len(results) == 0 {
		out.Dim(fmt.Sprintf("No results for %q", query))
		return
	}
	out.Header(fmt.Sprintf("%d results for %q", len(results), query))
	for i, r := range results {
		md := r.Fragment.Metadata
		out.Newline()
		out.Text(fmt.Sprintf("%d. %s  (score %.4f, %s)", i+1, sourceLabel(md.Source, md.DocumentID, md.Page), r.Score, rankLabel(r)))
		out.Dim("   " + output.Truncate(r.Fragment.Content, 160))
	}
}

func rankLabel(r search.Result) string {
	var parts []string
	if r.SemanticRank >= 0 {
		parts = append(parts, fmt.Sprintf("semantic #%d", r.SemanticRank+1))
	}
	if r.LexicalRank >= 0 {
		parts = append(parts, fmt.Sprintf("keyword #%d", r.LexicalRank+1))
	}
	return strings.Join(parts, ", ")
}
