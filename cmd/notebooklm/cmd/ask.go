package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/output"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/rag"
)

func newAskCmd() *cobra.Command {
	var documentID string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from your documents",
		Long: `Answer a question from the fragments of one document.

The document is --doc when given, otherwise the active document (the
last one ingested). With no active document the whole corpus is
searched. Greetings and small talk are answered without retrieval.

Examples:
  notebooklm ask "What does the report conclude?"
  notebooklm ask "Who are the authors?" --doc 7f3a9c1e-...`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			answer, err := a.pipeline.Ask(cmd.Context(), strings.Join(args, " "), documentID)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), answer)
			}
			printAnswer(output.New(cmd.OutOrStdout()), answer)
			return nil
		},
	}

	cmd.Flags().StringVarP(&documentID, "doc", "d", "", "Document id (default: active document)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printAnswer(out *output.Writer, answer *rag.Answer) {
	out.Text(answer.Answer)
	if len(answer.Sources) == 0 {
		return
	}
	out.Newline()
	out.Header("Sources")
	for i, src := range answer.Sources {
		out.Dim(fmt.Sprintf("  [%d] %s: %s", i+1, sourceLabel(src.Source, src.DocumentID, src.Page), output.Truncate(src.Content, 80)))
	}
}

// sourceLabel names a fragment origin; pages are shown 1-based.
func sourceLabel(source, documentID string, page *int) string {
	if source == "" {
		source = documentID
	}
	if page != nil {
		return fmt.Sprintf("%s, page %d", source, *page+1)
	}
	return source
}
