package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/rag"
)

// newTaskCmd builds a command that runs one whole-document task and
// prints the generated text.
func newTaskCmd(use, short string, run func(ctx context.Context, p *rag.Pipeline, documentID string) (string, error)) *cobra.Command {
	var documentID string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			text, err := run(cmd.Context(), a.pipeline, documentID)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write([]byte(text + "\n"))
			return err
		},
	}

	cmd.Flags().StringVarP(&documentID, "doc", "d", "", "Document id (default: active document)")
	return cmd
}

func newSummarizeCmd() *cobra.Command {
	return newTaskCmd("summarize", "Summarize a whole document",
		func(ctx context.Context, p *rag.Pipeline, documentID string) (string, error) {
			return p.Summarize(ctx, documentID)
		})
}

func newQuestionsCmd() *cobra.Command {
	var count int
	cmd := newTaskCmd("questions", "Write review questions about a document",
		func(ctx context.Context, p *rag.Pipeline, documentID string) (string, error) {
			return p.GenerateQuestions(ctx, count, documentID)
		})
	cmd.Flags().IntVarP(&count, "count", "n", rag.DefaultQuestionCount, "Number of questions (1-20)")
	return cmd
}

func newKeywordsCmd() *cobra.Command {
	return newTaskCmd("keywords", "List the main keywords and topics of a document",
		func(ctx context.Context, p *rag.Pipeline, documentID string) (string, error) {
			return p.ExtractKeywords(ctx, documentID)
		})
}
