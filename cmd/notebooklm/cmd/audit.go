package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/output"
)

func newAuditCmd() *cobra.Command {
	var repair bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check that the vector store and keyword index agree",
		Long: `Compare the fragment ids of every document in the vector store and
the keyword index. Ingestion is not transactional across the two, so a
failed ingest can leave fragments in only one of them.

With --repair, every document with a mismatch is deleted so it can be
ingested again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			report, err := a.manager.Audit(ctx)
			if err != nil {
				return err
			}

			var repaired int
			if repair && !report.Consistent() {
				if repaired, err = a.manager.Repair(ctx, report); err != nil {
					return err
				}
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), struct {
					Consistent bool `json:"consistent"`
					Repaired   int  `json:"repaired"`
					Report     any  `json:"report"`
				}{report.Consistent(), repaired, report})
			}

			out := output.New(cmd.OutOrStdout())
			out.Header("Index audit")
			out.KeyValue("Documents", report.Documents)
			out.KeyValue("Fragments", report.Fragments)
			if report.Consistent() {
				out.Success("Vector store and keyword index agree")
				return nil
			}
			for _, issue := range report.Issues {
				var parts []string
				if n := len(issue.MissingLexical); n > 0 {
					parts = append(parts, fmt.Sprintf("%d missing from keyword index", n))
				}
				if n := len(issue.MissingSemantic); n > 0 {
					parts = append(parts, fmt.Sprintf("%d missing from vector store", n))
				}
				out.Warningf("%s: %s", issue.DocumentID, strings.Join(parts, ", "))
			}
			if repair {
				out.Successf("Deleted %d inconsistent document(s); ingest them again", repaired)
			} else {
				out.Dim("Run 'notebooklm audit --repair' to delete them")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Delete documents whose stores disagree")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
