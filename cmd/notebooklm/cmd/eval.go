package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/output"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/validation"
)

func newEvalCmd() *cobra.Command {
	var limit int
	var jsonOutput bool
	var minPassRate float64

	cmd := &cobra.Command{
		Use:   "eval <queries.yaml>",
		Short: "Measure retrieval quality against a query set",
		Long: `Run a YAML query set against the stored documents and report which
queries found what they expected.

Each query lists expectations matched by fragment id, document id or
source file name prefix. Negative queries pass when none of their
expectations are retrieved. The command fails when the tier 1 pass rate
is below --min-pass-rate.

Example queries.yaml:
  limit: 5
  tier1:
    - id: T1-Q1
      query: how do plants make energy
      expected: [biology.pdf]
  negative:
    - id: N-Q1
      query: chlorophyll
      document: 7f3a9c1e-...
      expected: [biology.pdf]`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queries, err := validation.LoadQueries(args[0])
			if err != nil {
				return err
			}
			if limit > 0 {
				queries.Limit = limit
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			run := validation.NewValidator(a.retriever).RunAll(cmd.Context(), queries)
			if jsonOutput {
				if err := writeJSON(cmd.OutOrStdout(), run); err != nil {
					return err
				}
			} else {
				printEval(output.New(cmd.OutOrStdout()), run)
			}

			if rate := run.Tier1.PassRate(); rate < minPassRate {
				return fmt.Errorf("tier 1 pass rate %.0f%% is below %.0f%%", rate, minPassRate)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Results inspected per query (default: the file's limit)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().Float64Var(&minPassRate, "min-pass-rate", 100, "Minimum tier 1 pass rate in percent")
	return cmd
}

func printEval(out *output.Writer, run *validation.ValidationResult) {
	for _, tr := range run.Results {
		name := tr.Spec.ID
		if tr.Spec.Name != "" {
			name += " " + tr.Spec.Name
		}
		switch {
		case tr.Error != "":
			out.Errorf("%s: %s", name, tr.Error)
		case tr.Passed && tr.MatchedAt >= 0:
			out.Successf("%s (rank %d)", name, tr.MatchedAt+1)
		case tr.Passed:
			out.Success(name)
		default:
			out.Errorf("%s: expected %v, got %v", name, tr.Spec.Expected, tr.TopResults)
		}
	}

	out.Newline()
	out.Header(fmt.Sprintf("Results (top %d)", run.Limit))
	summaries := []struct {
		label string
		s     validation.TierSummary
	}{
		{"Tier 1", run.Tier1},
		{"Tier 2", run.Tier2},
		{"Negative", run.Negative},
	}
	for _, sum := range summaries {
		if sum.s.Total == 0 {
			continue
		}
		out.KeyValue(sum.label, fmt.Sprintf("%d/%d passed (%.0f%%), MRR %.2f",
			sum.s.Passed, sum.s.Total, sum.s.PassRate(), sum.s.MRR))
	}
}
