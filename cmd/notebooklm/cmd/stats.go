package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/output"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/telemetry"
)

func newStatsCmd() *cobra.Command {
	var top int
	var jsonOutput bool
	var reset bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show retrieval query statistics",
		Long: `Show what has been asked of the document store.

Every retrieval made by ask, search, chat, serve and mcp is counted:
which ranked list produced the best hit, how long it took, the most
frequent query terms and the recent queries that found nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirs(); err != nil {
				return err
			}

			ctx := cmd.Context()
			usage, err := telemetry.Open(ctx, filepath.Join(cfg.Paths.DataDir, telemetry.FileName))
			if err != nil {
				return err
			}
			defer func() { _ = usage.Close() }()

			out := output.New(cmd.OutOrStdout())
			if reset {
				if err := usage.Reset(ctx); err != nil {
					return err
				}
				out.Success("Query statistics reset")
				return nil
			}

			snap, err := usage.Load(ctx, top)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), snap)
			}
			printStats(out, snap)
			return nil
		},
	}

	cmd.Flags().IntVarP(&top, "top", "n", 10, "Number of query terms to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&reset, "reset", false, "Delete the recorded statistics")
	return cmd
}

func printStats(out *output.Writer, snap telemetry.Snapshot) {
	if snap.Empty() {
		out.Text("No queries recorded yet.")
		return
	}

	out.Header("Queries")
	out.KeyValue("Total", snap.Total)
	out.KeyValue("Failed", snap.Failed)
	out.KeyValue("Document scoped", snap.Scoped)

	out.Newline()
	out.Header("Best hit from")
	for _, qt := range telemetry.QueryTypes {
		out.KeyValue(string(qt), fmt.Sprintf("%d (%s)", snap.Types[qt], percent(snap.Types[qt], snap.Total)))
	}

	out.Newline()
	out.Header("Latency")
	for _, b := range telemetry.LatencyBuckets {
		out.KeyValue(string(b), snap.Latency[b])
	}

	if len(snap.TopTerms) > 0 {
		out.Newline()
		out.Header("Top terms")
		for _, tc := range snap.TopTerms {
			out.KeyValue(tc.Term, tc.Count)
		}
	}

	if len(snap.ZeroResults) > 0 {
		out.Newline()
		out.Header("Recent queries without results")
		for _, z := range snap.ZeroResults {
			line := output.Truncate(z.Query, 70)
			if z.DocumentID != "" {
				line += "  (document " + z.DocumentID + ")"
			}
			out.Dim("  " + line)
		}
	}
}

func percent(n, total int64) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.0f%%", float64(n)*100/float64(total))
}
