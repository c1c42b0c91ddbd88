package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/output"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/provision"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newDocumentsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"ls"},
		Short:   "List uploaded documents",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			docs, err := a.manager.Documents(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), docs)
			}

			out := output.New(cmd.OutOrStdout())
			if len(docs) == 0 {
				out.Dim("No documents. Add one with: notebooklm ingest <file>")
				return nil
			}
			out.Header(fmt.Sprintf("%d documents", len(docs)))
			for _, d := range docs {
				marker := " "
				if d.Active {
					marker = "*"
				}
				out.Text(fmt.Sprintf("%s %s  %-32s %4d fragments  %s",
					marker, d.DocumentID, output.Truncate(d.Filename, 32), d.Fragments, provision.FormatBytes(d.Size)))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <document-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a document from every store",
		Long: `Delete a document's fragments from the vector store and the keyword
index, and remove its uploaded file. Deleting an unknown id is not an
error. The active document is left unchanged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			res, err := a.manager.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			if res.SemanticRemoved == 0 && res.LexicalRemoved == 0 && !res.FileRemoved {
				out.Warningf("Nothing stored for %s", args[0])
				return nil
			}
			out.Successf("Deleted %s", args[0])
			out.KeyValue("Vector store", res.SemanticRemoved)
			out.KeyValue("Keyword index", res.LexicalRemoved)
			out.KeyValue("File removed", res.FileRemoved)
			return nil
		},
	}
}

func newClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every document and reset the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			if !yes {
				ok, err := provision.Confirm(cmd.OutOrStdout(), cmd.InOrStdin(), "Delete all documents and indexes?")
				if err != nil {
					return err
				}
				if !ok {
					out.Dim("Cancelled.")
					return nil
				}
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			res, err := a.manager.ClearAll(cmd.Context())
			if err != nil {
				return err
			}
			out.Successf("Cleared %d collection(s) and %d file(s)", res.DeletedCollections, res.DeletedFiles)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}
