package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/output"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Upload and index documents",
		Long: `Upload one or more documents and index them for retrieval.

Each file gets a new document id. The last successfully ingested file
becomes the active document used by ask, summarize, questions and
keywords when --doc is not given.

Supported formats: .pdf, .docx, .txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd, args)
		},
	}
}

func runIngest(ctx context.Context, cmd *cobra.Command, paths []string) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := output.New(cmd.OutOrStdout())
	var failed int
	for _, path := range paths {
		if err := ingestOne(ctx, a, out, path); err != nil {
			failed++
			out.Errorf("%s: %v", filepath.Base(path), err)
			slog.Warn("ingest_failed", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed to ingest", failed, len(paths))
	}
	return nil
}

func ingestOne(ctx context.Context, a *app, out *output.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	upload, err := a.manager.AddUpload(ctx, filepath.Base(path), f)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := a.manager.IngestFile(ctx, upload.Path, upload.DocumentID)
	if err != nil {
		if res.Fragments == 0 {
			_, _ = a.manager.Uploads().Remove(upload.DocumentID)
		}
		return err
	}
	if res.Fragments == 0 {
		out.Warningf("%s: no text found", upload.Filename)
		return nil
	}

	out.Successf("%s: %d fragments in %s", upload.Filename, res.Fragments, time.Since(start).Round(time.Millisecond))
	out.KeyValue("Document", upload.DocumentID)
	return nil
}
