package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/api"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/output"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var addr string
	var watchDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API used by the web front end.

Uploads are stored immediately and ingested in the background; poll
GET /api/upload/status/{document_id} for progress. With --watch, files
dropped into the directory are ingested as well.

Endpoints:
  POST   /api/upload
  GET    /api/upload/status/{document_id}
  POST   /api/ask
  POST   /api/summarize
  POST   /api/generate_questions
  POST   /api/extract_keywords
  GET    /api/documents
  DELETE /api/documents/{document_id}
  POST   /api/clear_all
  GET    /api/health`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			queue := a.newQueue()
			queue.Start(ctx)
			defer queue.Stop()

			srv := api.New(api.Config{
				Addr:        addr,
				MaxUploadMB: a.cfg.Server.MaxUploadMB,
				UploadRate:  a.cfg.Server.UploadRate,
				UploadBurst: a.cfg.Server.UploadBurst,
				Manager:     a.manager,
				Queue:       queue,
				Pipeline:    a.pipeline,
			})

			out := output.New(cmd.OutOrStdout())
			out.Successf("Listening on %s", addr)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.ListenAndServe(gctx) })
			g.Go(func() error {
				a.flushTelemetryEvery(gctx, time.Minute)
				return nil
			})

			if watchDir != "" {
				w, err := watcher.NewDirWatcher(watcher.DefaultOptions())
				if err != nil {
					return fmt.Errorf("failed to create watcher: %w", err)
				}
				inbox := watcher.NewInbox(w, a.manager, queue)
				out.Successf("Watching %s (%s)", watchDir, w.WatcherType())
				g.Go(func() error {
					if _, err := inbox.ScanExisting(gctx, watchDir); err != nil {
						slog.Warn("inbox_scan_failed", slog.String("error", err.Error()))
					}
					return inbox.Run(gctx, watchDir)
				})
			}

			err = g.Wait()
			slog.Info("serve_stopped")
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr)")
	cmd.Flags().StringVar(&watchDir, "watch", "", "Also ingest files dropped into this directory")
	return cmd
}
