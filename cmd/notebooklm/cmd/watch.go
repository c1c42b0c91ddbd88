package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/output"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var existing bool
	var poll bool

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Ingest documents dropped into a directory",
		Long: `Watch a directory and ingest every supported file created or changed
in it. Subdirectories, hidden files and partial downloads are ignored.
Deleting a file from the directory does not delete the document.

Runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir := args[0]

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			opts := watcher.DefaultOptions()
			opts.ForcePolling = poll
			w, err := watcher.NewDirWatcher(opts)
			if err != nil {
				return fmt.Errorf("failed to create watcher: %w", err)
			}

			// Ingest inline: one file at a time, in event order.
			inbox := watcher.NewInbox(w, a.manager, nil)
			out := output.New(cmd.OutOrStdout())

			if existing {
				n, err := inbox.ScanExisting(ctx, dir)
				if err != nil {
					return err
				}
				out.Successf("Ingested %d existing file(s)", n)
			}

			out.Successf("Watching %s (%s). Press Ctrl+C to stop.", dir, w.WatcherType())
			return inbox.Run(ctx, dir)
		},
	}

	cmd.Flags().BoolVar(&existing, "existing", false, "Ingest files already in the directory first")
	cmd.Flags().BoolVar(&poll, "poll", false, "Poll instead of using filesystem notifications")
	return cmd
}
