package cmd

import (
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/logging"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/output"
)

func newLogsCmd() *cobra.Command {
	var (
		follow  bool
		lines   int
		level   string
		filter  string
		noColor bool
		logFile string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the notebooklm log",
		Long: `Show the last lines of the JSON log written by every command
(~/.notebooklm/logs/notebooklm.log), formatted for reading.

Examples:
  notebooklm logs                   # last 50 lines
  notebooklm logs -f                # follow new lines
  notebooklm logs --level warn      # warnings and errors only
  notebooklm logs --filter 7f3a     # lines mentioning a document`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var pattern *regexp.Regexp
			if filter != "" {
				var err error
				if pattern, err = regexp.Compile(filter); err != nil {
					return fmt.Errorf("invalid filter pattern: %w", err)
				}
			}
			if logFile == "" {
				logFile = logging.DefaultLogPath()
			}

			stdout := cmd.OutOrStdout()
			viewer := logging.NewViewer(logging.ViewerConfig{
				Level:   level,
				Pattern: pattern,
				NoColor: noColor || !output.New(stdout).UseColor(),
			}, stdout)

			entries, err := viewer.Tail(logFile, lines)
			if err != nil {
				return err
			}
			viewer.Print(entries)
			if !follow {
				return nil
			}

			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "--- following %s (Ctrl+C to stop)\n", logFile)
			ctx := cmd.Context()
			ch := make(chan logging.LogEntry, 64)
			done := make(chan error, 1)
			go func() { done <- viewer.Follow(ctx, logFile, ch) }()
			for {
				select {
				case entry := <-ch:
					viewer.Print([]logging.LogEntry{entry})
				case err := <-done:
					return err
				}
			}
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow new log lines")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level (debug|info|warn|error)")
	cmd.Flags().StringVar(&filter, "filter", "", "Show only lines matching this regular expression")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&logFile, "file", "", "Log file to read (default: the notebooklm log)")
	return cmd
}
