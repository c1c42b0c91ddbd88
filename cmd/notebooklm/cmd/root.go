// Package cmd provides the CLI commands for notebooklm.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	apperrors "github.com/lphhien112-gif/NOTEBOOKLM/internal/errors"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/logging"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/profiling"
	"github.com/lphhien112-gif/NOTEBOOKLM/pkg/version"
)

// Persistent flags
var (
	debugMode  bool
	projectDir string
	configFile string
	profile    profiling.Options

	loggingCleanup func()
	profiler       *profiling.Session
)

// NewRootCmd creates the root command for the notebooklm CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notebooklm",
		Short: "Ask questions about your own documents",
		Long: `notebooklm ingests PDF, DOCX and TXT documents and answers
questions about them with hybrid retrieval: semantic search over
embeddings fused with BM25 keyword search.

Everything runs locally against Ollama by default.

Start with:
  notebooklm ingest report.pdf
  notebooklm ask "What are the main findings?"`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("notebooklm version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "Project directory holding notebooklm.yaml and data/")
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file to use instead of <dir>/notebooklm.yaml")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging (also mirrored to stderr)")
	cmd.PersistentFlags().StringVar(&profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profile.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	// Documents
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newDocumentsCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newEvalCmd())
	cmd.AddCommand(newWatchCmd())

	// Questions
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newSummarizeCmd())
	cmd.AddCommand(newQuestionsCmd())
	cmd.AddCommand(newKeywordsCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newStatsCmd())

	// Servers
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMCPCmd())

	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging installs the file logger and starts profiling.
// The MCP server keeps stderr clean because some clients surface it.
func startProfilingAndLogging(cmd *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	switch {
	case cmd.Name() == "mcp" && debugMode:
		logCfg = logging.MCPConfig("debug")
	case cmd.Name() == "mcp":
		logCfg = logging.MCPConfig("info")
	case debugMode:
		logCfg = logging.DebugConfig()
	}

	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.Debug("command_started",
		slog.String("command", cmd.CommandPath()),
		slog.String("version", version.Version),
		slog.String("log_file", logCfg.FilePath))

	if profile.Enabled() {
		profiler, err = profiling.Start(profile)
		if err != nil {
			return err
		}
	}
	return nil
}

// stopProfilingAndLogging flushes profiles and closes the log file.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	err := profiler.Stop()
	profiler = nil

	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// Execute runs the root command until it returns or the process receives
// SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	if err != nil {
		_, _ = fmt.Fprint(root.ErrOrStderr(), apperrors.FormatForCLI(err))
	}
	return err
}
