package cmd

import (
	"github.com/spf13/cobra"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server over stdio",
		Long: `Run a Model Context Protocol server over stdin/stdout so AI assistants
can search and question your documents.

Nothing but JSON-RPC is written to stdout; logs go to
~/.notebooklm/logs/notebooklm.log.

Example client configuration:
  {"command": "notebooklm", "args": ["mcp", "--dir", "/path/to/project"]}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			queue := a.newQueue()
			queue.Start(ctx)
			defer queue.Stop()

			srv, err := mcp.NewServer(mcp.Config{
				Retriever: a.retriever,
				Pipeline:  a.pipeline,
				Manager:   a.manager,
				Queue:     queue,
				Embedder:  a.embedder,
				Settings:  a.cfg,
			})
			if err != nil {
				return err
			}
			return srv.Serve(ctx)
		},
	}
}
