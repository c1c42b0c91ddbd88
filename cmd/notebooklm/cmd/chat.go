package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/output"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/tui"
)

func newChatCmd() *cobra.Command {
	var documentID string
	var noColor bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with your documents in the terminal",
		Long: `Open an interactive chat. Each question is answered like 'ask'.

Commands inside the chat:
  /doc <id>  ask about one document
  /doc       go back to the active document
  /clear     clear the transcript
  /quit      leave (or press Esc)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !output.IsTTY(os.Stdout) {
				return errors.New("chat needs an interactive terminal; use 'notebooklm ask' instead")
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			return tui.Run(cmd.Context(), tui.Config{
				Asker:      a.pipeline,
				DocumentID: documentID,
				NoColor:    noColor,
			})
		},
	}

	cmd.Flags().StringVarP(&documentID, "doc", "d", "", "Document id (default: active document)")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colours")
	return cmd
}
