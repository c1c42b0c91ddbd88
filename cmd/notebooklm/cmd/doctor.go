package cmd

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/config"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/output"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/preflight"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/provision"
)

// doctorChecker builds the checker. Tests replace it.
var doctorChecker = func(opts ...preflight.Option) *preflight.Checker {
	return preflight.New(opts...)
}

func newDoctorCmd() *cobra.Command {
	var verbose bool
	var jsonOutput bool
	var pull bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the data directory and the model backends",
		Long: `Check that notebooklm can run: the data directory is writable and
has space, and Ollama answers with the configured embedding and chat
models. With --pull, missing models are downloaded first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if pull {
				if err := pullModels(ctx, cmd, cfg); err != nil {
					return err
				}
			}

			checker := doctorChecker(preflight.WithOutput(cmd.OutOrStdout()), preflight.WithVerbose(verbose))
			results := checker.RunAll(ctx, cfg)
			if jsonOutput {
				if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}
			if checker.HasCriticalFailures(results) {
				return errors.New("system check failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details of every check")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&pull, "pull", false, "Download missing Ollama models")
	return cmd
}

// pullModels downloads the embedding and chat models that the Ollama
// hosts lack.
func pullModels(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	out := output.New(cmd.OutOrStdout())

	type want struct{ host, model string }
	var wants []want
	if !strings.EqualFold(cfg.Embeddings.Provider, "static") {
		wants = append(wants, want{cfg.Embeddings.OllamaHost, cfg.Embeddings.Model})
	}
	wants = append(wants, want{strings.TrimSuffix(strings.TrimRight(cfg.LLM.BaseURL, "/"), "/v1"), cfg.LLM.Model})

	for _, w := range wants {
		ollama := provision.NewOllama(w.host)
		if !ollama.IsRunning(ctx) {
			out.Warningf("Ollama is not reachable at %s; cannot pull %s", ollama.Host(), w.model)
			continue
		}
		bar := provision.NewProgressBar(cmd.OutOrStdout(), 30)
		out.Statusf("⬇️ ", "Pulling %s from %s", w.model, ollama.Host())
		err := ollama.PullModel(ctx, w.model, provision.PullPrinter(bar))
		bar.Finish()
		if err != nil {
			return err
		}
		out.Successf("%s ready", w.model)
	}
	return nil
}
