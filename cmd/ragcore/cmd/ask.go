package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/dante4567/rag-provider-sub004/internal/rag"
)

func newAskCmd() *cobra.Command {
	var model string
	var topK int

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question over the indexed documents",
		Long: `Retrieve relevant chunks for the question and answer from them with
source citations. Low-confidence questions are refused before any
completion tokens are spent.

Examples:
  ragcore ask "when is the enrollment form due?"
  ragcore ask "what did the landlord write about the deposit?" --model gpt-4o-mini`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer app.close()

			answer, err := app.answerer.Ask(cmd.Context(),
				strings.Join(args, " "),
				rag.Options{Model: model, TopK: topK})
			if err != nil {
				return err
			}
			app.render.Answer(answer)
			return nil
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "Pin the completion to a specific model id")
	cmd.Flags().IntVarP(&topK, "k", "k", 0, "Number of chunks to retrieve (0 = configured default)")
	return cmd
}
