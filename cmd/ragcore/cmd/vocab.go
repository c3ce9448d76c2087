package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dante4567/rag-provider-sub004/internal/vocab"
)

func newVocabCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Inspect the controlled vocabulary",
	}
	cmd.AddCommand(newVocabListCmd())
	cmd.AddCommand(newVocabSuggestionsCmd())
	return cmd
}

func newVocabListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accepted terms per vocabulary kind",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer app.close()

			for _, kind := range vocab.Kinds {
				app.render.VocabTerms(kind, app.vocab.All(kind))
			}
			return nil
		},
	}
}

func newVocabSuggestionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggestions",
		Short: "List out-of-vocabulary terms awaiting review",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer app.close()

			suggestions, err := app.vocab.Suggestions()
			if err != nil {
				return err
			}
			app.render.Suggestions(suggestions)
			return nil
		},
	}
}
