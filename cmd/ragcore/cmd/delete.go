package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <doc-id>...",
		Short: "Remove documents and all derived state",
		Long: `Delete documents from the catalog along with their chunks, BM25
entries, and vectors. Cached search results are invalidated.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer app.close()

			for _, docID := range args {
				if err := app.pipeline.Delete(cmd.Context(), docID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", docID)
			}
			return nil
		},
	}
}
