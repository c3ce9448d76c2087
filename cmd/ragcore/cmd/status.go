package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show catalog and index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer app.close()

			stats, err := app.catalog.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "documents:   %d\n", stats.DocumentCount)
			fmt.Fprintf(out, "chunks:      %d\n", stats.ChunkCount)
			fmt.Fprintf(out, "enrichments: %d\n", stats.EnrichmentCount)
			fmt.Fprintf(out, "gated:       %d\n", stats.GatedCount)
			if !stats.LastIngestedAt.IsZero() {
				fmt.Fprintf(out, "last ingest: %s\n", stats.LastIngestedAt.Format("2006-01-02 15:04:05"))
			}
			fmt.Fprintf(out, "bm25 terms:  %d\n", app.bm25.Stats().TermCount)
			fmt.Fprintf(out, "vectors:     %d (%s)\n", app.vectors.Count(), app.embedder.ModelName())
			return nil
		},
	}
}
