package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dante4567/rag-provider-sub004/internal/pipeline"
)

func newIngestCmd() *cobra.Command {
	var gating bool
	var noGating bool

	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Ingest files or directories into the index",
		Long: `Ingest documents through the full pipeline: duplicate triage,
LLM enrichment, quality gating, chunking, storage, and indexing.

Directories are walked recursively; hidden files and binary
formats are skipped.

Examples:
  ragcore ingest notes/
  ragcore ingest letter.md journal/ --gating`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer app.close()

			var opts []pipeline.Option
			if cmd.Flags().Changed("gating") {
				opts = append(opts, pipeline.WithGating(gating))
			}
			if noGating {
				opts = append(opts, pipeline.WithGating(false))
			}

			results, err := app.pipeline.IngestBatch(cmd.Context(), args, opts...)
			if err != nil {
				return err
			}
			app.render.BatchOutcomes(results)
			return nil
		},
	}

	cmd.Flags().BoolVar(&gating, "gating", false, "Enable the quality gate for this run")
	cmd.Flags().BoolVar(&noGating, "no-gating", false, "Disable the quality gate for this run")
	return cmd
}
