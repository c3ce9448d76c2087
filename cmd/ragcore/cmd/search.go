package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	apperr "github.com/dante4567/rag-provider-sub004/internal/errors"
	"github.com/dante4567/rag-provider-sub004/internal/search"
)

type searchOptions struct {
	k       int
	mode    string
	filters []string
	format  string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed documents",
		Long: `Hybrid search over the ingested corpus: BM25 keyword scores fused
with dense similarity, diversified, and reranked.

Examples:
  ragcore search "enrollment deadline"
  ragcore search "tax documents" --k 10 --mode dense
  ragcore search "recipes" --filter topics=cooking --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			filter, err := parseFilters(opts.filters)
			if err != nil {
				return err
			}
			mode := search.Mode(opts.mode)
			if mode != search.ModeHybrid && mode != search.ModeDense {
				return apperr.ValidationError(
					fmt.Sprintf("unknown mode %q (want 'hybrid' or 'dense')", opts.mode), nil)
			}

			app, err := newApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer app.close()

			results, err := app.engine.Search(cmd.Context(), query, opts.k, filter, mode)
			if err != nil {
				return err
			}

			if opts.format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			app.render.SearchResults(query, results)
			return nil
		},
	}

	cmd.Flags().IntVarP(&opts.k, "k", "k", 5, "Number of results")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "hybrid", "Retrieval mode: hybrid, dense")
	cmd.Flags().StringSliceVarP(&opts.filters, "filter", "f", nil, "Metadata filter key=value (repeatable)")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format: text, json")
	return cmd
}

func parseFilters(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filter := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, apperr.ValidationError(
				fmt.Sprintf("invalid filter %q (want key=value)", pair), nil)
		}
		filter[key] = value
	}
	return filter, nil
}
