package cmd

import (
	"github.com/spf13/cobra"
)

func newCostsCmd() *cobra.Command {
	var windowDays int

	cmd := &cobra.Command{
		Use:   "costs",
		Short: "Show LLM spend against the daily budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer app.close()

			app.render.Costs(app.ledger.Stats(windowDays))
			return nil
		},
	}

	cmd.Flags().IntVar(&windowDays, "days", 7, "Trailing window in days")
	return cmd
}
