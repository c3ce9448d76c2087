// Package cmd provides the CLI commands for ragcore.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dante4567/rag-provider-sub004/internal/logging"
	"github.com/dante4567/rag-provider-sub004/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the ragcore CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ragcore",
		Short: "Local-first document indexing and question answering",
		Long: `ragcore ingests personal documents through an enrichment pipeline,
indexes them for hybrid (keyword + semantic) retrieval, and answers
questions over them with confidence-gated, source-cited responses.

Configuration is read from .ragcore.yaml in the working directory,
~/.config/ragcore/config.yaml, and RAGCORE_* environment variables.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetVersionTemplate("ragcore version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newVocabCmd())
	cmd.AddCommand(newCostsCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setupLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.Config{Level: "info", WriteToStderr: true}
	if debugMode {
		cfg.Level = "debug"
	}
	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
