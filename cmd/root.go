package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadpipe/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "leadpipe",
	Short: "Lead qualification and enrichment pipeline",
	Long:  "Ingests lead candidates from social exports and scrape datasets, pre-filters them against ICP criteria, qualifies survivors with an LLM, resolves work emails, and pushes finished leads to campaign and CRM sinks.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
