package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadpipe/internal/config"
	"github.com/sells-group/leadpipe/internal/prefilter"
)

var (
	filterSource string
	filterInput  string
	filterPost   string
	filterActor  string
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Pre-filter candidates against the ICP criteria",
	Long:  "Fetches candidates and evaluates the deterministic criteria checks (location, audience size, keywords) without calling the LLM. Prints qualified and rejected candidates with per-reason counts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		criteria, err := config.LoadCriteria(cfg.Criteria.Path)
		if err != nil {
			return eris.Wrap(err, "load criteria")
		}

		src, err := buildSource(filterSource, filterInput, filterPost, filterActor)
		if err != nil {
			return err
		}

		result, err := src.Fetch(ctx)
		if err != nil {
			return eris.Wrap(err, "fetch candidates")
		}

		batch := prefilter.New(criteria).EvaluateBatch(result.Candidates)

		zap.L().Info("filter complete",
			zap.Int("total", batch.Stats.Total),
			zap.Int("passed", batch.Stats.Passed),
			zap.Int("rejected", batch.Stats.Rejected),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(batch)
	},
}

func init() {
	filterCmd.Flags().StringVar(&filterSource, "source", "file", "candidate source (file, reactions, jobs)")
	filterCmd.Flags().StringVar(&filterInput, "input", "", "candidate file: local path or http/ftp URL (csv, xlsx, zip, json)")
	filterCmd.Flags().StringVar(&filterPost, "post", "", "LinkedIn post ID for --source reactions")
	filterCmd.Flags().StringVar(&filterActor, "actor", "", "Apify actor ID for --source jobs (default from config)")
	rootCmd.AddCommand(filterCmd)
}
