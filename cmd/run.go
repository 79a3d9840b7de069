package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadpipe/internal/model"
)

var (
	runSource   string
	runInput    string
	runPost     string
	runActor    string
	runProvider string
	runResume   string
	runLoose    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline for one candidate batch",
	Long:  "Fetches candidates from the selected source, pre-filters them, qualifies survivors with the LLM, resolves contacts, and persists everything under a run ID. Interrupted runs can be picked up with --resume.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("run"); err != nil {
			return err
		}

		env, err := initPipelineEnv(ctx, runProvider, runLoose)
		if err != nil {
			return err
		}
		defer env.Close()

		src, err := buildSource(runSource, runInput, runPost, runActor)
		if err != nil {
			return err
		}

		var run *model.Run
		if runResume != "" {
			run, err = env.Orchestrator.Resume(ctx, runResume, src)
		} else {
			run, err = env.Orchestrator.Run(ctx, src)
		}
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("run complete",
			zap.String("run_id", run.ID),
			zap.Int("fetched", run.Counters.Fetched),
			zap.Int("qualified", run.Counters.Qualified),
			zap.Int("enriched", run.Counters.Enriched),
			zap.Int("enrich_failed", run.Counters.EnrichFailed),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	runCmd.Flags().StringVar(&runSource, "source", "file", "candidate source (file, reactions, jobs)")
	runCmd.Flags().StringVar(&runInput, "input", "", "candidate file: local path or http/ftp URL (csv, xlsx, zip, json)")
	runCmd.Flags().StringVar(&runPost, "post", "", "LinkedIn post ID for --source reactions")
	runCmd.Flags().StringVar(&runActor, "actor", "", "Apify actor ID for --source jobs (default from config)")
	runCmd.Flags().StringVar(&runProvider, "provider", "clado", "contact provider (clado, apollo, icypeas)")
	runCmd.Flags().StringVar(&runResume, "resume", "", "resume an interrupted run by ID")
	runCmd.Flags().BoolVar(&runLoose, "loose", false, "accept personal emails when no work email is found")
	rootCmd.AddCommand(runCmd)
}
