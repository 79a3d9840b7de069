package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	fetchSource string
	fetchInput  string
	fetchPost   string
	fetchActor  string
	fetchOut    string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch and normalize candidates without running the pipeline",
	Long:  "Pulls raw items from the selected source, normalizes them into candidates, and prints the result as JSON. Useful for inspecting a source before committing to a full run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		src, err := buildSource(fetchSource, fetchInput, fetchPost, fetchActor)
		if err != nil {
			return err
		}

		result, err := src.Fetch(ctx)
		if err != nil {
			return eris.Wrap(err, "fetch candidates")
		}

		zap.L().Info("fetch complete",
			zap.String("source", string(src.Name())),
			zap.Int("candidates", len(result.Candidates)),
			zap.Int("dropped", result.Dropped()),
		)

		out := os.Stdout
		if fetchOut != "" {
			f, err := os.Create(fetchOut)
			if err != nil {
				return eris.Wrapf(err, "create %s", fetchOut)
			}
			defer f.Close()
			out = f
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchSource, "source", "file", "candidate source (file, reactions, jobs)")
	fetchCmd.Flags().StringVar(&fetchInput, "input", "", "candidate file: local path or http/ftp URL (csv, xlsx, zip, json)")
	fetchCmd.Flags().StringVar(&fetchPost, "post", "", "LinkedIn post ID for --source reactions")
	fetchCmd.Flags().StringVar(&fetchActor, "actor", "", "Apify actor ID for --source jobs (default from config)")
	fetchCmd.Flags().StringVar(&fetchOut, "out", "", "write JSON to a file instead of stdout")
	rootCmd.AddCommand(fetchCmd)
}
