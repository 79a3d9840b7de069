package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadpipe/internal/config"
	"github.com/sells-group/leadpipe/internal/model"
	"github.com/sells-group/leadpipe/internal/prefilter"
	"github.com/sells-group/leadpipe/internal/qualify"
)

var (
	qualifySource string
	qualifyInput  string
	qualifyPost   string
	qualifyActor  string
)

// qualifiedCandidate pairs a candidate with its LLM verdict for JSON output.
type qualifiedCandidate struct {
	Candidate model.Candidate            `json:"candidate"`
	Verdict   model.QualificationVerdict `json:"verdict"`
}

var qualifyCmd = &cobra.Command{
	Use:   "qualify",
	Short: "Pre-filter and LLM-qualify candidates without enriching",
	Long:  "Fetches candidates, runs the deterministic pre-filter, then asks the LLM for a verdict on each survivor. Prints candidate/verdict pairs as JSON. No contacts are resolved and nothing is persisted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("qualify"); err != nil {
			return err
		}

		criteria, err := config.LoadCriteria(cfg.Criteria.Path)
		if err != nil {
			return eris.Wrap(err, "load criteria")
		}

		completer, err := buildCompleter()
		if err != nil {
			return err
		}
		qualifier := qualify.New(completer, criteria)

		src, err := buildSource(qualifySource, qualifyInput, qualifyPost, qualifyActor)
		if err != nil {
			return err
		}

		result, err := src.Fetch(ctx)
		if err != nil {
			return eris.Wrap(err, "fetch candidates")
		}

		batch := prefilter.New(criteria).EvaluateBatch(result.Candidates)

		verdicts := make([]qualifiedCandidate, 0, len(batch.Qualified))
		accepted := 0
		for _, c := range batch.Qualified {
			v := qualifier.Qualify(ctx, c)
			if v.Accepted() {
				accepted++
			}
			verdicts = append(verdicts, qualifiedCandidate{Candidate: c, Verdict: v})
		}

		zap.L().Info("qualify complete",
			zap.Int("prefiltered", batch.Stats.Rejected),
			zap.Int("evaluated", len(verdicts)),
			zap.Int("accepted", accepted),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(verdicts)
	},
}

func init() {
	qualifyCmd.Flags().StringVar(&qualifySource, "source", "file", "candidate source (file, reactions, jobs)")
	qualifyCmd.Flags().StringVar(&qualifyInput, "input", "", "candidate file: local path or http/ftp URL (csv, xlsx, zip, json)")
	qualifyCmd.Flags().StringVar(&qualifyPost, "post", "", "LinkedIn post ID for --source reactions")
	qualifyCmd.Flags().StringVar(&qualifyActor, "actor", "", "Apify actor ID for --source jobs (default from config)")
	rootCmd.AddCommand(qualifyCmd)
}
