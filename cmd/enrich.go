package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadpipe/internal/enrich"
	"github.com/sells-group/leadpipe/internal/export"
	"github.com/sells-group/leadpipe/internal/model"
	"github.com/sells-group/leadpipe/pkg/icypeas"
)

var (
	enrichInput    string
	enrichRun      string
	enrichProvider string
	enrichVerify   bool
	enrichLoose    bool
	enrichOut      string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Resolve contacts for already-qualified leads",
	Long:  "Loads leads from an exported CSV (--input) or a stored run (--run), resolves a work email for each pending lead through the selected provider, and writes the enriched set back out. Leads that already settled keep their status.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("enrich"); err != nil {
			return err
		}
		if (enrichInput == "") == (enrichRun == "") {
			return eris.New("exactly one of --input or --run is required")
		}

		reg := buildResolvers()
		resolver := reg.Get(enrichProvider)
		if resolver == nil {
			return eris.Errorf("unknown enrichment provider %q (configured: %v)", enrichProvider, reg.List())
		}

		var leads []model.EnrichedLead
		if enrichInput != "" {
			var err error
			leads, err = export.ReadFile(enrichInput)
			if err != nil {
				return eris.Wrap(err, "read leads")
			}
		} else {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}
			leads, err = st.GetLeads(ctx, enrichRun)
			if err != nil {
				return eris.Wrapf(err, "load leads for run %s", enrichRun)
			}
			defer func() {
				if err := st.SaveLeads(ctx, enrichRun, leads); err != nil {
					zap.L().Warn("save enriched leads", zap.Error(err))
				}
			}()
		}

		resolved, failed := enrichLeads(ctx, resolver, leads, enrichPolicy(enrichLoose))

		if enrichVerify {
			if cfg.Icypeas.Key == "" {
				return eris.New("icypeas.key is required with --verify")
			}
			client := icypeas.NewClient(cfg.Icypeas.Key, icypeas.WithBaseURL(cfg.Icypeas.BaseURL))
			verifier := enrich.NewVerifier(client, icypeasInterval(), icypeasTimeout(), cfg.Icypeas.ResultBatchSize)
			if err := verifier.VerifyEmails(ctx, leads); err != nil {
				return eris.Wrap(err, "verify emails")
			}
		}

		zap.L().Info("enrich complete",
			zap.String("provider", enrichProvider),
			zap.Int("leads", len(leads)),
			zap.Int("resolved", resolved),
			zap.Int("failed", failed),
		)

		if enrichOut != "" {
			return export.WriteFile(enrichOut, leads)
		}
		return export.WriteCSV(os.Stdout, leads)
	},
}

// enrichLeads resolves contacts for every accepted pending lead, mutating the
// slice in place. Settled leads are left untouched.
func enrichLeads(ctx context.Context, resolver enrich.Resolver, leads []model.EnrichedLead, policy enrich.Policy) (resolved, failed int) {
	for i := range leads {
		lead := &leads[i]
		if !lead.Verdict.Accepted() || lead.Status != model.EnrichmentPending {
			continue
		}
		contacts, err := resolver.Resolve(ctx, *lead)
		if err != nil {
			enrich.MarkFailed(lead, err.Error(), time.Now())
			failed++
			continue
		}
		enrich.Finalize(lead, contacts, policy, time.Now())
		if lead.Status == model.EnrichmentSuccess {
			resolved++
		} else {
			failed++
		}
	}
	return resolved, failed
}

func init() {
	enrichCmd.Flags().StringVar(&enrichInput, "input", "", "CSV of qualified leads to enrich")
	enrichCmd.Flags().StringVar(&enrichRun, "run", "", "run ID to load and update leads from")
	enrichCmd.Flags().StringVar(&enrichProvider, "provider", "clado", "contact provider (clado, apollo, icypeas)")
	enrichCmd.Flags().BoolVar(&enrichVerify, "verify", false, "verify resolved emails through Icypeas")
	enrichCmd.Flags().BoolVar(&enrichLoose, "loose", false, "accept personal emails when no work email is found")
	enrichCmd.Flags().StringVar(&enrichOut, "out", "", "write CSV to a file instead of stdout")
	rootCmd.AddCommand(enrichCmd)
}
