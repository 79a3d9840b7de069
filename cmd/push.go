package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadpipe/internal/model"
	"github.com/sells-group/leadpipe/internal/push"
	"github.com/sells-group/leadpipe/internal/resilience"
	"github.com/sells-group/leadpipe/internal/store"
	"github.com/sells-group/leadpipe/pkg/instantly"
	"github.com/sells-group/leadpipe/pkg/notion"
	"github.com/sells-group/leadpipe/pkg/prosp"
)

var (
	pushRun   string
	pushSink  string
	pushRetry bool
)

// sinkOrder fixes the iteration order for multi-sink pushes.
var sinkOrder = []model.PushSink{model.SinkInstantly, model.SinkProsp, model.SinkSalesforce, model.SinkNotion}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push enriched leads to configured sinks",
	Long:  "Sends a run's successfully enriched leads to every configured sink (Instantly, Prosp, Salesforce, Notion), or to one selected with --sink. Failed pushes land in the dead letter queue; --retry-failed drains it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("push"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		sinks, err := buildSinks()
		if err != nil {
			return err
		}
		if len(sinks) == 0 {
			return eris.New("no sinks configured: set instantly, prosp, salesforce, or notion credentials")
		}
		if pushSink != "" {
			name := model.PushSink(pushSink)
			sink, ok := sinks[name]
			if !ok {
				return eris.Errorf("sink %q is not configured", pushSink)
			}
			sinks = map[model.PushSink]push.Sink{name: sink}
		}

		pusher := push.New(st, cfg.Push)

		if pushRetry {
			summary, err := pusher.RetryFailed(ctx, sinks, resilience.DLQFilter{Sink: model.PushSink(pushSink)})
			if err != nil {
				return eris.Wrap(err, "retry failed pushes")
			}
			zap.L().Info("retry complete",
				zap.Int("attempted", summary.Attempted),
				zap.Int("recovered", summary.Recovered),
				zap.Int("failed", summary.Failed),
				zap.Int("skipped", summary.Skipped),
			)
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		}

		runID, leads, err := loadPushLeads(ctx, st)
		if err != nil {
			return err
		}

		summaries := make([]*push.Summary, 0, len(sinks))
		for _, name := range sinkOrder {
			sink, ok := sinks[name]
			if !ok {
				continue
			}
			summary, err := pusher.Run(ctx, sink, leads)
			if err != nil {
				zap.L().Error("push failed", zap.String("sink", string(name)), zap.Error(err))
				continue
			}
			summaries = append(summaries, summary)
		}

		zap.L().Info("push complete",
			zap.String("run_id", runID),
			zap.Int("leads", len(leads)),
			zap.Int("sinks", len(summaries)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	},
}

// loadPushLeads resolves the run to push, defaulting to the latest complete
// run when --run is omitted.
func loadPushLeads(ctx context.Context, st store.Store) (string, []model.EnrichedLead, error) {
	runID := pushRun
	if runID == "" {
		runs, err := st.ListRuns(ctx, store.RunFilter{Status: model.RunStatusComplete, Limit: 1})
		if err != nil {
			return "", nil, eris.Wrap(err, "list runs")
		}
		if len(runs) == 0 {
			return "", nil, eris.New("no complete runs found")
		}
		runID = runs[0].ID
	}
	leads, err := st.GetLeads(ctx, runID)
	if err != nil {
		return "", nil, eris.Wrapf(err, "load leads for run %s", runID)
	}
	return runID, leads, nil
}

// buildSinks returns every sink with credentials present in the config.
func buildSinks() (map[model.PushSink]push.Sink, error) {
	sinks := make(map[model.PushSink]push.Sink)
	if cfg.Instantly.Key != "" {
		client := instantly.NewClient(cfg.Instantly.Key, instantly.WithBaseURL(cfg.Instantly.BaseURL))
		sinks[model.SinkInstantly] = push.NewInstantlySink(client, cfg.Instantly, cfg.Push)
	}
	if cfg.Prosp.Key != "" {
		client := prosp.NewClient(cfg.Prosp.Key, prosp.WithBaseURL(cfg.Prosp.BaseURL))
		sinks[model.SinkProsp] = push.NewProspSink(client, cfg.Prosp, cfg.Push, cfg.Batch.Parallel)
	}
	sf, err := initSalesforce()
	if err != nil {
		return nil, err
	}
	if sf != nil {
		sinks[model.SinkSalesforce] = push.NewSalesforceSink(sf, cfg.Push)
	}
	if cfg.Notion.Token != "" && cfg.Notion.LeadDB != "" {
		client := notion.NewClient(cfg.Notion.Token, notion.WithRateLimit(3))
		sinks[model.SinkNotion] = push.NewNotionSink(client, cfg.Notion, cfg.Push)
	}
	return sinks, nil
}

func init() {
	pushCmd.Flags().StringVar(&pushRun, "run", "", "run ID to push (default: latest complete run)")
	pushCmd.Flags().StringVar(&pushSink, "sink", "", "push to a single sink (instantly, prosp, salesforce, notion)")
	pushCmd.Flags().BoolVar(&pushRetry, "retry-failed", false, "retry leads from the dead letter queue")
	rootCmd.AddCommand(pushCmd)
}
