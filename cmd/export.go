package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadpipe/internal/export"
	"github.com/sells-group/leadpipe/internal/store"
)

var (
	exportRun string
	exportOut string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a run's leads as CSV",
	Long:  "Writes the enriched leads of a run as CSV, defaulting to the most recently started run when --run is omitted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("export"); err != nil {
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

		runID := exportRun
		if runID == "" {
			runs, err := st.ListRuns(ctx, store.RunFilter{Limit: 1})
			if err != nil {
				return eris.Wrap(err, "list runs")
			}
			if len(runs) == 0 {
				return eris.New("no runs found")
			}
			runID = runs[0].ID
		}

		leads, err := st.GetLeads(ctx, runID)
		if err != nil {
			return eris.Wrapf(err, "load leads for run %s", runID)
		}

		zap.L().Info("export complete",
			zap.String("run_id", runID),
			zap.Int("leads", len(leads)),
		)

		if exportOut != "" {
			return export.WriteFile(exportOut, leads)
		}
		return export.WriteCSV(os.Stdout, leads)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportRun, "run", "", "run ID to export (default: latest run)")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "write CSV to a file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}
