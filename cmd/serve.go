package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadpipe/internal/enrich"
	"github.com/sells-group/leadpipe/internal/export"
	"github.com/sells-group/leadpipe/internal/model"
	"github.com/sells-group/leadpipe/internal/monitoring"
	"github.com/sells-group/leadpipe/internal/prefilter"
	"github.com/sells-group/leadpipe/internal/qualify"
	"github.com/sells-group/leadpipe/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  "Exposes the pipeline stages over HTTP: pre-filter and qualify candidate payloads, enrich lead payloads, and read run history and CSV exports. Starts the alert checker when a webhook is configured.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initPipelineEnv(ctx, "clado", false)
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Alert.WebhookURL != "" {
			checker := monitoring.NewChecker(monitoring.NewCollector(env.Store), monitoring.NewAlerter(cfg.Alert), cfg.Alert)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildRouter(env.Store, env.Filter, env.Qualifier, env.Resolvers),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background())
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// runReader is the store subset the read endpoints use.
type runReader interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListStages(ctx context.Context, runID string) ([]model.StageRecord, error)
	GetLeads(ctx context.Context, runID string) ([]model.EnrichedLead, error)
}

// buildRouter assembles the HTTP API.
func buildRouter(st runReader, filter *prefilter.Filter, qualifier *qualify.Qualifier, resolvers *enrich.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/prefilter", handlePrefilter(filter))
		r.Post("/qualify", handleQualify(filter, qualifier))
		r.Post("/enrich", handleEnrich(resolvers))
		r.Get("/runs", handleListRuns(st))
		r.Get("/runs/{id}", handleGetRun(st))
		r.Get("/export/{id}.csv", handleExportCSV(st))
	})

	return r
}

func handlePrefilter(filter *prefilter.Filter) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var cands []model.Candidate
		if err := json.NewDecoder(req.Body).Decode(&cands); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		writeJSON(w, http.StatusOK, filter.EvaluateBatch(cands))
	}
}

func handleQualify(filter *prefilter.Filter, qualifier *qualify.Qualifier) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var cands []model.Candidate
		if err := json.NewDecoder(req.Body).Decode(&cands); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		batch := filter.EvaluateBatch(cands)
		verdicts := make([]qualifiedCandidate, 0, len(batch.Qualified))
		for _, c := range batch.Qualified {
			verdicts = append(verdicts, qualifiedCandidate{
				Candidate: c,
				Verdict:   qualifier.Qualify(req.Context(), c),
			})
		}
		writeJSON(w, http.StatusOK, verdicts)
	}
}

func handleEnrich(resolvers *enrich.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Provider string               `json:"provider"`
			Loose    bool                 `json:"loose"`
			Leads    []model.EnrichedLead `json:"leads"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		resolver := resolvers.Get(body.Provider)
		if resolver == nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown enrichment provider %q", body.Provider))
			return
		}
		enrichLeads(req.Context(), resolver, body.Leads, enrichPolicy(body.Loose))
		writeJSON(w, http.StatusOK, body.Leads)
	}
}

func handleListRuns(st runReader) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		limit := 50
		if s := req.URL.Query().Get("limit"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				limit = n
			}
		}
		filter := store.RunFilter{
			Status: model.RunStatus(req.URL.Query().Get("status")),
			Source: model.Source(req.URL.Query().Get("source")),
			Limit:  limit,
		}
		runs, err := st.ListRuns(req.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func handleGetRun(st runReader) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		run, err := st.GetRun(req.Context(), id)
		if err != nil {
			writeError(w, runErrorStatus(err), err.Error())
			return
		}
		stages, err := st.ListStages(req.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Run    *model.Run          `json:"run"`
			Stages []model.StageRecord `json:"stages"`
		}{Run: run, Stages: stages})
	}
}

func handleExportCSV(st runReader) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		leads, err := st.GetLeads(req.Context(), id)
		if err != nil {
			writeError(w, runErrorStatus(err), err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", id))
		if err := export.WriteCSV(w, leads); err != nil {
			zap.L().Error("export csv", zap.String("run_id", id), zap.Error(err))
		}
	}
}

// runErrorStatus maps store lookup errors to HTTP status codes.
func runErrorStatus(err error) int {
	if strings.Contains(err.Error(), "not found") {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
