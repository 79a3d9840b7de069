// Package pipeline drives candidates through the fetch, filter and enrich
// stages as one resumable batch run. Results land in index-addressed slots so
// input order survives parallel processing, and progress is checkpointed
// after every settled group.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadpipe/internal/checkpoint"
	"github.com/sells-group/leadpipe/internal/config"
	"github.com/sells-group/leadpipe/internal/enrich"
	"github.com/sells-group/leadpipe/internal/ingest"
	"github.com/sells-group/leadpipe/internal/model"
	"github.com/sells-group/leadpipe/internal/prefilter"
	"github.com/sells-group/leadpipe/internal/qualify"
	"github.com/sells-group/leadpipe/internal/store"
)

// Source yields the candidates for one run. Fetch must be repeatable: a
// resumed run re-fetches and validates the result against the checkpoint's
// input hash before trusting the saved cursor.
type Source interface {
	Name() model.Source
	Fetch(ctx context.Context) (*ingest.Result, error)
}

// Orchestrator walks a run through idle → fetching → filtering → enriching →
// complete. Qualification and enrichment share one slot per pre-filtered
// candidate, so a single cursor describes progress in both stages: rejected
// leads keep their slot and ride through enrichment untouched.
type Orchestrator struct {
	cfg         config.BatchConfig
	store       store.Store
	checkpoints checkpoint.Store
	filter      *prefilter.Filter
	qualifier   *qualify.Qualifier
	resolvers   *enrich.Registry
	provider    string
	policy      enrich.Policy
}

// New builds an Orchestrator. Zero batch sizes fall back to the documented
// defaults; a zero group delay means no pause between groups.
func New(
	cfg config.BatchConfig,
	st store.Store,
	cps checkpoint.Store,
	filter *prefilter.Filter,
	qualifier *qualify.Qualifier,
	resolvers *enrich.Registry,
	provider string,
	policy enrich.Policy,
) *Orchestrator {
	if cfg.QualifySize <= 0 {
		cfg.QualifySize = 20
	}
	if cfg.EnrichSize <= 0 {
		cfg.EnrichSize = 5
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = 3
	}
	if cfg.CheckpointMaxAgeHrs <= 0 {
		cfg.CheckpointMaxAgeHrs = 24
	}
	return &Orchestrator{
		cfg:         cfg,
		store:       st,
		checkpoints: cps,
		filter:      filter,
		qualifier:   qualifier,
		resolvers:   resolvers,
		provider:    provider,
		policy:      policy,
	}
}

// Run executes a fresh pipeline run over the source's candidates.
func (o *Orchestrator) Run(ctx context.Context, src Source) (*model.Run, error) {
	run, err := o.store.CreateRun(ctx, src.Name(), o.provider)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	return o.execute(ctx, run, src, nil)
}

// Resume continues an interrupted run from its checkpoint. A checkpoint that
// cannot be trusted — too old, cursor beyond the input, or saved against
// different input — is discarded silently and the run starts over under the
// same run id.
func (o *Orchestrator) Resume(ctx context.Context, runID string, src Source) (*model.Run, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load run %s", runID)
	}
	if run.Status == model.RunStatusComplete {
		return nil, eris.Errorf("pipeline: run %s already complete", runID)
	}

	cp, err := o.checkpoints.LoadCheckpoint(ctx, runID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load checkpoint")
	}

	log := zap.L().With(zap.String("run_id", runID))
	maxAge := time.Duration(o.cfg.CheckpointMaxAgeHrs) * time.Hour
	if checkpoint.IsStale(cp, maxAge, time.Now()) {
		log.Info("pipeline: checkpoint too old, starting over",
			zap.Time("saved_at", cp.SavedAt),
			zap.Duration("max_age", maxAge),
		)
		cp = nil
	}
	if cp != nil && cp.Stage != model.StageFiltering && cp.Stage != model.StageEnriching {
		log.Info("pipeline: checkpoint at unexpected stage, starting over",
			zap.String("stage", string(cp.Stage)))
		cp = nil
	}

	if err := o.store.UpdateRunStatus(ctx, runID, model.RunStatusRunning); err != nil {
		log.Warn("pipeline: status update failed", zap.Error(err))
	}
	run.Status = model.RunStatusRunning
	run.Error = ""
	run.FinishedAt = nil

	return o.execute(ctx, run, src, cp)
}

func (o *Orchestrator) execute(ctx context.Context, run *model.Run, src Source, cp *model.RunCheckpoint) (*model.Run, error) {
	log := zap.L().With(
		zap.String("run_id", run.ID),
		zap.String("source", string(run.Source)),
	)
	log.Info("pipeline: run starting")

	// A checkpoint in the enriching stage skips fetch and qualification
	// entirely: the leads saved at the stage transition are the input.
	if cp != nil && cp.Stage == model.StageEnriching {
		if leads, cursor, ok := o.restoreEnriching(ctx, run, cp, log); ok {
			counters := run.Counters
			counters.Qualified, counters.Rejected = tallyVerdicts(leads)
			counters.Enriched, counters.EnrichFailed = tallyEnrichment(leads[:cursor])
			log.Info("pipeline: resuming enrichment", zap.Int("cursor", cursor))
			return o.enrichAndFinish(ctx, run, leads, cursor, counters, log)
		}
		cp = nil
	}

	// Fetching.
	res, err := src.Fetch(ctx)
	if err != nil {
		return o.fail(ctx, run, model.StageFetching, eris.Wrap(err, "pipeline: fetch"))
	}
	var counters model.RunCounters
	counters.Fetched = len(res.Candidates)
	counters.Dropped = res.Dropped()
	o.recordStage(ctx, run.ID, model.StageFetching, counters.Fetched+counters.Dropped, counters.Fetched, nil)
	log.Info("pipeline: fetch complete",
		zap.Int("candidates", counters.Fetched),
		zap.Int("dropped", counters.Dropped),
	)

	// Filtering: the deterministic pre-filter runs in full on every pass (it
	// is free), then the qualifier fills verdict slots from the cursor on.
	batch := o.filter.EvaluateBatch(res.Candidates)
	counters.PreFilterPassed = batch.Stats.Passed
	counters.PreFilterFailed = batch.Stats.Rejected

	leads := make([]model.EnrichedLead, len(batch.Qualified))
	for i, c := range batch.Qualified {
		leads[i] = model.EnrichedLead{Candidate: c, Status: model.EnrichmentPending}
	}
	inputHash := checkpoint.HashInput(leads)

	cursor := 0
	if cp != nil && cp.Stage == model.StageFiltering {
		cursor = resumeCursor(cp, leads, inputHash, log)
		counters.Qualified, counters.Rejected = tallyVerdicts(leads[:cursor])
	}

	if err := o.qualifyStage(ctx, run, leads, cursor, &counters, inputHash); err != nil {
		return o.fail(ctx, run, model.StageFiltering, err)
	}
	o.recordStage(ctx, run.ID, model.StageFiltering, counters.Fetched, counters.Qualified, nil)
	log.Info("pipeline: qualification complete",
		zap.Int("qualified", counters.Qualified),
		zap.Int("rejected", counters.Rejected),
	)

	// The store carries the qualified list across the stage transition: a
	// run resumed in the enriching stage reloads it instead of re-qualifying.
	if err := o.store.SaveLeads(ctx, run.ID, leads); err != nil {
		return o.fail(ctx, run, model.StageFiltering, eris.Wrap(err, "pipeline: save leads"))
	}
	o.checkpointGroup(ctx, run.ID, model.StageEnriching, 0, nil, inputHash, counters)

	return o.enrichAndFinish(ctx, run, leads, 0, counters, log)
}

// restoreEnriching reloads the qualified leads for a run whose qualification
// already finished. ok is false when the checkpoint cannot be trusted, in
// which case the caller starts the run over from fetching.
func (o *Orchestrator) restoreEnriching(ctx context.Context, run *model.Run, cp *model.RunCheckpoint, log *zap.Logger) ([]model.EnrichedLead, int, bool) {
	stored, err := o.store.GetLeads(ctx, run.ID)
	if err != nil {
		log.Warn("pipeline: saved leads unavailable, starting over", zap.Error(err))
		return nil, 0, false
	}
	if len(stored) == 0 {
		log.Info("pipeline: no saved leads for checkpoint, starting over")
		return nil, 0, false
	}
	if cp.Cursor > len(stored) {
		log.Info("pipeline: checkpoint cursor beyond input, starting over",
			zap.Int("cursor", cp.Cursor),
			zap.Int("input", len(stored)),
		)
		return nil, 0, false
	}
	if cp.InputHash != checkpoint.HashInput(stored) {
		log.Info("pipeline: checkpoint input changed, starting over")
		return nil, 0, false
	}
	copy(stored, cp.Leads)
	return stored, cp.Cursor, true
}

// resumeCursor validates a filtering-stage checkpoint against the freshly
// pre-filtered input. It returns the cursor to continue from, restoring the
// settled verdicts, or 0 when the checkpoint must be discarded.
func resumeCursor(cp *model.RunCheckpoint, leads []model.EnrichedLead, inputHash string, log *zap.Logger) int {
	if cp.Cursor > len(leads) {
		log.Info("pipeline: checkpoint cursor beyond input, starting over",
			zap.Int("cursor", cp.Cursor),
			zap.Int("input", len(leads)),
		)
		return 0
	}
	if cp.InputHash != inputHash {
		log.Info("pipeline: checkpoint input changed, starting over")
		return 0
	}
	copy(leads, cp.Leads)
	log.Info("pipeline: resuming qualification", zap.Int("cursor", cp.Cursor))
	return cp.Cursor
}

// qualifyStage fills verdict slots [cursor, len(leads)) in parallel groups.
// The qualifier encodes its own failures as REJECT/LOW verdicts, so the only
// group-fatal condition here is context cancellation.
func (o *Orchestrator) qualifyStage(ctx context.Context, run *model.Run, leads []model.EnrichedLead, cursor int, counters *model.RunCounters, inputHash string) error {
	groupWidth := o.cfg.Parallel * o.cfg.QualifySize

	for start := cursor; start < len(leads); {
		end := start + groupWidth
		if end > len(leads) {
			end = len(leads)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.cfg.Parallel)
		for bs := start; bs < end; bs += o.cfg.QualifySize {
			be := bs + o.cfg.QualifySize
			if be > end {
				be = end
			}
			g.Go(func() error {
				for i := bs; i < be; i++ {
					if err := gctx.Err(); err != nil {
						return err
					}
					leads[i].Verdict = o.qualifier.Qualify(gctx, leads[i].Candidate)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return eris.Wrap(err, "pipeline: qualify group")
		}

		for i := start; i < end; i++ {
			if leads[i].Verdict.Accepted() {
				counters.Qualified++
			} else {
				counters.Rejected++
			}
		}
		o.checkpointGroup(ctx, run.ID, model.StageFiltering, end, leads[:end], inputHash, *counters)

		start = end
		if start < len(leads) {
			if err := sleepCtx(ctx, o.groupDelay()); err != nil {
				return err
			}
		}
	}
	return nil
}

// enrichStage resolves contacts for accepted leads in slots
// [cursor, len(leads)), in parallel groups of smaller batches than
// qualification because contact providers rate-limit harder. Per-lead
// resolver failures mark the lead FAILED and continue; rejected leads are
// skipped but still advance the cursor.
func (o *Orchestrator) enrichStage(ctx context.Context, run *model.Run, leads []model.EnrichedLead, cursor int, counters *model.RunCounters, inputHash string) error {
	resolver := o.resolvers.Get(o.provider)
	if resolver == nil {
		return eris.Errorf("pipeline: unknown enrichment provider %q", o.provider)
	}

	groupWidth := o.cfg.Parallel * o.cfg.EnrichSize

	for start := cursor; start < len(leads); {
		end := start + groupWidth
		if end > len(leads) {
			end = len(leads)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.cfg.Parallel)
		for bs := start; bs < end; bs += o.cfg.EnrichSize {
			be := bs + o.cfg.EnrichSize
			if be > end {
				be = end
			}
			g.Go(func() error {
				for i := bs; i < be; i++ {
					if err := gctx.Err(); err != nil {
						return err
					}
					if !leads[i].Verdict.Accepted() {
						continue
					}
					contacts, err := resolver.Resolve(gctx, leads[i])
					now := time.Now()
					if err != nil {
						enrich.MarkFailed(&leads[i], err.Error(), now)
						continue
					}
					enrich.Finalize(&leads[i], contacts, o.policy, now)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return eris.Wrap(err, "pipeline: enrich group")
		}

		for i := start; i < end; i++ {
			if !leads[i].Verdict.Accepted() {
				continue
			}
			if leads[i].Status == model.EnrichmentSuccess {
				counters.Enriched++
			} else {
				counters.EnrichFailed++
			}
		}
		if err := o.store.SaveLeads(ctx, run.ID, leads[start:end]); err != nil {
			return eris.Wrap(err, "pipeline: save enriched leads")
		}
		o.checkpointGroup(ctx, run.ID, model.StageEnriching, end, leads[:end], inputHash, *counters)

		start = end
		if start < len(leads) {
			if err := sleepCtx(ctx, o.groupDelay()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Orchestrator) enrichAndFinish(ctx context.Context, run *model.Run, leads []model.EnrichedLead, cursor int, counters model.RunCounters, log *zap.Logger) (*model.Run, error) {
	inputHash := checkpoint.HashInput(leads)

	if err := o.enrichStage(ctx, run, leads, cursor, &counters, inputHash); err != nil {
		return o.fail(ctx, run, model.StageEnriching, err)
	}
	o.recordStage(ctx, run.ID, model.StageEnriching, counters.Qualified, counters.Enriched, nil)

	if err := o.store.UpdateRunCounters(ctx, run.ID, counters); err != nil {
		log.Warn("pipeline: counter update failed", zap.Error(err))
	}
	if err := o.store.FinishRun(ctx, run.ID, model.RunStatusComplete, ""); err != nil {
		return nil, eris.Wrap(err, "pipeline: finish run")
	}
	if err := o.checkpoints.ClearCheckpoint(ctx, run.ID); err != nil {
		log.Warn("pipeline: checkpoint clear failed", zap.Error(err))
	}
	o.recordStage(ctx, run.ID, model.StageComplete, len(leads), len(leads), nil)

	run.Status = model.RunStatusComplete
	run.Counters = counters
	now := time.Now()
	run.FinishedAt = &now

	log.Info("pipeline: run complete",
		zap.Int("fetched", counters.Fetched),
		zap.Int("prefilter_passed", counters.PreFilterPassed),
		zap.Int("qualified", counters.Qualified),
		zap.Int("enriched", counters.Enriched),
		zap.Int("enrich_failed", counters.EnrichFailed),
	)
	return run, nil
}

// fail records a batch-fatal error and closes the run out as failed. The
// checkpoint from already-settled groups stays behind so the run can resume.
func (o *Orchestrator) fail(ctx context.Context, run *model.Run, stage model.Stage, err error) (*model.Run, error) {
	o.recordStage(ctx, run.ID, stage, 0, 0, err)
	if finishErr := o.store.FinishRun(ctx, run.ID, model.RunStatusFailed, err.Error()); finishErr != nil {
		zap.L().Warn("pipeline: finish run failed",
			zap.String("run_id", run.ID), zap.Error(finishErr))
	}
	run.Status = model.RunStatusFailed
	run.Error = err.Error()
	now := time.Now()
	run.FinishedAt = &now
	return run, err
}

// checkpointGroup persists progress after a group settles. The checkpoint has
// a single writer, and a failed save is logged rather than fatal: losing a
// checkpoint costs resumability, not correctness.
func (o *Orchestrator) checkpointGroup(ctx context.Context, runID string, stage model.Stage, cursor int, settled []model.EnrichedLead, inputHash string, counters model.RunCounters) {
	cp := &model.RunCheckpoint{
		RunID:     runID,
		Stage:     stage,
		Cursor:    cursor,
		Leads:     append([]model.EnrichedLead(nil), settled...),
		InputHash: inputHash,
		SavedAt:   time.Now(),
	}
	if err := o.checkpoints.SaveCheckpoint(ctx, cp); err != nil {
		zap.L().Warn("pipeline: checkpoint save failed",
			zap.String("run_id", runID), zap.Error(err))
	}
	if err := o.store.UpdateRunCounters(ctx, runID, counters); err != nil {
		zap.L().Warn("pipeline: counter update failed",
			zap.String("run_id", runID), zap.Error(err))
	}
}

func (o *Orchestrator) recordStage(ctx context.Context, runID string, stage model.Stage, in, out int, stageErr error) {
	rec := model.StageRecord{
		RunID:    runID,
		Stage:    stage,
		Status:   model.RunStatusComplete,
		ItemsIn:  in,
		ItemsOut: out,
		At:       time.Now(),
	}
	if stageErr != nil {
		rec.Status = model.RunStatusFailed
		rec.Error = stageErr.Error()
	}
	if err := o.store.RecordStage(ctx, rec); err != nil {
		zap.L().Warn("pipeline: stage record failed",
			zap.String("run_id", runID), zap.Error(err))
	}
}

func (o *Orchestrator) groupDelay() time.Duration {
	return time.Duration(o.cfg.GroupDelayMs) * time.Millisecond
}

// tallyVerdicts counts accepted and rejected verdict slots.
func tallyVerdicts(leads []model.EnrichedLead) (qualified, rejected int) {
	for _, l := range leads {
		if l.Verdict.Accepted() {
			qualified++
		} else {
			rejected++
		}
	}
	return qualified, rejected
}

// tallyEnrichment counts enrichment outcomes over the settled prefix,
// skipping rejected leads the same way the enriching stage does.
func tallyEnrichment(leads []model.EnrichedLead) (enriched, failed int) {
	for _, l := range leads {
		if !l.Verdict.Accepted() {
			continue
		}
		if l.Status == model.EnrichmentSuccess {
			enriched++
		} else {
			failed++
		}
	}
	return enriched, failed
}

// sleepCtx waits for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
