package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadpipe/internal/checkpoint"
	"github.com/sells-group/leadpipe/internal/config"
	"github.com/sells-group/leadpipe/internal/enrich"
	"github.com/sells-group/leadpipe/internal/ingest"
	"github.com/sells-group/leadpipe/internal/model"
	"github.com/sells-group/leadpipe/internal/prefilter"
	"github.com/sells-group/leadpipe/internal/qualify"
	"github.com/sells-group/leadpipe/internal/resilience"
	"github.com/sells-group/leadpipe/internal/store"
	"github.com/sells-group/leadpipe/pkg/apify"
	"github.com/sells-group/leadpipe/pkg/linkedin"
)

// --- In-memory store ---

// memStore is a functional in-memory store.Store. It doubles as the
// checkpoint store, the same way the SQL stores do in production, and keeps
// every checkpoint ever saved so tests can assert on cadence and invariants.
type memStore struct {
	mu     sync.Mutex
	seq    int
	runs   map[string]*model.Run
	leads  map[string][]model.EnrichedLead
	stages []model.StageRecord
	cps    map[string]*model.RunCheckpoint

	cpSaves []model.RunCheckpoint

	saveLeadsErr error
	getLeadsErr  error
}

func newMemStore() *memStore {
	return &memStore{
		runs:  map[string]*model.Run{},
		leads: map[string][]model.EnrichedLead{},
		cps:   map[string]*model.RunCheckpoint{},
	}
}

func (m *memStore) CreateRun(_ context.Context, source model.Source, provider string) (*model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	run := &model.Run{
		ID:        fmt.Sprintf("run-%d", m.seq),
		Source:    source,
		Provider:  provider,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now(),
	}
	m.runs[run.ID] = run
	cp := *run
	return &cp, nil
}

func (m *memStore) UpdateRunStatus(_ context.Context, runID string, status model.RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return eris.Errorf("run %s not found", runID)
	}
	run.Status = status
	return nil
}

func (m *memStore) UpdateRunCounters(_ context.Context, runID string, counters model.RunCounters) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return eris.Errorf("run %s not found", runID)
	}
	run.Counters = counters
	return nil
}

func (m *memStore) FinishRun(_ context.Context, runID string, status model.RunStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return eris.Errorf("run %s not found", runID)
	}
	now := time.Now()
	run.Status = status
	run.Error = errMsg
	run.FinishedAt = &now
	return nil
}

func (m *memStore) GetRun(_ context.Context, runID string) (*model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, eris.Errorf("run %s not found", runID)
	}
	cp := *run
	return &cp, nil
}

func (m *memStore) ListRuns(_ context.Context, _ store.RunFilter) ([]model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Run
	for _, r := range m.runs {
		out = append(out, *r)
	}
	return out, nil
}

func (m *memStore) RecordStage(_ context.Context, rec model.StageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, rec)
	return nil
}

func (m *memStore) ListStages(_ context.Context, runID string) ([]model.StageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.StageRecord
	for _, rec := range m.stages {
		if rec.RunID == runID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memStore) SaveLeads(_ context.Context, runID string, leads []model.EnrichedLead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveLeadsErr != nil {
		return m.saveLeadsErr
	}
	rows := m.leads[runID]
	for _, l := range leads {
		replaced := false
		for i := range rows {
			if rows[i].Candidate.ID == l.Candidate.ID {
				rows[i] = l
				replaced = true
				break
			}
		}
		if !replaced {
			rows = append(rows, l)
		}
	}
	m.leads[runID] = rows
	return nil
}

func (m *memStore) GetLeads(_ context.Context, runID string) ([]model.EnrichedLead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getLeadsErr != nil {
		return nil, m.getLeadsErr
	}
	return append([]model.EnrichedLead(nil), m.leads[runID]...), nil
}

func (m *memStore) SaveCheckpoint(_ context.Context, cp *model.RunCheckpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := *cp
	snap.Leads = append([]model.EnrichedLead(nil), cp.Leads...)
	m.cps[cp.RunID] = &snap
	m.cpSaves = append(m.cpSaves, snap)
	return nil
}

func (m *memStore) LoadCheckpoint(_ context.Context, runID string) (*model.RunCheckpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.cps[runID]
	if !ok {
		return nil, nil
	}
	snap := *cp
	snap.Leads = append([]model.EnrichedLead(nil), cp.Leads...)
	return &snap, nil
}

func (m *memStore) ClearCheckpoint(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cps, runID)
	return nil
}

func (m *memStore) RecordPush(_ context.Context, _ model.PushRecord) error { return nil }

func (m *memStore) ListPushed(_ context.Context, _ model.PushSink) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func (m *memStore) EnqueueDLQ(_ context.Context, _ resilience.DLQEntry) error { return nil }

func (m *memStore) DequeueDLQ(_ context.Context, _ resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	return nil, nil
}

func (m *memStore) IncrementDLQRetry(_ context.Context, _ string, _ time.Time, _ string) error {
	return nil
}

func (m *memStore) RemoveDLQ(_ context.Context, _ string) error { return nil }

func (m *memStore) CountDLQ(_ context.Context) (int, error) { return 0, nil }

func (m *memStore) Migrate(_ context.Context) error { return nil }

func (m *memStore) Close() error { return nil }

// checkpointCursors returns the cursor of every checkpoint saved for a
// stage, in save order.
func (m *memStore) checkpointCursors(stage model.Stage) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int
	for _, cp := range m.cpSaves {
		if cp.Stage == stage {
			out = append(out, cp.Cursor)
		}
	}
	return out
}

// --- Completer fake ---

// fnCompleter stands in for the LLM transport behind the qualifier.
type fnCompleter struct {
	mu    sync.Mutex
	calls []string
	fn    func(system, user string) (string, error)
}

func (c *fnCompleter) Complete(_ context.Context, system, user string) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, user)
	c.mu.Unlock()
	return c.fn(system, user)
}

func (c *fnCompleter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

const acceptJSON = `{"decision":"ACCEPT","confidence":"HIGH","reasoning":"fits the profile"}`
const rejectJSON = `{"decision":"REJECT","confidence":"MEDIUM","reasoning":"outside the profile"}`

// acceptingCompleter accepts every candidate except those whose profile
// carries a "[reject]" marker.
func acceptingCompleter() *fnCompleter {
	return &fnCompleter{fn: func(_, user string) (string, error) {
		if strings.Contains(user, "[reject]") {
			return rejectJSON, nil
		}
		return acceptJSON, nil
	}}
}

// --- Resolver fake ---

// fnResolver records which leads it was asked to resolve. The default
// behavior returns one work email per lead.
type fnResolver struct {
	name  string
	mu    sync.Mutex
	calls []string
	fn    func(lead model.EnrichedLead) ([]model.ContactCandidate, error)
}

func (r *fnResolver) Name() string { return r.name }

func (r *fnResolver) Resolve(_ context.Context, lead model.EnrichedLead) ([]model.ContactCandidate, error) {
	r.mu.Lock()
	r.calls = append(r.calls, lead.Candidate.ID)
	r.mu.Unlock()
	if r.fn != nil {
		return r.fn(lead)
	}
	return []model.ContactCandidate{
		{Type: model.ContactEmail, Value: "lead@acme.io", Category: model.CategoryWork, Rating: 90},
	}, nil
}

func (r *fnResolver) resolved() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// --- Source fake ---

type fakeSource struct {
	name    model.Source
	result  *ingest.Result
	err     error
	fetches int
}

func (s *fakeSource) Name() model.Source { return s.name }

func (s *fakeSource) Fetch(context.Context) (*ingest.Result, error) {
	s.fetches++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func sourceOf(cands ...model.Candidate) *fakeSource {
	return &fakeSource{
		name:   model.SourceTwitterCSV,
		result: &ingest.Result{Candidates: cands, Drops: map[string]int{}},
	}
}

// --- LinkedIn Client Mock ---

type fakeLinkedIn struct {
	mu    sync.Mutex
	pages map[int]*linkedin.ReactionsPage
	errOn int
	calls []int
}

func (f *fakeLinkedIn) Reactions(_ context.Context, _ string, page int) (*linkedin.ReactionsPage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, page)
	f.mu.Unlock()
	if f.errOn != 0 && page == f.errOn {
		return nil, eris.Errorf("scrape failed on page %d", page)
	}
	pg, ok := f.pages[page]
	if !ok {
		return nil, eris.Errorf("no page %d", page)
	}
	return pg, nil
}

// --- Apify Client Mock ---

type fakeApify struct {
	run     *apify.Run
	runErr  error
	items   []json.RawMessage
	itemErr error

	actorID string
	dataset string
}

func (f *fakeApify) LatestSucceededRun(_ context.Context, actorID string) (*apify.Run, error) {
	f.actorID = actorID
	if f.runErr != nil {
		return nil, f.runErr
	}
	return f.run, nil
}

func (f *fakeApify) DatasetItems(_ context.Context, _ string, offset, limit int) ([]json.RawMessage, error) {
	if offset >= len(f.items) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.items) {
		end = len(f.items)
	}
	return f.items[offset:end], nil
}

func (f *fakeApify) AllDatasetItems(_ context.Context, datasetID string) ([]json.RawMessage, error) {
	f.dataset = datasetID
	if f.itemErr != nil {
		return nil, f.itemErr
	}
	return f.items, nil
}

// --- Shared fixtures ---

// testCriteria admits any candidate located in Austin that has a follower
// count and a "founder" keyword; London is the rejection trigger.
func testCriteria() *config.Criteria {
	return &config.Criteria{
		Locations: config.LocationCriteria{Allow: []string{"austin"}, Deny: []string{"london"}},
		Followers: config.RangeCriteria{Min: 1, Max: 1000000},
		Keywords:  []string{"founder"},
	}
}

func testBatchConfig() config.BatchConfig {
	return config.BatchConfig{
		QualifySize:         4,
		EnrichSize:          2,
		Parallel:            2,
		GroupDelayMs:        0,
		CheckpointMaxAgeHrs: 24,
	}
}

func candidateN(i int) model.Candidate {
	return model.Candidate{
		ID:          fmt.Sprintf("cand-%03d", i),
		Source:      model.SourceTwitterCSV,
		Name:        fmt.Sprintf("Lead %d", i),
		Description: "founder of acme",
		Location:    "Austin, TX",
		Metric:      "500",
	}
}

func candidates(n int) []model.Candidate {
	out := make([]model.Candidate, n)
	for i := range out {
		out[i] = candidateN(i)
	}
	return out
}

// pendingLeads seeds the slot list the way the filtering stage does.
func pendingLeads(cands []model.Candidate) []model.EnrichedLead {
	leads := make([]model.EnrichedLead, len(cands))
	for i, c := range cands {
		leads[i] = model.EnrichedLead{Candidate: c, Status: model.EnrichmentPending}
	}
	return leads
}

func newTestOrchestrator(st *memStore, completer qualify.Completer, resolver enrich.Resolver) *Orchestrator {
	reg := enrich.NewRegistry()
	if resolver != nil {
		reg.Register(resolver)
	}
	return New(
		testBatchConfig(),
		st,
		st,
		prefilter.New(testCriteria()),
		qualify.New(completer, testCriteria()),
		reg,
		"fake",
		enrich.PolicyStrict,
	)
}

// --- Ensure interface compliance ---
var (
	_ store.Store       = (*memStore)(nil)
	_ checkpoint.Store  = (*memStore)(nil)
	_ qualify.Completer = (*fnCompleter)(nil)
	_ enrich.Resolver   = (*fnResolver)(nil)
	_ Source            = (*fakeSource)(nil)
	_ linkedin.Client   = (*fakeLinkedIn)(nil)
	_ apify.Client      = (*fakeApify)(nil)
)
