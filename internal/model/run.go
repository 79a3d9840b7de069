package model

import "time"

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Stage identifies where in the pipeline a run currently is. A new run starts
// from StageIdle; StageComplete triggers checkpoint deletion.
type Stage string

const (
	StageIdle      Stage = "idle"
	StageFetching  Stage = "fetching"
	StageFiltering Stage = "filtering"
	StageEnriching Stage = "enriching"
	StageComplete  Stage = "complete"
)

// RunCounters accumulate across completed batches. They are only ever added
// to, so at any point they equal the sum over settled groups.
type RunCounters struct {
	Fetched         int `json:"fetched"`
	Dropped         int `json:"dropped"`
	PreFilterPassed int `json:"prefilter_passed"`
	PreFilterFailed int `json:"prefilter_failed"`
	Qualified       int `json:"qualified"`
	Rejected        int `json:"rejected"`
	Enriched        int `json:"enriched"`
	EnrichFailed    int `json:"enrich_failed"`
}

// Run is the persisted record of one pipeline invocation.
type Run struct {
	ID         string      `json:"id"`
	Source     Source      `json:"source"`
	Provider   string      `json:"provider,omitempty"`
	Status     RunStatus   `json:"status"`
	Counters   RunCounters `json:"counters"`
	Error      string      `json:"error,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// StageRecord logs one stage transition of a run for after-the-fact
// debugging of where candidates were lost.
type StageRecord struct {
	RunID    string    `json:"run_id"`
	Stage    Stage     `json:"stage"`
	Status   RunStatus `json:"status"`
	ItemsIn  int       `json:"items_in"`
	ItemsOut int       `json:"items_out"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// RunCheckpoint snapshots run progress so an interrupted run can resume at
// the exact cursor instead of restarting. Invariants: Cursor never exceeds
// the length of the list it indexes, and len(Leads) always equals Cursor.
type RunCheckpoint struct {
	RunID  string         `json:"run_id"`
	Stage  Stage          `json:"stage"`
	Cursor int            `json:"cursor"`
	Leads  []EnrichedLead `json:"leads"`
	// InputHash fingerprints the candidate list the cursor indexes into;
	// a mismatch on resume means the upstream data changed and the
	// checkpoint must be discarded.
	InputHash string    `json:"input_hash,omitempty"`
	SavedAt   time.Time `json:"saved_at"`
}

// PushSink names a downstream destination for finished leads.
type PushSink string

const (
	SinkInstantly  PushSink = "instantly"
	SinkProsp      PushSink = "prosp"
	SinkSalesforce PushSink = "salesforce"
	SinkNotion     PushSink = "notion"
)

// PushStatus is the outcome of one push attempt.
type PushStatus string

const (
	PushStatusPushed PushStatus = "pushed"
	PushStatusFailed PushStatus = "failed"
)

// PushRecord marks that a lead was delivered (or failed delivery) to a sink.
// It is the dedupe source for resumed pushes: a lead with a pushed record
// for a sink is never sent to that sink again.
type PushRecord struct {
	LeadID string     `json:"lead_id"`
	Sink   PushSink   `json:"sink"`
	Status PushStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
	At     time.Time  `json:"at"`
}
