// Package store persists runs, leads, checkpoints and the push dead letter
// queue behind a single interface with SQLite and Postgres backends.
package store

import (
	"context"
	"time"

	"github.com/sells-group/leadpipe/internal/model"
	"github.com/sells-group/leadpipe/internal/resilience"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Source model.Source    `json:"source,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the lead pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, source model.Source, provider string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunCounters(ctx context.Context, runID string, counters model.RunCounters) error
	FinishRun(ctx context.Context, runID string, status model.RunStatus, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Stages
	RecordStage(ctx context.Context, rec model.StageRecord) error
	ListStages(ctx context.Context, runID string) ([]model.StageRecord, error)

	// Leads. SaveLeads upserts by candidate ID and preserves slice order;
	// GetLeads returns leads in the order they were saved.
	SaveLeads(ctx context.Context, runID string, leads []model.EnrichedLead) error
	GetLeads(ctx context.Context, runID string) ([]model.EnrichedLead, error)

	// Checkpoints. LoadCheckpoint returns nil when no checkpoint exists;
	// ClearCheckpoint of a missing checkpoint is not an error.
	SaveCheckpoint(ctx context.Context, cp *model.RunCheckpoint) error
	LoadCheckpoint(ctx context.Context, runID string) (*model.RunCheckpoint, error)
	ClearCheckpoint(ctx context.Context, runID string) error

	// Push records
	RecordPush(ctx context.Context, rec model.PushRecord) error
	ListPushed(ctx context.Context, sink model.PushSink) (map[string]bool, error)

	// Dead letter queue
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
	CountDLQ(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
