// Package checkpoint persists batch-run progress so an interrupted run can
// resume instead of re-spending provider quota. A checkpoint exists from run
// start until successful completion; completion clears it.
package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"github.com/sells-group/leadpipe/internal/model"
)

// Store persists run checkpoints keyed by run id. The database-backed store
// satisfies it directly; FileStore covers runs without a database.
type Store interface {
	// LoadCheckpoint returns the checkpoint for a run, or nil when none
	// exists.
	LoadCheckpoint(ctx context.Context, runID string) (*model.RunCheckpoint, error)
	// SaveCheckpoint writes the checkpoint, replacing any previous one for
	// the run.
	SaveCheckpoint(ctx context.Context, cp *model.RunCheckpoint) error
	// ClearCheckpoint removes the checkpoint; clearing a missing checkpoint
	// is not an error.
	ClearCheckpoint(ctx context.Context, runID string) error
}

// HashInput fingerprints the ordered candidates feeding a run. A checkpoint
// saved against different input must not be resumed, and order matters
// because result slots are addressed by index.
func HashInput(leads []model.EnrichedLead) string {
	h := sha256.New()
	for _, l := range leads {
		io.WriteString(h, l.Candidate.ID) //nolint:errcheck
		io.WriteString(h, "\n")           //nolint:errcheck
	}
	return hex.EncodeToString(h.Sum(nil))
}

// IsStale reports whether a checkpoint is too old to trust for resumption.
func IsStale(cp *model.RunCheckpoint, maxAge time.Duration, now time.Time) bool {
	if cp == nil {
		return false
	}
	return now.Sub(cp.SavedAt) > maxAge
}
