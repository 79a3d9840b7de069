package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadpipe/internal/model"
	"github.com/sells-group/leadpipe/pkg/icypeas"
)

// Verifier checks resolved email addresses in bulk after enrichment. It
// stamps each lead's contact with the verification outcome; leads are never
// dropped or failed here, only annotated.
type Verifier struct {
	client    icypeas.Client
	interval  time.Duration
	timeout   time.Duration
	batchSize int
}

// NewVerifier builds a bulk email verifier. batchSize caps the rows per bulk
// task; values below 1 fall back to a single batch.
func NewVerifier(client icypeas.Client, interval, timeout time.Duration, batchSize int) *Verifier {
	return &Verifier{client: client, interval: interval, timeout: timeout, batchSize: batchSize}
}

// VerifyEmails verifies every lead that has a resolved email and sets
// Contact.Verified in place. Leads without an email are skipped. Results come
// back in submission order, which is what ties them back to their leads.
func (v *Verifier) VerifyEmails(ctx context.Context, leads []model.EnrichedLead) error {
	var indexes []int
	for i := range leads {
		if leads[i].Email() != "" {
			indexes = append(indexes, i)
		}
	}
	if len(indexes) == 0 {
		return nil
	}

	batchSize := v.batchSize
	if batchSize < 1 {
		batchSize = len(indexes)
	}

	for start := 0; start < len(indexes); start += batchSize {
		end := start + batchSize
		if end > len(indexes) {
			end = len(indexes)
		}
		if err := v.verifyChunk(ctx, leads, indexes[start:end]); err != nil {
			return err
		}
	}

	zap.L().Info("enrich: email verification complete",
		zap.Int("checked", len(indexes)),
	)
	return nil
}

func (v *Verifier) verifyChunk(ctx context.Context, leads []model.EnrichedLead, indexes []int) error {
	data := make([][]string, 0, len(indexes))
	for _, i := range indexes {
		data = append(data, []string{leads[i].Email()})
	}

	bulkID, err := v.client.LaunchBulk(ctx, icypeas.BulkRequest{
		Task: icypeas.TaskEmailVerification,
		Name: fmt.Sprintf("verification of %d emails", len(data)),
		Data: data,
	})
	if err != nil {
		return eris.Wrap(err, "enrich: launch verification")
	}

	items, err := pollBulk(ctx, v.client, bulkID, v.interval, v.timeout)
	if err != nil {
		return eris.Wrap(err, "enrich: poll verification")
	}

	for pos, i := range indexes {
		valid := false
		if pos < len(items) && items[pos].Status == icypeas.StatusDebited {
			valid = items[pos].Results.Valid
		}
		leads[i].Contact.Verified = &valid
	}
	return nil
}

// pollBulk reads a bulk task until every item reaches a terminal status.
// Transient read failures keep the loop alive; only cancellation or the
// timeout end it early.
func pollBulk(ctx context.Context, client icypeas.Client, bulkID string, interval, timeout time.Duration) ([]icypeas.SearchResult, error) {
	deadline := time.After(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		items, err := client.ReadResults(ctx, bulkID)
		if err != nil {
			zap.L().Warn("enrich: bulk read failed, retrying",
				zap.String("bulk_id", bulkID),
				zap.Error(err),
			)
		} else if len(items) > 0 && allTerminal(items) {
			return items, nil
		}

		select {
		case <-ctx.Done():
			return nil, eris.Wrap(ctx.Err(), "icypeas: poll cancelled")
		case <-deadline:
			return nil, eris.Errorf("icypeas: poll timed out after %s", timeout)
		case <-ticker.C:
		}
	}
}

func allTerminal(items []icypeas.SearchResult) bool {
	for _, item := range items {
		if !item.Terminal() {
			return false
		}
	}
	return true
}
