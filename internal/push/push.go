// Package push delivers finished leads to outbound sinks and records every
// outcome, so a rerun never delivers the same lead twice. Failed deliveries
// are dead-lettered and retried later with exponential backoff. Every sink
// sits behind its own circuit breaker, so a destination that keeps failing
// is rejected fast instead of hammered.
package push

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadpipe/internal/config"
	"github.com/sells-group/leadpipe/internal/model"
	"github.com/sells-group/leadpipe/internal/resilience"
)

// Result is the outcome of one lead within a sink push.
type Result struct {
	LeadID string
	Err    error
}

// Sink delivers leads to one outbound destination. Push returns one Result
// per lead it attempted. A non-nil error reports a failure that stopped the
// push before every lead was attempted; leads without a Result are recorded
// nowhere, so the next run picks them up again.
type Sink interface {
	Name() model.PushSink
	// Eligible reports whether the lead carries the fields this sink requires.
	Eligible(lead model.EnrichedLead) bool
	Push(ctx context.Context, leads []model.EnrichedLead) ([]Result, error)
}

// Store is the subset of the pipeline store the pusher needs.
type Store interface {
	RecordPush(ctx context.Context, rec model.PushRecord) error
	ListPushed(ctx context.Context, sink model.PushSink) (map[string]bool, error)
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
}

// Summary reports one sink's push outcome.
type Summary struct {
	Sink       model.PushSink `json:"sink"`
	Eligible   int            `json:"eligible"`
	Ineligible int            `json:"ineligible"`
	Skipped    int            `json:"skipped"`
	Pushed     int            `json:"pushed"`
	Failed     int            `json:"failed"`
}

// RetrySummary reports one pass over the dead letter queue.
type RetrySummary struct {
	Attempted int `json:"attempted"`
	Recovered int `json:"recovered"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Pusher filters, delivers and records finished leads for outbound sinks.
type Pusher struct {
	store       Store
	maxRetries  int
	backoffBase int
	breakers    *resilience.ServiceBreakers
}

// New creates a Pusher. The retry budget and DLQ backoff base come from the
// push configuration.
func New(st Store, cfg config.PushConfig) *Pusher {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	base := cfg.BackoffBaseSec
	if base <= 0 {
		base = 2
	}
	return &Pusher{
		store:       st,
		maxRetries:  maxRetries,
		backoffBase: base,
		breakers:    resilience.NewServiceBreakers(resilience.FromCircuitConfig(cfg.BreakerThreshold, cfg.BreakerResetSecs)),
	}
}

// Run delivers leads to a sink. Only successfully enriched leads that pass
// the sink's eligibility check and have no pushed record yet are sent; every
// attempted lead gets a push record, and failures are dead-lettered. When the
// sink's circuit is open the batch is not attempted and nothing is recorded,
// so the next run picks the same leads up again.
func (p *Pusher) Run(ctx context.Context, sink Sink, leads []model.EnrichedLead) (*Summary, error) {
	name := sink.Name()
	summary := &Summary{Sink: name}

	already, err := p.store.ListPushed(ctx, name)
	if err != nil {
		return nil, eris.Wrap(err, "push: list pushed")
	}

	batch := make([]model.EnrichedLead, 0, len(leads))
	for _, l := range leads {
		switch {
		case l.Status != model.EnrichmentSuccess || !sink.Eligible(l):
			summary.Ineligible++
		case already[l.Candidate.ID]:
			summary.Skipped++
		default:
			batch = append(batch, l)
		}
	}
	summary.Eligible = len(batch)

	if len(batch) == 0 {
		zap.L().Info("nothing to push",
			zap.String("sink", string(name)),
			zap.Int("ineligible", summary.Ineligible),
			zap.Int("skipped", summary.Skipped))
		return summary, nil
	}

	results, pushErr := resilience.ExecuteVal(ctx, p.breakers.Get(string(name)), func(ctx context.Context) ([]Result, error) {
		return sink.Push(ctx, batch)
	})
	if err := p.record(ctx, name, batch, results, summary); err != nil {
		return summary, err
	}
	if pushErr != nil {
		return summary, eris.Wrap(pushErr, fmt.Sprintf("push: %s", name))
	}

	zap.L().Info("push finished",
		zap.String("sink", string(name)),
		zap.Int("pushed", summary.Pushed),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("ineligible", summary.Ineligible))
	return summary, nil
}

// record writes per-lead outcomes and dead-letters failures.
func (p *Pusher) record(ctx context.Context, name model.PushSink, batch []model.EnrichedLead, results []Result, summary *Summary) error {
	byID := make(map[string]model.EnrichedLead, len(batch))
	for _, l := range batch {
		byID[l.Candidate.ID] = l
	}

	now := time.Now().UTC()
	for _, r := range results {
		lead, ok := byID[r.LeadID]
		if !ok {
			zap.L().Warn("sink reported an unknown lead",
				zap.String("sink", string(name)),
				zap.String("lead_id", r.LeadID))
			continue
		}

		if r.Err == nil {
			summary.Pushed++
			if err := p.store.RecordPush(ctx, model.PushRecord{
				LeadID: r.LeadID, Sink: name, Status: model.PushStatusPushed, At: now,
			}); err != nil {
				return eris.Wrap(err, "push: record push")
			}
			continue
		}

		summary.Failed++
		msg := r.Err.Error()
		if err := p.store.RecordPush(ctx, model.PushRecord{
			LeadID: r.LeadID, Sink: name, Status: model.PushStatusFailed, Error: msg, At: now,
		}); err != nil {
			return eris.Wrap(err, "push: record push")
		}
		if err := p.store.EnqueueDLQ(ctx, resilience.DLQEntry{
			ID:           dlqID(name, r.LeadID),
			Lead:         lead,
			Sink:         name,
			Error:        msg,
			ErrorType:    resilience.ClassifyError(r.Err),
			MaxRetries:   p.maxRetries,
			NextRetryAt:  now.Add(p.backoff(1)),
			CreatedAt:    now,
			LastFailedAt: now,
		}); err != nil {
			return eris.Wrap(err, "push: enqueue dlq")
		}
	}
	return nil
}

// RetryFailed re-delivers dead-lettered leads that are due for another
// attempt. Recovered entries leave the queue; entries that fail again have
// their retry count incremented and their next attempt pushed further out.
// Entries whose sink circuit is open are skipped without burning a retry.
func (p *Pusher) RetryFailed(ctx context.Context, sinks map[model.PushSink]Sink, filter resilience.DLQFilter) (*RetrySummary, error) {
	entries, err := p.store.DequeueDLQ(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "push: dequeue dlq")
	}

	summary := &RetrySummary{}
	for _, entry := range entries {
		sink, ok := sinks[entry.Sink]
		if !ok {
			zap.L().Warn("no sink configured for dead-lettered lead",
				zap.String("sink", string(entry.Sink)),
				zap.String("lead_id", entry.Lead.Candidate.ID))
			continue
		}
		if p.breakers.Get(string(entry.Sink)).State() == resilience.CircuitOpen {
			summary.Skipped++
			zap.L().Warn("sink circuit open, leaving lead in dlq",
				zap.String("sink", string(entry.Sink)),
				zap.String("lead_id", entry.Lead.Candidate.ID))
			continue
		}
		summary.Attempted++

		if err := p.retryEntry(ctx, sink, entry); err != nil {
			summary.Failed++
			next := time.Now().UTC().Add(p.backoff(entry.RetryCount + 2))
			if dbErr := p.store.IncrementDLQRetry(ctx, entry.ID, next, err.Error()); dbErr != nil {
				return summary, eris.Wrap(dbErr, "push: increment dlq retry")
			}
			continue
		}

		summary.Recovered++
		if err := p.store.RemoveDLQ(ctx, entry.ID); err != nil {
			return summary, eris.Wrap(err, "push: remove dlq")
		}
		if err := p.store.RecordPush(ctx, model.PushRecord{
			LeadID: entry.Lead.Candidate.ID,
			Sink:   entry.Sink,
			Status: model.PushStatusPushed,
			At:     time.Now().UTC(),
		}); err != nil {
			return summary, eris.Wrap(err, "push: record push")
		}
	}

	zap.L().Info("dlq retry pass finished",
		zap.Int("attempted", summary.Attempted),
		zap.Int("recovered", summary.Recovered),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped))
	return summary, nil
}

// retryEntry pushes a single dead-lettered lead through its sink.
func (p *Pusher) retryEntry(ctx context.Context, sink Sink, entry resilience.DLQEntry) error {
	results, err := resilience.ExecuteVal(ctx, p.breakers.Get(string(entry.Sink)), func(ctx context.Context) ([]Result, error) {
		return sink.Push(ctx, []model.EnrichedLead{entry.Lead})
	})
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return eris.New("push: sink returned no result")
	}
	for _, r := range results {
		if r.LeadID == entry.Lead.Candidate.ID && r.Err != nil {
			return r.Err
		}
	}
	return nil
}

// backoff returns the DLQ delay before retry n. Delays grow exponentially
// from the configured base: base^1 seconds before the first retry, base^2
// before the second, and so on.
func (p *Pusher) backoff(n int) time.Duration {
	return time.Duration(math.Pow(float64(p.backoffBase), float64(n))) * time.Second
}

// dlqID is stable per lead and sink so repeat failures update one entry.
func dlqID(sink model.PushSink, leadID string) string {
	return fmt.Sprintf("%s:%s", sink, leadID)
}

// sinkRetryConfig builds a sink's per-request retry policy from the push
// configuration. Zero values keep the package defaults.
func sinkRetryConfig(cfg config.PushConfig, service, operation string) resilience.RetryConfig {
	rc := resilience.FromRetryConfig(cfg.MaxRetries, cfg.BackoffBaseSec*1000, 0, 0, 0)
	rc.OnRetry = resilience.RetryLogger(service, operation)
	return rc
}

// companyOf prefers the qualifier's extracted company over the ingested one.
func companyOf(l model.EnrichedLead) string {
	if l.Verdict.Extracted != nil && l.Verdict.Extracted.Company != "" {
		return l.Verdict.Extracted.Company
	}
	return l.Candidate.Company
}

// roleOf prefers the qualifier's extracted role over the ingested title.
func roleOf(l model.EnrichedLead) string {
	if l.Verdict.Extracted != nil && l.Verdict.Extracted.Role != "" {
		return l.Verdict.Extracted.Role
	}
	return l.Candidate.Title
}

// websiteOf returns the company website URL derived from the lead's domain,
// or "" when no domain was resolved.
func websiteOf(l model.EnrichedLead) string {
	domain := l.CompanyDomain
	if domain == "" {
		domain = l.Candidate.CompanyDomain
	}
	if domain == "" {
		return ""
	}
	if strings.Contains(domain, "://") {
		return domain
	}
	return "https://" + domain
}
