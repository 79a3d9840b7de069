package push

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadpipe/internal/config"
	"github.com/sells-group/leadpipe/internal/model"
	"github.com/sells-group/leadpipe/internal/resilience"
	"github.com/sells-group/leadpipe/pkg/salesforce"
)

// SalesforceSink upserts finished leads into Salesforce Lead records, keyed
// by email. The lookup and update phases are retried; inserts run once, so a
// failed insert lands in the DLQ and the retry pass re-enters through the
// email lookup, updating any record that did land instead of duplicating it.
type SalesforceSink struct {
	client salesforce.Client
	retry  resilience.RetryConfig
}

// NewSalesforceSink wires a Salesforce client into the push layer.
func NewSalesforceSink(client salesforce.Client, push config.PushConfig) *SalesforceSink {
	return &SalesforceSink{
		client: client,
		retry:  sinkRetryConfig(push, "salesforce", "upsert leads"),
	}
}

func (s *SalesforceSink) Name() model.PushSink { return model.SinkSalesforce }

// Eligible requires the name and company Salesforce mandates on Lead records.
func (s *SalesforceSink) Eligible(l model.EnrichedLead) bool {
	return l.Candidate.Name != "" && companyOf(l) != ""
}

func (s *SalesforceSink) Push(ctx context.Context, leads []model.EnrichedLead) ([]Result, error) {
	var emails []string
	for _, l := range leads {
		if e := l.Email(); e != "" {
			emails = append(emails, e)
		}
	}

	existing, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (map[string]string, error) {
		return salesforce.FindLeadIDsByEmail(ctx, s.client, emails)
	})
	if err != nil {
		return nil, eris.Wrap(err, "push: salesforce lookup")
	}

	var (
		inserts   []salesforce.Lead
		insertIDs []string
		updates   []salesforce.LeadUpdate
		updateIDs []string
	)
	for _, l := range leads {
		if sfID, ok := existing[strings.ToLower(l.Email())]; ok && l.Email() != "" {
			updates = append(updates, salesforce.LeadUpdate{ID: sfID, Fields: sfUpdateFields(l)})
			updateIDs = append(updateIDs, l.Candidate.ID)
			continue
		}
		inserts = append(inserts, sfLead(l))
		insertIDs = append(insertIDs, l.Candidate.ID)
	}

	var results []Result

	if len(updates) > 0 {
		colResults, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]salesforce.CollectionResult, error) {
			return salesforce.UpdateLeads(ctx, s.client, updates)
		})
		if err != nil {
			return results, eris.Wrap(err, "push: salesforce update")
		}
		results = append(results, collectionResults(updateIDs, colResults)...)
	}

	if len(inserts) > 0 {
		colResults, err := salesforce.InsertLeads(ctx, s.client, inserts)
		if err != nil {
			return results, eris.Wrap(err, "push: salesforce insert")
		}
		results = append(results, collectionResults(insertIDs, colResults)...)
	}

	return results, nil
}

// collectionResults pairs positional collection outcomes with lead ids.
func collectionResults(leadIDs []string, res []salesforce.CollectionResult) []Result {
	out := make([]Result, 0, len(leadIDs))
	for i, id := range leadIDs {
		if i >= len(res) {
			out = append(out, Result{LeadID: id, Err: eris.New("push: salesforce returned no result for record")})
			continue
		}
		if res[i].Success {
			out = append(out, Result{LeadID: id})
			continue
		}
		msg := strings.Join(res[i].Errors, "; ")
		if msg == "" {
			msg = "salesforce rejected the record"
		}
		out = append(out, Result{LeadID: id, Err: eris.New(msg)})
	}
	return out
}

// sfLead maps a finished lead onto a new Salesforce Lead record. Salesforce
// requires LastName, so a single-token name lands there.
func sfLead(l model.EnrichedLead) salesforce.Lead {
	first := l.Candidate.FirstName()
	last := l.Candidate.LastName()
	if last == "" {
		first, last = "", first
	}
	return salesforce.Lead{
		FirstName:   first,
		LastName:    last,
		Company:     companyOf(l),
		Title:       roleOf(l),
		Email:       l.Email(),
		Website:     websiteOf(l),
		LeadSource:  string(l.Candidate.Source),
		Description: l.Candidate.Description,
	}
}

// sfUpdateFields refreshes the mutable facts on an existing record without
// touching identity fields.
func sfUpdateFields(l model.EnrichedLead) map[string]any {
	fields := map[string]any{
		"Company": companyOf(l),
	}
	if role := roleOf(l); role != "" {
		fields["Title"] = role
	}
	if site := websiteOf(l); site != "" {
		fields["Website"] = site
	}
	return fields
}
