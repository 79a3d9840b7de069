package enrich

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadpipe/internal/model"
	"github.com/sells-group/leadpipe/pkg/icypeas"
)

// IcypeasResolver resolves contacts by name and company domain. It is the
// strategy for leads that carry no profile URL, such as job-posting leads
// where only the person's name and the company site are known.
type IcypeasResolver struct {
	client   icypeas.Client
	interval time.Duration
	timeout  time.Duration
}

// NewIcypeasResolver builds the name+domain-keyed strategy. interval and
// timeout bound the result polling loop.
func NewIcypeasResolver(client icypeas.Client, interval, timeout time.Duration) *IcypeasResolver {
	return &IcypeasResolver{client: client, interval: interval, timeout: timeout}
}

// Name implements Resolver.
func (r *IcypeasResolver) Name() string { return "icypeas" }

// Resolve implements Resolver. The search runs as a one-row bulk task; the
// provider has no synchronous single-search endpoint.
func (r *IcypeasResolver) Resolve(ctx context.Context, lead model.EnrichedLead) ([]model.ContactCandidate, error) {
	domain := lead.Candidate.CompanyDomain
	if domain == "" {
		return nil, eris.New("icypeas: lead has no company domain")
	}

	bulkID, err := r.client.LaunchBulk(ctx, icypeas.BulkRequest{
		Task: icypeas.TaskEmailSearch,
		Name: "lead " + lead.Candidate.ID,
		Data: [][]string{{lead.Candidate.FirstName(), lead.Candidate.LastName(), domain}},
	})
	if err != nil {
		return nil, err
	}

	items, err := pollBulk(ctx, r.client, bulkID, r.interval, r.timeout)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	item := items[0]
	if item.Status == icypeas.StatusError {
		return nil, eris.Errorf("icypeas: search %s failed", item.ID)
	}

	out := make([]model.ContactCandidate, 0, len(item.Results.Emails))
	for _, e := range item.Results.Emails {
		out = append(out, model.ContactCandidate{
			Type:     model.ContactEmail,
			Value:    e.Email,
			Category: categoryForCertainty(e.Certainty),
			Rating:   float64(icypeas.CertaintyScore(e.Certainty)) / 4.0,
		})
	}
	return out, nil
}

// categoryForCertainty maps Icypeas certainty levels onto contact categories.
func categoryForCertainty(certainty string) string {
	switch certainty {
	case icypeas.CertaintyUltraSure, icypeas.CertaintySure:
		return model.CategoryVerified
	case icypeas.CertaintyLikely:
		return model.CategoryWork
	case icypeas.CertaintyMaybe:
		return model.CategoryRisky
	default:
		return model.CategoryRisky
	}
}
