package push

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadpipe/internal/config"
	"github.com/sells-group/leadpipe/internal/model"
	"github.com/sells-group/leadpipe/internal/resilience"
	"github.com/sells-group/leadpipe/pkg/prosp"
)

// defaultProspWorkers bounds concurrent add-lead calls; Prosp accepts one
// profile per request.
const defaultProspWorkers = 3

// ProspSink delivers leads to a Prosp LinkedIn outreach list or campaign,
// one profile at a time with a bounded worker pool.
type ProspSink struct {
	client  prosp.Client
	cfg     config.ProspConfig
	workers int
	retry   resilience.RetryConfig
}

// NewProspSink wires a Prosp client to the list or campaign named in cfg.
func NewProspSink(client prosp.Client, cfg config.ProspConfig, push config.PushConfig, workers int) *ProspSink {
	if workers <= 0 {
		workers = defaultProspWorkers
	}
	return &ProspSink{
		client:  client,
		cfg:     cfg,
		workers: workers,
		retry:   sinkRetryConfig(push, "prosp", "add lead"),
	}
}

func (s *ProspSink) Name() model.PushSink { return model.SinkProsp }

// Eligible requires a LinkedIn profile URL; Prosp contacts leads on LinkedIn.
func (s *ProspSink) Eligible(l model.EnrichedLead) bool {
	return strings.Contains(l.Candidate.ProfileURL, "linkedin.com")
}

func (s *ProspSink) Push(ctx context.Context, leads []model.EnrichedLead) ([]Result, error) {
	if s.cfg.ListID == "" && s.cfg.CampaignID == "" {
		return nil, eris.New("push: prosp list id or campaign id is required")
	}

	results := make([]Result, len(leads))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, lead := range leads {
		g.Go(func() error {
			err := resilience.Do(ctx, s.retry, func(ctx context.Context) error {
				return s.client.AddLead(ctx, s.request(lead))
			})
			results[i] = Result{LeadID: lead.Candidate.ID, Err: err}
			return nil
		})
	}
	// Failures land in results; the group itself never errors.
	_ = g.Wait()

	return results, nil
}

// request builds the add-lead call with the data pairs the outreach
// templates reference.
func (s *ProspSink) request(l model.EnrichedLead) prosp.AddLeadRequest {
	var data []prosp.Property
	add := func(name, value string) {
		if value != "" {
			data = append(data, prosp.Property{Property: name, Value: value})
		}
	}
	add("first_name", l.Candidate.FirstName())
	add("last_name", l.Candidate.LastName())
	add("company", companyOf(l))
	add("title", roleOf(l))
	add("email", l.Email())
	add("hiring_role", l.Candidate.Title)
	add("company_website", websiteOf(l))

	return prosp.AddLeadRequest{
		LinkedInURL: l.Candidate.ProfileURL,
		ListID:      s.cfg.ListID,
		CampaignID:  s.cfg.CampaignID,
		Data:        data,
	}
}
