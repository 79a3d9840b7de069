package push

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadpipe/internal/config"
	"github.com/sells-group/leadpipe/internal/model"
	"github.com/sells-group/leadpipe/internal/resilience"
	"github.com/sells-group/leadpipe/pkg/instantly"
)

// InstantlySink delivers leads to an Instantly email campaign in chunks of
// up to 1000. A chunk that fails all its retries marks every lead in it
// failed and the push moves on to the next chunk.
type InstantlySink struct {
	client instantly.Client
	cfg    config.InstantlyConfig
	retry  resilience.RetryConfig
}

// NewInstantlySink wires an Instantly client to the campaign named in cfg.
func NewInstantlySink(client instantly.Client, cfg config.InstantlyConfig, push config.PushConfig) *InstantlySink {
	return &InstantlySink{
		client: client,
		cfg:    cfg,
		retry:  sinkRetryConfig(push, "instantly", "add leads"),
	}
}

func (s *InstantlySink) Name() model.PushSink { return model.SinkInstantly }

// Eligible requires an email plus the name and company the campaign
// templates interpolate.
func (s *InstantlySink) Eligible(l model.EnrichedLead) bool {
	return l.Email() != "" && l.Candidate.Name != "" && companyOf(l) != ""
}

func (s *InstantlySink) Push(ctx context.Context, leads []model.EnrichedLead) ([]Result, error) {
	campaignID, err := s.campaignID(ctx)
	if err != nil {
		return nil, err
	}

	var results []Result
	for start := 0; start < len(leads); start += instantly.MaxLeadsPerRequest {
		end := start + instantly.MaxLeadsPerRequest
		if end > len(leads) {
			end = len(leads)
		}
		chunk := leads[start:end]

		rows := make([]instantly.Lead, len(chunk))
		for i, l := range chunk {
			rows[i] = instantlyLead(l)
		}

		added, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*instantly.AddResult, error) {
			return s.client.AddLeads(ctx, campaignID, rows)
		})
		if err != nil {
			for _, l := range chunk {
				results = append(results, Result{LeadID: l.Candidate.ID, Err: err})
			}
			continue
		}

		zap.L().Info("added chunk to instantly campaign",
			zap.String("campaign_id", campaignID),
			zap.Int("uploaded", added.Uploaded),
			zap.Int("skipped", added.Skipped))
		for _, l := range chunk {
			results = append(results, Result{LeadID: l.Candidate.ID})
		}
	}
	return results, nil
}

// campaignID resolves the target campaign: an explicit ID wins, otherwise
// the named campaign is looked up and created when absent.
func (s *InstantlySink) campaignID(ctx context.Context) (string, error) {
	if s.cfg.CampaignID != "" {
		return s.cfg.CampaignID, nil
	}
	if s.cfg.CampaignName == "" {
		return "", eris.New("push: instantly campaign id or name is required")
	}
	return s.client.EnsureCampaign(ctx, s.cfg.CampaignName)
}

// instantlyLead maps a finished lead onto a campaign row plus the custom
// variables the sequence templates reference.
func instantlyLead(l model.EnrichedLead) instantly.Lead {
	vars := map[string]string{}
	if role := roleOf(l); role != "" {
		vars["person_title"] = role
	}
	if l.Candidate.Title != "" {
		vars["hiring_role"] = l.Candidate.Title
	}
	if l.Candidate.Source == model.SourceLinkedInJobs && l.Candidate.Metric != "" {
		vars["employee_count"] = l.Candidate.Metric
	} else if l.Verdict.Extracted != nil && l.Verdict.Extracted.SizeEstimate != "" {
		vars["employee_count"] = l.Verdict.Extracted.SizeEstimate
	}
	if l.Candidate.ProfileURL != "" {
		vars["linkedin_url"] = l.Candidate.ProfileURL
	}
	if l.Candidate.Location != "" {
		vars["location"] = l.Candidate.Location
	}

	return instantly.Lead{
		Email:           l.Email(),
		FirstName:       l.Candidate.FirstName(),
		LastName:        l.Candidate.LastName(),
		CompanyName:     companyOf(l),
		Website:         websiteOf(l),
		CustomVariables: vars,
	}
}
