package push

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadpipe/internal/config"
	"github.com/sells-group/leadpipe/internal/model"
	"github.com/sells-group/leadpipe/internal/resilience"
	"github.com/sells-group/leadpipe/pkg/notion"
)

// NotionSink mirrors finished leads into a Notion tracking database, one
// page per lead, upserted by email. The client throttles itself to Notion's
// rate limit, so leads are written serially.
type NotionSink struct {
	client notion.Client
	dbID   string
	retry  resilience.RetryConfig
}

// NewNotionSink wires a Notion client to the lead database named in cfg.
func NewNotionSink(client notion.Client, cfg config.NotionConfig, push config.PushConfig) *NotionSink {
	return &NotionSink{
		client: client,
		dbID:   cfg.LeadDB,
		retry:  sinkRetryConfig(push, "notion", "upsert lead page"),
	}
}

func (s *NotionSink) Name() model.PushSink { return model.SinkNotion }

// Eligible requires only a name; the tracking database accepts leads with
// or without resolved contacts.
func (s *NotionSink) Eligible(l model.EnrichedLead) bool {
	return l.Candidate.Name != ""
}

func (s *NotionSink) Push(ctx context.Context, leads []model.EnrichedLead) ([]Result, error) {
	if s.dbID == "" {
		return nil, eris.New("push: notion lead database id is required")
	}
	if err := notion.EnsureLeadDatabase(ctx, s.client, s.dbID); err != nil {
		return nil, err
	}

	results := make([]Result, len(leads))
	for i, l := range leads {
		page := leadPage(l)
		err := resilience.Do(ctx, s.retry, func(ctx context.Context) error {
			_, _, err := notion.UpsertLeadPage(ctx, s.client, s.dbID, page)
			return err
		})
		results[i] = Result{LeadID: l.Candidate.ID, Err: err}
	}
	return results, nil
}

// leadPage maps a lead onto the tracking database's properties.
func leadPage(l model.EnrichedLead) notion.LeadPage {
	return notion.LeadPage{
		Name:     l.Candidate.Name,
		Email:    l.Email(),
		Company:  companyOf(l),
		Role:     roleOf(l),
		Website:  websiteOf(l),
		Location: l.Candidate.Location,
		Source:   string(l.Candidate.Source),
		Status:   "Pushed",
	}
}
