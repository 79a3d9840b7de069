package enrich

import (
	"context"

	"github.com/sells-group/leadpipe/internal/model"
	"github.com/sells-group/leadpipe/pkg/apollo"
)

// ApolloResolver resolves contacts by person name and organization.
type ApolloResolver struct {
	client apollo.Client
}

// NewApolloResolver builds the name+organization-keyed strategy.
func NewApolloResolver(client apollo.Client) *ApolloResolver {
	return &ApolloResolver{client: client}
}

// Name implements Resolver.
func (r *ApolloResolver) Name() string { return "apollo" }

// Resolve implements Resolver. Apollo returns at most one best-match person;
// a match without an email yields no candidates rather than an error.
func (r *ApolloResolver) Resolve(ctx context.Context, lead model.EnrichedLead) ([]model.ContactCandidate, error) {
	person, err := r.client.MatchPerson(ctx, apollo.MatchRequest{
		FirstName:        lead.Candidate.FirstName(),
		LastName:         lead.Candidate.LastName(),
		OrganizationName: organizationFor(lead),
	})
	if err != nil {
		return nil, err
	}
	if person == nil || person.Email == "" {
		return nil, nil
	}

	return []model.ContactCandidate{{
		Type:     model.ContactEmail,
		Value:    person.Email,
		Category: categoryForEmailStatus(person.EmailStatus),
		Rating:   ratingForEmailStatus(person.EmailStatus),
	}}, nil
}

// organizationFor prefers the ingested company name and falls back to what
// the qualifier extracted from the profile text.
func organizationFor(lead model.EnrichedLead) string {
	if lead.Candidate.Company != "" {
		return lead.Candidate.Company
	}
	if lead.Verdict.Extracted != nil {
		return lead.Verdict.Extracted.Company
	}
	return ""
}

// categoryForEmailStatus maps Apollo's email_status vocabulary onto contact
// categories. Apollo only distinguishes verified addresses from inferred
// ones, so anything unverified lands in risky.
func categoryForEmailStatus(status string) string {
	if status == "verified" {
		return model.CategoryVerified
	}
	return model.CategoryRisky
}

func ratingForEmailStatus(status string) float64 {
	if status == "verified" {
		return 0.95
	}
	return 0.4
}
