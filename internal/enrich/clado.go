package enrich

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/sells-group/leadpipe/internal/model"
	"github.com/sells-group/leadpipe/pkg/clado"
)

// linkedinSlugPattern extracts the profile slug from any LinkedIn profile URL
// variant (mobile hosts, tracking params, country subdomains).
var linkedinSlugPattern = regexp.MustCompile(`linkedin\.com/in/([a-zA-Z0-9_-]+)`)

// NormalizeProfileURL canonicalizes a profile URL before it is used as a
// provider lookup key. LinkedIn URLs collapse to the www host with a bare
// slug; everything else keeps its path with scheme and host normalized and
// query/fragment stripped.
func NormalizeProfileURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if m := linkedinSlugPattern.FindStringSubmatch(raw); m != nil {
		return "https://www.linkedin.com/in/" + m[1]
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimRight(raw, "/")
	}
	u.Scheme = "https"
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/")
}

// CladoResolver resolves contacts by profile URL.
type CladoResolver struct {
	client      clado.Client
	searchEmail bool
}

// NewCladoResolver builds the URL-keyed strategy. searchEmail asks the
// provider to run its own email discovery in addition to stored records.
func NewCladoResolver(client clado.Client, searchEmail bool) *CladoResolver {
	return &CladoResolver{client: client, searchEmail: searchEmail}
}

// Name implements Resolver.
func (r *CladoResolver) Name() string { return "clado" }

// Resolve implements Resolver.
func (r *CladoResolver) Resolve(ctx context.Context, lead model.EnrichedLead) ([]model.ContactCandidate, error) {
	contacts, err := r.client.EnrichContacts(ctx, clado.ContactsRequest{
		LinkedInURL: NormalizeProfileURL(lead.Candidate.ProfileURL),
		SearchEmail: r.searchEmail,
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.ContactCandidate, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, model.ContactCandidate{
			Type:     model.ContactType(strings.ToLower(c.Type)),
			Value:    c.Value,
			Category: strings.ToLower(c.SubType),
			Rating:   c.Rating,
		})
	}
	return out, nil
}
