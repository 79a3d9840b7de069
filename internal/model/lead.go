package model

import (
	"strings"
	"time"
)

// Source identifies where a candidate was ingested from.
type Source string

const (
	SourceTwitterCSV    Source = "twitter_csv"
	SourceLinkedInPosts Source = "linkedin_reactions"
	SourceLinkedInJobs  Source = "linkedin_jobs"
)

// Candidate is a raw profile record entering the pipeline. It is immutable
// once ingested and exists only for the duration of a run.
type Candidate struct {
	ID          string `json:"id"`
	Source      Source `json:"source"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Location    string `json:"location,omitempty"`
	// Metric carries the raw follower/engagement value as ingested. It may
	// be a bare number, a JSON object, or empty; the pre-filter parses it.
	Metric     string `json:"metric,omitempty"`
	ProfileURL string `json:"profile_url,omitempty"`
	Company    string `json:"company,omitempty"`
	// CompanyDomain is set when the source already knows it (job postings);
	// for other sources it is derived later from the resolved email.
	CompanyDomain string `json:"company_domain,omitempty"`
	Title         string `json:"title,omitempty"`
}

// FirstName returns the first whitespace-separated token of Name.
func (c Candidate) FirstName() string {
	first, _ := splitName(c.Name)
	return first
}

// LastName returns everything after the first token of Name.
func (c Candidate) LastName() string {
	_, last := splitName(c.Name)
	return last
}

func splitName(name string) (string, string) {
	parts := strings.Fields(strings.TrimSpace(name))
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// Check names for pre-filter sub-verdicts.
const (
	CheckLocation  = "location"
	CheckFollowers = "followers"
	CheckKeywords  = "keywords"
)

// SubVerdict is the outcome of one pre-filter sub-check. Confident is false
// when the rejection stems from missing data rather than a positive signal,
// so operators can tell the two apart when tuning thresholds.
type SubVerdict struct {
	Name      string   `json:"name"`
	Passed    bool     `json:"passed"`
	Confident bool     `json:"confident"`
	Reason    string   `json:"reason"`
	Matched   []string `json:"matched,omitempty"`
}

// PreFilterVerdict aggregates all sub-checks for one candidate. A candidate
// passes only when every sub-check passes; failing checks are all reported,
// never short-circuited.
type PreFilterVerdict struct {
	Passed bool         `json:"passed"`
	Checks []SubVerdict `json:"checks"`
}

// FailedChecks returns the names of the sub-checks that did not pass, in
// evaluation order.
func (v PreFilterVerdict) FailedChecks() []string {
	var failed []string
	for _, c := range v.Checks {
		if !c.Passed {
			failed = append(failed, c.Name)
		}
	}
	return failed
}

// Reason concatenates the reasons of all failing sub-checks.
func (v PreFilterVerdict) Reason() string {
	var reasons []string
	for _, c := range v.Checks {
		if !c.Passed {
			reasons = append(reasons, c.Reason)
		}
	}
	return strings.Join(reasons, "; ")
}

// Decision is the qualifier's accept/reject call.
type Decision string

const (
	DecisionAccept Decision = "ACCEPT"
	DecisionReject Decision = "REJECT"
)

// Confidence grades how sure the qualifier is about its decision.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// ExtractedFields are optional structured facts the qualifier pulled from the
// candidate's profile text.
type ExtractedFields struct {
	Company      string `json:"company,omitempty"`
	Role         string `json:"role,omitempty"`
	Seniority    string `json:"seniority,omitempty"`
	SizeEstimate string `json:"size_estimate,omitempty"`
}

// QualificationVerdict is produced exactly once per candidate. Transport and
// parse failures are encoded as REJECT/LOW verdicts with a diagnostic
// reasoning string rather than surfaced as errors, so one bad response never
// stops a batch.
type QualificationVerdict struct {
	Decision   Decision         `json:"decision"`
	Confidence Confidence       `json:"confidence"`
	Reasoning  string           `json:"reasoning"`
	Extracted  *ExtractedFields `json:"extracted,omitempty"`
}

// Accepted reports whether the verdict qualifies the candidate as a lead.
func (v QualificationVerdict) Accepted() bool {
	return v.Decision == DecisionAccept
}

// ContactType distinguishes the two kinds of contact records providers return.
type ContactType string

const (
	ContactEmail ContactType = "email"
	ContactPhone ContactType = "phone"
)

// Contact quality categories in provider vocabulary. Ordering of trust is
// encoded in enrich.SelectContact, not here.
const (
	CategoryVerified     = "verified"
	CategoryWork         = "work"
	CategoryProfessional = "professional"
	CategoryRisky        = "risky"
	CategoryPersonal     = "personal"
)

// ContactCandidate is one contact record returned by an enrichment provider.
// Rating is kept on the provider's own scale (0-1 or 0-100) and only compared
// within a single provider's result set.
type ContactCandidate struct {
	Type     ContactType `json:"type"`
	Value    string      `json:"value"`
	Category string      `json:"category,omitempty"`
	Rating   float64     `json:"rating,omitempty"`
	// Verified is nil until a verification pass has checked the address.
	Verified *bool `json:"verified,omitempty"`
}

// EmailDomain returns the part after '@' for email contacts, lowercased.
func (c ContactCandidate) EmailDomain() string {
	if c.Type != ContactEmail {
		return ""
	}
	at := strings.LastIndex(c.Value, "@")
	if at < 0 || at == len(c.Value)-1 {
		return ""
	}
	return strings.ToLower(c.Value[at+1:])
}

// EnrichmentStatus tracks a lead's contact-resolution lifecycle.
type EnrichmentStatus string

const (
	EnrichmentPending EnrichmentStatus = "PENDING"
	EnrichmentSuccess EnrichmentStatus = "SUCCESS"
	EnrichmentFailed  EnrichmentStatus = "FAILED"
)

// EnrichedLead is a qualified candidate plus its enrichment outcome. Status
// starts PENDING after qualification and transitions exactly once to SUCCESS
// or FAILED.
type EnrichedLead struct {
	Candidate     Candidate            `json:"candidate"`
	Verdict       QualificationVerdict `json:"verdict"`
	Contact       *ContactCandidate    `json:"contact,omitempty"`
	CompanyDomain string               `json:"company_domain,omitempty"`
	Status        EnrichmentStatus     `json:"status"`
	Error         string               `json:"error,omitempty"`
	EnrichedAt    *time.Time           `json:"enriched_at,omitempty"`
}

// Email returns the selected contact email, or "" when none was resolved.
func (l EnrichedLead) Email() string {
	if l.Contact == nil || l.Contact.Type != ContactEmail {
		return ""
	}
	return l.Contact.Value
}
