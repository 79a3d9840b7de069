package enrich

import (
	"strings"
	"time"

	"github.com/sells-group/leadpipe/internal/model"
)

// Policy controls how strict contact selection is about provider-reported
// categories.
type Policy string

const (
	// PolicyStrict admits verified, work, and professional emails only.
	PolicyStrict Policy = "strict"
	// PolicyLoose additionally admits risky emails.
	PolicyLoose Policy = "loose"
)

// freeMailDomains are consumer mail providers whose addresses are never
// acceptable as a work contact, regardless of category or rating.
var freeMailDomains = map[string]struct{}{
	"gmail.com":      {},
	"googlemail.com": {},
	"yahoo.com":      {},
	"hotmail.com":    {},
	"outlook.com":    {},
	"live.com":       {},
	"aol.com":        {},
	"icloud.com":     {},
	"me.com":         {},
	"proton.me":      {},
	"protonmail.com": {},
	"gmx.com":        {},
	"mail.com":       {},
	"zoho.com":       {},
}

// IsFreeMailDomain reports whether a domain belongs to a consumer mail
// provider. Yandex serves mail under many country TLDs, so it is matched by
// name rather than listed per-TLD.
func IsFreeMailDomain(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if _, ok := freeMailDomains[domain]; ok {
		return true
	}
	return strings.HasPrefix(domain, "yandex.")
}

// categoryRank orders contact categories by trustworthiness. Categories
// outside the known set are never admitted.
func categoryRank(category string, policy Policy) int {
	switch strings.ToLower(category) {
	case model.CategoryVerified:
		return 4
	case model.CategoryWork:
		return 3
	case model.CategoryProfessional:
		return 2
	case model.CategoryRisky:
		if policy == PolicyLoose {
			return 1
		}
		return -1
	default:
		return -1
	}
}

// SelectContact picks the single best email from a provider's contact
// candidates, or nil when none qualifies. Phones never satisfy selection.
// Free-mail addresses are excluded before any category or rating comparison,
// so a verified gmail address loses to a low-rated work address. Within the
// best admitted category the highest rating wins; ties keep the first-seen
// candidate.
func SelectContact(contacts []model.ContactCandidate, policy Policy) *model.ContactCandidate {
	var best *model.ContactCandidate
	bestRank := -1

	for i := range contacts {
		c := contacts[i]
		if c.Type != model.ContactEmail {
			continue
		}
		if IsFreeMailDomain(c.EmailDomain()) {
			continue
		}
		rank := categoryRank(c.Category, policy)
		if rank < 0 {
			continue
		}
		if best == nil || rank > bestRank || (rank == bestRank && c.Rating > best.Rating) {
			best = &contacts[i]
			bestRank = rank
		}
	}

	if best == nil {
		return nil
	}
	selected := *best
	return &selected
}

// Finalize applies a resolution outcome to a pending lead: the best contact
// is selected, the company domain is derived from its address, and the lead
// transitions to SUCCESS or FAILED. Leads already finalized are left alone;
// the transition happens exactly once.
func Finalize(lead *model.EnrichedLead, contacts []model.ContactCandidate, policy Policy, now time.Time) {
	if lead.Status != model.EnrichmentPending {
		return
	}

	selected := SelectContact(contacts, policy)
	if selected == nil {
		lead.Status = model.EnrichmentFailed
		lead.Error = "no work email found"
		lead.EnrichedAt = &now
		return
	}

	lead.Contact = selected
	lead.CompanyDomain = selected.EmailDomain()
	lead.Status = model.EnrichmentSuccess
	lead.Error = ""
	lead.EnrichedAt = &now
}

// MarkFailed records a terminal enrichment failure for a pending lead.
func MarkFailed(lead *model.EnrichedLead, reason string, now time.Time) {
	if lead.Status != model.EnrichmentPending {
		return
	}
	lead.Status = model.EnrichmentFailed
	lead.Error = reason
	lead.EnrichedAt = &now
}
