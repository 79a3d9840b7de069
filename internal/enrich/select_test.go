package enrich

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadpipe/internal/model"
)

func email(value, category string, rating float64) model.ContactCandidate {
	return model.ContactCandidate{
		Type:     model.ContactEmail,
		Value:    value,
		Category: category,
		Rating:   rating,
	}
}

func TestSelectContact_FreeMailExclusionOutranksEverything(t *testing.T) {
	t.Parallel()

	contacts := []model.ContactCandidate{
		email("a@gmail.com", model.CategoryVerified, 0.99),
		email("b@acme.com", model.CategoryWork, 0.5),
	}

	selected := SelectContact(contacts, PolicyStrict)

	require.NotNil(t, selected)
	assert.Equal(t, "b@acme.com", selected.Value)
}

func TestSelectContact_CategoryOutranksRating(t *testing.T) {
	t.Parallel()

	contacts := []model.ContactCandidate{
		email("x@acme.com", model.CategoryProfessional, 0.6),
		email("y@acme.com", model.CategoryVerified, 0.4),
	}

	selected := SelectContact(contacts, PolicyStrict)

	require.NotNil(t, selected)
	assert.Equal(t, "y@acme.com", selected.Value)
}

func TestSelectContact_RatingBreaksTiesWithinCategory(t *testing.T) {
	t.Parallel()

	contacts := []model.ContactCandidate{
		email("low@acme.com", model.CategoryWork, 0.3),
		email("high@acme.com", model.CategoryWork, 0.8),
	}

	selected := SelectContact(contacts, PolicyStrict)

	require.NotNil(t, selected)
	assert.Equal(t, "high@acme.com", selected.Value)
}

func TestSelectContact_FirstSeenWinsExactTie(t *testing.T) {
	t.Parallel()

	contacts := []model.ContactCandidate{
		email("first@acme.com", model.CategoryWork, 0.5),
		email("second@acme.com", model.CategoryWork, 0.5),
	}

	selected := SelectContact(contacts, PolicyStrict)

	require.NotNil(t, selected)
	assert.Equal(t, "first@acme.com", selected.Value)
}

func TestSelectContact_PhonesNeverSatisfy(t *testing.T) {
	t.Parallel()

	contacts := []model.ContactCandidate{
		{Type: model.ContactPhone, Value: "+15125550100", Category: model.CategoryVerified, Rating: 1.0},
	}

	assert.Nil(t, SelectContact(contacts, PolicyStrict))
	assert.Nil(t, SelectContact(contacts, PolicyLoose))
}

func TestSelectContact_RiskyOnlyUnderLoosePolicy(t *testing.T) {
	t.Parallel()

	contacts := []model.ContactCandidate{
		email("maybe@acme.com", model.CategoryRisky, 0.9),
	}

	assert.Nil(t, SelectContact(contacts, PolicyStrict))

	selected := SelectContact(contacts, PolicyLoose)
	require.NotNil(t, selected)
	assert.Equal(t, "maybe@acme.com", selected.Value)
}

func TestSelectContact_PersonalNeverAdmitted(t *testing.T) {
	t.Parallel()

	contacts := []model.ContactCandidate{
		email("me@somedomain.net", model.CategoryPersonal, 1.0),
	}

	assert.Nil(t, SelectContact(contacts, PolicyLoose))
}

func TestSelectContact_UnknownCategoryNeverAdmitted(t *testing.T) {
	t.Parallel()

	contacts := []model.ContactCandidate{
		email("odd@acme.com", "carrier_pigeon", 1.0),
	}

	assert.Nil(t, SelectContact(contacts, PolicyLoose))
}

func TestSelectContact_Empty(t *testing.T) {
	t.Parallel()

	assert.Nil(t, SelectContact(nil, PolicyStrict))
	assert.Nil(t, SelectContact([]model.ContactCandidate{}, PolicyStrict))
}

func TestSelectContact_CaseInsensitiveCategory(t *testing.T) {
	t.Parallel()

	contacts := []model.ContactCandidate{
		email("c@acme.com", "Verified", 0.5),
	}

	selected := SelectContact(contacts, PolicyStrict)
	require.NotNil(t, selected)
	assert.Equal(t, "c@acme.com", selected.Value)
}

func TestIsFreeMailDomain(t *testing.T) {
	t.Parallel()

	assert.True(t, IsFreeMailDomain("gmail.com"))
	assert.True(t, IsFreeMailDomain("GMAIL.COM"))
	assert.True(t, IsFreeMailDomain("yandex.ru"))
	assert.True(t, IsFreeMailDomain("yandex.com"))
	assert.True(t, IsFreeMailDomain("protonmail.com"))
	assert.False(t, IsFreeMailDomain("acme.com"))
	assert.False(t, IsFreeMailDomain("mailboat.io"))
	assert.False(t, IsFreeMailDomain(""))
}

func pendingLead() model.EnrichedLead {
	return model.EnrichedLead{
		Candidate: model.Candidate{ID: "cand-1", Name: "Jordan Ferris"},
		Verdict:   model.QualificationVerdict{Decision: model.DecisionAccept, Confidence: model.ConfidenceHigh},
		Status:    model.EnrichmentPending,
	}
}

func TestFinalize_Success(t *testing.T) {
	t.Parallel()

	lead := pendingLead()
	now := time.Now()

	Finalize(&lead, []model.ContactCandidate{
		email("jordan@ferrisanalytics.com", model.CategoryVerified, 0.9),
	}, PolicyStrict, now)

	assert.Equal(t, model.EnrichmentSuccess, lead.Status)
	assert.Equal(t, "jordan@ferrisanalytics.com", lead.Email())
	assert.Equal(t, "ferrisanalytics.com", lead.CompanyDomain)
	assert.Empty(t, lead.Error)
	require.NotNil(t, lead.EnrichedAt)
	assert.Equal(t, now, *lead.EnrichedAt)
}

func TestFinalize_NoWorkEmail(t *testing.T) {
	t.Parallel()

	lead := pendingLead()

	Finalize(&lead, []model.ContactCandidate{
		email("personal@gmail.com", model.CategoryVerified, 0.99),
		{Type: model.ContactPhone, Value: "+15125550100", Category: model.CategoryVerified, Rating: 1.0},
	}, PolicyStrict, time.Now())

	assert.Equal(t, model.EnrichmentFailed, lead.Status)
	assert.Equal(t, "no work email found", lead.Error)
	assert.Nil(t, lead.Contact)
	assert.NotNil(t, lead.EnrichedAt)
}

func TestFinalize_TerminalLeadUntouched(t *testing.T) {
	t.Parallel()

	lead := pendingLead()
	lead.Status = model.EnrichmentSuccess
	lead.Contact = &model.ContactCandidate{Type: model.ContactEmail, Value: "kept@acme.com"}

	Finalize(&lead, []model.ContactCandidate{
		email("other@acme.com", model.CategoryVerified, 1.0),
	}, PolicyStrict, time.Now())

	assert.Equal(t, "kept@acme.com", lead.Email())
}

func TestMarkFailed(t *testing.T) {
	t.Parallel()

	lead := pendingLead()
	now := time.Now()

	MarkFailed(&lead, "clado: unexpected status 502", now)

	assert.Equal(t, model.EnrichmentFailed, lead.Status)
	assert.Equal(t, "clado: unexpected status 502", lead.Error)
	require.NotNil(t, lead.EnrichedAt)
}

func TestMarkFailed_TerminalLeadUntouched(t *testing.T) {
	t.Parallel()

	lead := pendingLead()
	lead.Status = model.EnrichmentSuccess

	MarkFailed(&lead, "too late", time.Now())

	assert.Equal(t, model.EnrichmentSuccess, lead.Status)
	assert.Empty(t, lead.Error)
}
